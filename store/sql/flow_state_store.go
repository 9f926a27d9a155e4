package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FlowStateStore persists onboarding flow tokens so a two-leg authorization
// survives process restarts between the redirects.
type FlowStateStore struct {
	db   *bun.DB
	repo repository.Repository[*flowStateRecord]
}

func (s *FlowStateStore) Save(ctx context.Context, token core.FlowToken) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: flow state store is not configured")
	}
	key := strings.TrimSpace(token.Token)
	if key == "" {
		return fmt.Errorf("sqlstore: flow token is required")
	}
	now := time.Now().UTC()
	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.repo.Create(ctx, &flowStateRecord{
		ID:                uuid.NewString(),
		Token:             key,
		ResolvedTenantKey: token.ResolvedTenantKey,
		ExpiresAt:         token.ExpiresAt.UTC(),
		CreatedAt:         createdAt,
		UpdatedAt:         now,
	})
	return err
}

func (s *FlowStateStore) Get(ctx context.Context, token string) (core.FlowToken, error) {
	if s == nil || s.repo == nil {
		return core.FlowToken{}, fmt.Errorf("sqlstore: flow state store is not configured")
	}
	key := strings.TrimSpace(token)
	if key == "" {
		return core.FlowToken{}, fmt.Errorf("sqlstore: flow token is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("token", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.FlowToken{}, err
	}
	if len(records) == 0 {
		return core.FlowToken{}, core.NewTargetNotFound("flow token not found")
	}
	entry := records[0].toDomain()
	if !entry.ExpiresAt.IsZero() && time.Now().UTC().After(entry.ExpiresAt) {
		return core.FlowToken{}, core.NewTargetNotFound("flow token expired")
	}
	return entry, nil
}

func (s *FlowStateStore) Resolve(ctx context.Context, token string, tenantKey string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: flow state store is not configured")
	}
	key := strings.TrimSpace(token)
	if key == "" {
		return fmt.Errorf("sqlstore: flow token is required")
	}
	tenantKey = strings.TrimSpace(tenantKey)
	if tenantKey == "" {
		return fmt.Errorf("sqlstore: tenant key is required")
	}

	result, err := s.db.NewUpdate().
		Model((*flowStateRecord)(nil)).
		Set("resolved_tenant_key = ?", tenantKey).
		Set("updated_at = ?", time.Now().UTC()).
		Where("token = ?", key).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewTargetNotFound("flow token not found")
	}
	return nil
}

func (s *FlowStateStore) Delete(ctx context.Context, token string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: flow state store is not configured")
	}
	key := strings.TrimSpace(token)
	if key == "" {
		return fmt.Errorf("sqlstore: flow token is required")
	}
	_, err := s.db.NewDelete().
		Model((*flowStateRecord)(nil)).
		Where("token = ?", key).
		Exec(ctx)
	return err
}

// PurgeExpired removes flow tokens whose expiry has passed. Intended for a
// periodic maintenance call, not the request path.
func (s *FlowStateStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: flow state store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*flowStateRecord)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
