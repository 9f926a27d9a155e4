package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore keeps one credential row per (platform, tenant_key).
// Upsert replaces tokens in place so a credential row is never duplicated
// by token rotation. Lookups fall back to the linked tenant key, which is
// how location-scoped callers reach an MP credential keyed by seller id.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

func (s *CredentialStore) Get(ctx context.Context, platform core.Platform, tenantKey string) (core.CredentialRecord, error) {
	if s == nil || s.repo == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	tenantKey = strings.TrimSpace(tenantKey)
	if tenantKey == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: tenant key is required")
	}
	for _, column := range []string{"tenant_key", "linked_tenant_key"} {
		records, _, err := s.repo.List(ctx,
			repository.SelectBy("platform", "=", string(platform)),
			repository.SelectBy(column, "=", tenantKey),
			repository.SelectPaginate(1, 0),
		)
		if err != nil {
			return core.CredentialRecord{}, err
		}
		if len(records) > 0 {
			return records[0].toDomain(), nil
		}
	}
	return core.CredentialRecord{}, core.NewCredentialNotFound(
		fmt.Sprintf("credential for %s tenant %q not found", platform, tenantKey),
	)
}

func (s *CredentialStore) Upsert(ctx context.Context, record core.CredentialRecord) (core.CredentialRecord, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	tenantKey := strings.TrimSpace(record.TenantKey)
	if !record.Platform.Valid() {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: unknown platform %q", record.Platform)
	}
	if tenantKey == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: tenant key is required")
	}
	if strings.TrimSpace(record.AccessToken) == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: access token is required")
	}
	now := time.Now().UTC()

	var saved core.CredentialRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &credentialRecord{}
		found := true
		if err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.platform = ?", string(record.Platform)).
			Where("?TableAlias.tenant_key = ?", tenantKey).
			Limit(1).
			Scan(ctx); err != nil {
			if err != sql.ErrNoRows {
				return err
			}
			found = false
		}

		if found {
			update := tx.NewUpdate().
				Model((*credentialRecord)(nil)).
				Set("access_token = ?", record.AccessToken).
				Set("updated_at = ?", now).
				Where("id = ?", existing.ID)
			if strings.TrimSpace(record.RefreshToken) != "" {
				update = update.Set("refresh_token = ?", record.RefreshToken)
				existing.RefreshToken = record.RefreshToken
			}
			if strings.TrimSpace(record.PublicKey) != "" {
				update = update.Set("public_key = ?", record.PublicKey)
				existing.PublicKey = record.PublicKey
			}
			if linked := strings.TrimSpace(record.LinkedTenantKey); linked != "" {
				update = update.Set("linked_tenant_key = ?", linked)
				existing.LinkedTenantKey = linked
			}
			if !record.IssuedAt.IsZero() {
				update = update.Set("issued_at = ?", record.IssuedAt.UTC())
				existing.IssuedAt = record.IssuedAt.UTC()
			}
			if _, err := update.Exec(ctx); err != nil {
				return err
			}
			existing.AccessToken = record.AccessToken
			existing.UpdatedAt = now
			saved = existing.toDomain()
			return nil
		}

		issuedAt := record.IssuedAt
		if issuedAt.IsZero() {
			issuedAt = now
		}
		inserted, createErr := s.repo.CreateTx(ctx, tx, &credentialRecord{
			ID:              uuid.NewString(),
			Platform:        string(record.Platform),
			TenantKey:       tenantKey,
			LinkedTenantKey: strings.TrimSpace(record.LinkedTenantKey),
			AccessToken:     record.AccessToken,
			RefreshToken:    record.RefreshToken,
			PublicKey:       record.PublicKey,
			IssuedAt:        issuedAt.UTC(),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if createErr != nil {
			return createErr
		}
		saved = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.CredentialRecord{}, err
	}
	return saved, nil
}
