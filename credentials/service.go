package credentials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service mediates every credential read and rotation. Domain packages never
// touch the store or the OAuth clients directly: reads go through Get, and
// authenticated remote calls go through WithAuthRetry so an expired access
// token is refreshed exactly once per call.
type Service struct {
	store  core.CredentialStore
	oauth  map[core.Platform]core.OAuthClient
	logger core.Logger
	now    func() time.Time
}

type Config struct {
	Store  core.CredentialStore
	OAuth  map[core.Platform]core.OAuthClient
	Logger core.Logger
	Now    func() time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("credentials: store is required")
	}
	oauth := make(map[core.Platform]core.OAuthClient, len(cfg.OAuth))
	for platform, client := range cfg.OAuth {
		if client == nil {
			continue
		}
		oauth[platform] = client
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:  cfg.Store,
		oauth:  oauth,
		logger: glog.Ensure(cfg.Logger),
		now:    now,
	}, nil
}

// Get returns the stored credential for (platform, tenantKey). A miss is
// always surfaced as a credential-not-found error regardless of how the
// underlying store reports it.
func (s *Service) Get(ctx context.Context, platform core.Platform, tenantKey string) (core.CredentialRecord, error) {
	if s == nil {
		return core.CredentialRecord{}, fmt.Errorf("credentials: service is nil")
	}
	tenantKey = strings.TrimSpace(tenantKey)
	if !platform.Valid() || tenantKey == "" {
		return core.CredentialRecord{}, fmt.Errorf("credentials: platform and tenant key are required")
	}

	record, err := s.store.Get(ctx, platform, tenantKey)
	if err != nil {
		if core.IsCredentialNotFound(err) {
			return core.CredentialRecord{}, err
		}
		return core.CredentialRecord{}, goerrors.Wrap(err, goerrors.CategoryNotFound,
			fmt.Sprintf("credentials: no %s record for tenant %s", platform, tenantKey)).
			WithTextCode(core.ErrorCredentialNotFound)
	}
	return record, nil
}

// Upsert stores record, stamping IssuedAt when the caller left it zero.
func (s *Service) Upsert(ctx context.Context, record core.CredentialRecord) (core.CredentialRecord, error) {
	if s == nil {
		return core.CredentialRecord{}, fmt.Errorf("credentials: service is nil")
	}
	if !record.Platform.Valid() {
		return core.CredentialRecord{}, fmt.Errorf("credentials: platform %q is not supported", record.Platform)
	}
	record.TenantKey = strings.TrimSpace(record.TenantKey)
	if record.TenantKey == "" {
		return core.CredentialRecord{}, fmt.Errorf("credentials: tenant key is required")
	}
	if strings.TrimSpace(record.AccessToken) == "" {
		return core.CredentialRecord{}, fmt.Errorf("credentials: access token is required")
	}
	if record.IssuedAt.IsZero() {
		record.IssuedAt = s.now()
	}
	return s.store.Upsert(ctx, record)
}

// Refresh rotates the stored tokens for (platform, tenantKey) through the
// platform's refresh grant. On provider failure the stored record is left
// untouched and a refresh-failed error is returned; the caller decides whether
// the tenant needs re-onboarding.
func (s *Service) Refresh(ctx context.Context, platform core.Platform, tenantKey string) (core.CredentialRecord, error) {
	if s == nil {
		return core.CredentialRecord{}, fmt.Errorf("credentials: service is nil")
	}
	record, err := s.Get(ctx, platform, tenantKey)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	client := s.oauth[platform]
	if client == nil {
		return core.CredentialRecord{}, fmt.Errorf("credentials: no oauth client for platform %q", platform)
	}
	if strings.TrimSpace(record.RefreshToken) == "" {
		return core.CredentialRecord{}, core.NewRefreshFailed(
			fmt.Sprintf("credentials: %s record for tenant %s has no refresh token", platform, tenantKey),
		)
	}

	tokens, err := client.Refresh(ctx, record.RefreshToken)
	if err != nil {
		core.LogWarn(ctx, s.logger, "credential refresh failed", map[string]any{
			"platform":   string(platform),
			"tenant_key": tenantKey,
		})
		if core.IsRefreshFailed(err) {
			return core.CredentialRecord{}, err
		}
		return core.CredentialRecord{}, goerrors.Wrap(err, goerrors.CategoryExternal,
			fmt.Sprintf("credentials: refresh rejected for %s tenant %s", platform, tenantKey)).
			WithTextCode(core.ErrorRefreshFailed)
	}
	if strings.TrimSpace(tokens.AccessToken) == "" {
		return core.CredentialRecord{}, core.NewRefreshFailed(
			fmt.Sprintf("credentials: refresh for %s tenant %s returned no access token", platform, tenantKey),
		)
	}

	record.AccessToken = tokens.AccessToken
	if strings.TrimSpace(tokens.RefreshToken) != "" {
		record.RefreshToken = tokens.RefreshToken
	}
	if strings.TrimSpace(tokens.PublicKey) != "" {
		record.PublicKey = tokens.PublicKey
	}
	record.IssuedAt = s.now()

	stored, err := s.store.Upsert(ctx, record)
	if err != nil {
		return core.CredentialRecord{}, fmt.Errorf("credentials: store rotated tokens: %w", err)
	}

	core.LogInfo(ctx, s.logger, "credential refreshed", map[string]any{
		"platform":   string(platform),
		"tenant_key": tenantKey,
	})
	return stored, nil
}

// WithAuthRetry runs call with the tenant's current access token. When the
// call fails with an authorization error the token is refreshed once and the
// call retried once; any other failure, and any failure after the retry, is
// returned as-is.
func (s *Service) WithAuthRetry(ctx context.Context, platform core.Platform, tenantKey string, call func(ctx context.Context, accessToken string) error) error {
	if s == nil {
		return fmt.Errorf("credentials: service is nil")
	}
	if call == nil {
		return fmt.Errorf("credentials: call is required")
	}

	record, err := s.Get(ctx, platform, tenantKey)
	if err != nil {
		return err
	}

	err = call(ctx, record.AccessToken)
	if err == nil || !core.IsUnauthorized(err) {
		return err
	}

	refreshed, refreshErr := s.Refresh(ctx, platform, tenantKey)
	if refreshErr != nil {
		return refreshErr
	}
	return call(ctx, refreshed.AccessToken)
}
