package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "ghlmp::credential::v1"

// CachedCredentialStore wraps a credential store with a read-through cache.
// Webhook ingestion reads the same credential on every delivery; the cache
// keeps those reads off the database. Upsert invalidates so a refreshed
// token is visible immediately.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns the deterministic cache key contract for
// credential reads: ghlmp::credential::v1::<platform>::<tenant_key> with each
// segment URL-path escaped.
func CredentialCacheKey(platform core.Platform, tenantKey string) (string, error) {
	tenantKey = strings.TrimSpace(tenantKey)
	if !platform.Valid() {
		return "", fmt.Errorf("sqlstore: unknown platform %q", platform)
	}
	if tenantKey == "" {
		return "", fmt.Errorf("sqlstore: tenant key is required")
	}
	segments := []string{
		url.PathEscape(string(platform)),
		url.PathEscape(tenantKey),
	}
	return strings.Join(append([]string{credentialCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedCredentialStore) Get(ctx context.Context, platform core.Platform, tenantKey string) (core.CredentialRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(platform, tenantKey)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.CredentialRecord, error) {
		return s.base.Get(ctx, platform, tenantKey)
	})
}

func (s *CachedCredentialStore) Upsert(ctx context.Context, record core.CredentialRecord) (core.CredentialRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	saved, err := s.base.Upsert(ctx, record)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	// A record is cached under whichever key the reader looked it up by,
	// so both the tenant key and the linked key must be invalidated.
	keys := []string{saved.TenantKey}
	if linked := strings.TrimSpace(saved.LinkedTenantKey); linked != "" && linked != saved.TenantKey {
		keys = append(keys, linked)
	}
	for _, key := range keys {
		cacheKey, err := CredentialCacheKey(saved.Platform, key)
		if err != nil {
			return core.CredentialRecord{}, err
		}
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.CredentialRecord{}, err
		}
	}
	return saved, nil
}

var _ core.CredentialStore = (*CachedCredentialStore)(nil)
