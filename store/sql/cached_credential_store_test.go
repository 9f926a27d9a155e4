package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type countingCredentialStore struct {
	mu      sync.Mutex
	gets    int
	records map[string]core.CredentialRecord
}

func newCountingCredentialStore() *countingCredentialStore {
	return &countingCredentialStore{records: map[string]core.CredentialRecord{}}
}

func (s *countingCredentialStore) key(platform core.Platform, tenantKey string) string {
	return string(platform) + "::" + tenantKey
}

func (s *countingCredentialStore) Get(_ context.Context, platform core.Platform, tenantKey string) (core.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	record, ok := s.records[s.key(platform, tenantKey)]
	if !ok {
		return core.CredentialRecord{}, core.NewCredentialNotFound("stub: credential miss")
	}
	return record, nil
}

func (s *countingCredentialStore) Upsert(_ context.Context, record core.CredentialRecord) (core.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[s.key(record.Platform, record.TenantKey)] = record
	return record, nil
}

func (s *countingCredentialStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func newTestCredentialCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCredentialCacheKey_Contract(t *testing.T) {
	key, err := CredentialCacheKey(core.PlatformGHL, "loc one")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "ghlmp::credential::v1::ghl::loc%20one"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := CredentialCacheKey(core.Platform("nope"), "loc-1"); err == nil {
		t.Fatal("expected error for unknown platform")
	}
	if _, err := CredentialCacheKey(core.PlatformGHL, "  "); err == nil {
		t.Fatal("expected error for empty tenant key")
	}
}

func TestCachedCredentialStore_ServesRepeatReadsFromCache(t *testing.T) {
	ctx := context.Background()
	base := newCountingCredentialStore()
	if _, err := base.Upsert(ctx, core.CredentialRecord{
		Platform:    core.PlatformMP,
		TenantKey:   "loc-1",
		AccessToken: "at-1",
	}); err != nil {
		t.Fatalf("seed base store: %v", err)
	}

	store, err := NewCachedCredentialStore(base, newTestCredentialCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	for i := 0; i < 3; i++ {
		record, getErr := store.Get(ctx, core.PlatformMP, "loc-1")
		if getErr != nil {
			t.Fatalf("get %d: %v", i, getErr)
		}
		if record.AccessToken != "at-1" {
			t.Fatalf("unexpected access token %q", record.AccessToken)
		}
	}
	if got := base.getCount(); got != 1 {
		t.Fatalf("expected one base read, got %d", got)
	}
}

func TestCachedCredentialStore_UpsertInvalidates(t *testing.T) {
	ctx := context.Background()
	base := newCountingCredentialStore()
	store, err := NewCachedCredentialStore(base, newTestCredentialCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	if _, err := store.Upsert(ctx, core.CredentialRecord{
		Platform:    core.PlatformGHL,
		TenantKey:   "loc-1",
		AccessToken: "at-1",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.Get(ctx, core.PlatformGHL, "loc-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	if _, err := store.Upsert(ctx, core.CredentialRecord{
		Platform:    core.PlatformGHL,
		TenantKey:   "loc-1",
		AccessToken: "at-2",
	}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	record, err := store.Get(ctx, core.PlatformGHL, "loc-1")
	if err != nil {
		t.Fatalf("get after rotate: %v", err)
	}
	if record.AccessToken != "at-2" {
		t.Fatalf("expected rotated token after invalidation, got %q", record.AccessToken)
	}
}

func TestCachedCredentialStore_PropagatesBaseMiss(t *testing.T) {
	store, err := NewCachedCredentialStore(newCountingCredentialStore(), newTestCredentialCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	if _, err := store.Get(context.Background(), core.PlatformGHL, "loc-missing"); !core.IsCredentialNotFound(err) {
		t.Fatalf("expected credential not found, got %v", err)
	}
}
