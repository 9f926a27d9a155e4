package credentials

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
)

type stubCredentialStore struct {
	records    map[string]core.CredentialRecord
	getErr     error
	upsertErr  error
	upsertSeen []core.CredentialRecord
}

func newStubCredentialStore() *stubCredentialStore {
	return &stubCredentialStore{records: map[string]core.CredentialRecord{}}
}

func credentialKey(platform core.Platform, tenantKey string) string {
	return string(platform) + "/" + tenantKey
}

func (s *stubCredentialStore) Get(_ context.Context, platform core.Platform, tenantKey string) (core.CredentialRecord, error) {
	if s.getErr != nil {
		return core.CredentialRecord{}, s.getErr
	}
	record, ok := s.records[credentialKey(platform, tenantKey)]
	if !ok {
		return core.CredentialRecord{}, core.NewCredentialNotFound("stub: miss")
	}
	return record, nil
}

func (s *stubCredentialStore) Upsert(_ context.Context, record core.CredentialRecord) (core.CredentialRecord, error) {
	if s.upsertErr != nil {
		return core.CredentialRecord{}, s.upsertErr
	}
	s.upsertSeen = append(s.upsertSeen, record)
	s.records[credentialKey(record.Platform, record.TenantKey)] = record
	return record, nil
}

type stubOAuthClient struct {
	refreshCalls  int
	refreshTokens []string
	result        core.TokenSet
	err           error
}

func (s *stubOAuthClient) AuthorizeURL(string) string { return "" }

func (s *stubOAuthClient) Exchange(context.Context, string) (core.TokenSet, error) {
	return core.TokenSet{}, fmt.Errorf("stub: exchange not expected")
}

func (s *stubOAuthClient) Refresh(_ context.Context, refreshToken string) (core.TokenSet, error) {
	s.refreshCalls++
	s.refreshTokens = append(s.refreshTokens, refreshToken)
	if s.err != nil {
		return core.TokenSet{}, s.err
	}
	return s.result, nil
}

func newTestService(t *testing.T, store *stubCredentialStore, oauth *stubOAuthClient) *Service {
	t.Helper()
	svc, err := New(Config{
		Store: store,
		OAuth: map[core.Platform]core.OAuthClient{core.PlatformMP: oauth},
		Now:   func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return svc
}

func TestServiceGetMapsMissToCredentialNotFound(t *testing.T) {
	store := newStubCredentialStore()
	store.getErr = errors.New("stub: storage exploded")
	svc := newTestService(t, store, &stubOAuthClient{})

	_, err := svc.Get(context.Background(), core.PlatformGHL, "loc-1")
	if err == nil {
		t.Fatal("expected error for missing credential")
	}
	if !core.IsCredentialNotFound(err) {
		t.Fatalf("expected credential not found, got %v", err)
	}
}

func TestServiceUpsertStampsIssuedAt(t *testing.T) {
	store := newStubCredentialStore()
	svc := newTestService(t, store, &stubOAuthClient{})

	stored, err := svc.Upsert(context.Background(), core.CredentialRecord{
		Platform:    core.PlatformGHL,
		TenantKey:   "loc-1",
		AccessToken: "at-1",
	})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if stored.IssuedAt.IsZero() {
		t.Fatal("expected IssuedAt to be stamped")
	}
}

func TestServiceRefreshRotatesTokens(t *testing.T) {
	store := newStubCredentialStore()
	store.records[credentialKey(core.PlatformMP, "user-9")] = core.CredentialRecord{
		Platform:     core.PlatformMP,
		TenantKey:    "user-9",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		PublicKey:    "pk-old",
	}
	oauth := &stubOAuthClient{result: core.TokenSet{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
	}}
	svc := newTestService(t, store, oauth)

	rotated, err := svc.Refresh(context.Background(), core.PlatformMP, "user-9")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if rotated.AccessToken != "new-access" || rotated.RefreshToken != "new-refresh" {
		t.Fatalf("unexpected rotated tokens: %+v", rotated)
	}
	if rotated.PublicKey != "pk-old" {
		t.Fatalf("expected public key to survive rotation, got %q", rotated.PublicKey)
	}
	if oauth.refreshCalls != 1 || oauth.refreshTokens[0] != "old-refresh" {
		t.Fatalf("unexpected refresh calls: %d %v", oauth.refreshCalls, oauth.refreshTokens)
	}
	if rotated.IssuedAt.IsZero() {
		t.Fatal("expected IssuedAt to be restamped")
	}
}

func TestServiceRefreshFailureLeavesRecordUntouched(t *testing.T) {
	store := newStubCredentialStore()
	store.records[credentialKey(core.PlatformMP, "user-9")] = core.CredentialRecord{
		Platform:     core.PlatformMP,
		TenantKey:    "user-9",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
	}
	oauth := &stubOAuthClient{err: errors.New("stub: provider rejected grant")}
	svc := newTestService(t, store, oauth)

	_, err := svc.Refresh(context.Background(), core.PlatformMP, "user-9")
	if err == nil {
		t.Fatal("expected refresh failure")
	}
	if !core.IsRefreshFailed(err) {
		t.Fatalf("expected refresh failed error, got %v", err)
	}
	if len(store.upsertSeen) != 0 {
		t.Fatalf("expected no writes on refresh failure, got %d", len(store.upsertSeen))
	}
	got := store.records[credentialKey(core.PlatformMP, "user-9")]
	if got.AccessToken != "old-access" {
		t.Fatalf("expected stored record untouched, got %+v", got)
	}
}

func TestWithAuthRetryRefreshesOnceOnUnauthorized(t *testing.T) {
	store := newStubCredentialStore()
	store.records[credentialKey(core.PlatformMP, "user-9")] = core.CredentialRecord{
		Platform:     core.PlatformMP,
		TenantKey:    "user-9",
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
	}
	oauth := &stubOAuthClient{result: core.TokenSet{AccessToken: "fresh", RefreshToken: "refresh-2"}}
	svc := newTestService(t, store, oauth)

	var tokensSeen []string
	err := svc.WithAuthRetry(context.Background(), core.PlatformMP, "user-9", func(_ context.Context, accessToken string) error {
		tokensSeen = append(tokensSeen, accessToken)
		if accessToken == "stale" {
			return core.NewRemoteCallFailed("stub: token expired", 401)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithAuthRetry returned error: %v", err)
	}
	if len(tokensSeen) != 2 || tokensSeen[0] != "stale" || tokensSeen[1] != "fresh" {
		t.Fatalf("unexpected token sequence: %v", tokensSeen)
	}
	if oauth.refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", oauth.refreshCalls)
	}
}

func TestWithAuthRetryDoesNotRetryNonAuthFailures(t *testing.T) {
	store := newStubCredentialStore()
	store.records[credentialKey(core.PlatformMP, "user-9")] = core.CredentialRecord{
		Platform:     core.PlatformMP,
		TenantKey:    "user-9",
		AccessToken:  "ok",
		RefreshToken: "refresh-1",
	}
	oauth := &stubOAuthClient{}
	svc := newTestService(t, store, oauth)

	calls := 0
	err := svc.WithAuthRetry(context.Background(), core.PlatformMP, "user-9", func(context.Context, string) error {
		calls++
		return core.NewRemoteCallFailed("stub: gateway timeout", 504)
	})
	if !core.HasTextCode(err, core.ErrorRemoteCallFailed) {
		t.Fatalf("expected remote failure to surface, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
	if oauth.refreshCalls != 0 {
		t.Fatalf("expected no refresh attempts, got %d", oauth.refreshCalls)
	}
}

func TestWithAuthRetrySurfacesRefreshFailure(t *testing.T) {
	store := newStubCredentialStore()
	store.records[credentialKey(core.PlatformMP, "user-9")] = core.CredentialRecord{
		Platform:     core.PlatformMP,
		TenantKey:    "user-9",
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
	}
	oauth := &stubOAuthClient{err: errors.New("stub: grant revoked")}
	svc := newTestService(t, store, oauth)

	calls := 0
	err := svc.WithAuthRetry(context.Background(), core.PlatformMP, "user-9", func(context.Context, string) error {
		calls++
		return core.NewRemoteCallFailed("stub: token expired", 401)
	})
	if !core.IsRefreshFailed(err) {
		t.Fatalf("expected refresh failed error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retry after refresh failure, got %d calls", calls)
	}
}
