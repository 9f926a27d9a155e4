package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestErrorConstructorsCarryStableCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      *goerrors.Error
		textCode string
		httpCode int
	}{
		{"state mismatch", NewStateMismatch("bad state"), ErrorStateMismatch, http.StatusUnauthorized},
		{"missing tenant identity", NewMissingTenantIdentity("no location"), ErrorMissingTenantIdentity, http.StatusBadGateway},
		{"authorization denied", NewAuthorizationDenied("denied"), ErrorAuthorizationDenied, http.StatusUnauthorized},
		{"refresh failed", NewRefreshFailed("refresh failed"), ErrorRefreshFailed, http.StatusBadGateway},
		{"credential not found", NewCredentialNotFound("no credential"), ErrorCredentialNotFound, http.StatusNotFound},
		{"target not found", NewTargetNotFound("no contact"), ErrorTargetNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		if tc.err.TextCode != tc.textCode {
			t.Fatalf("%s: text code %q, want %q", tc.name, tc.err.TextCode, tc.textCode)
		}
		if tc.err.Code != tc.httpCode {
			t.Fatalf("%s: http code %d, want %d", tc.name, tc.err.Code, tc.httpCode)
		}
	}
}

func TestNewRemoteCallFailedCategorizesByStatus(t *testing.T) {
	unauthorized := NewRemoteCallFailed("token rejected", http.StatusUnauthorized)
	if unauthorized.Category != goerrors.CategoryAuth {
		t.Fatalf("401 category %q", unauthorized.Category)
	}
	if !IsUnauthorized(unauthorized) {
		t.Fatal("401 remote failure must trigger the refresh retry path")
	}
	if status, ok := unauthorized.Metadata["status_code"]; !ok || status != http.StatusUnauthorized {
		t.Fatalf("missing status metadata: %v", unauthorized.Metadata)
	}

	upstream := NewRemoteCallFailed("upstream down", http.StatusBadGateway)
	if upstream.Category != goerrors.CategoryExternal {
		t.Fatalf("502 category %q", upstream.Category)
	}
	if IsUnauthorized(upstream) {
		t.Fatal("502 must not look like an authorization rejection")
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	base := NewCredentialNotFound("credential for ghl tenant \"loc-1\" not found")
	wrapped := fmt.Errorf("credentials: load tenant: %w", base)

	if !IsCredentialNotFound(wrapped) {
		t.Fatal("wrapped credential miss not detected")
	}
	if !IsNotFound(wrapped) {
		t.Fatal("credential miss must satisfy the generic not-found predicate")
	}
	if !HasTextCode(wrapped, ErrorCredentialNotFound) {
		t.Fatal("text code lost through wrapping")
	}

	rich := goerrors.Wrap(base, goerrors.CategoryExternal, "refresh attempt").WithTextCode(ErrorRefreshFailed)
	if !IsRefreshFailed(rich) {
		t.Fatal("rewrapped error must carry the outermost text code")
	}
}

func TestPredicatesRejectPlainErrors(t *testing.T) {
	plain := fmt.Errorf("connection reset")
	if IsNotFound(plain) || IsUnauthorized(plain) || IsCredentialNotFound(plain) || IsStateMismatch(plain) {
		t.Fatal("plain errors must not satisfy any predicate")
	}
	if IsNotFound(nil) || IsUnauthorized(nil) || HasTextCode(nil, ErrorTargetNotFound) {
		t.Fatal("nil must not satisfy any predicate")
	}
}
