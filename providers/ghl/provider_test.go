package ghl

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
)

func testConfig(base string) core.GHLConfig {
	return core.GHLConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.example.com/oauth/ghl/callback",
		AuthorizeURL: "https://marketplace.gohighlevel.com/oauth/chooselocation",
		TokenURL:     base + "/oauth/token",
		RefreshURL:   base + "/oauth/refresh",
		APIBaseURL:   base,
		APIVersion:   "2021-07-28",
		Scopes:       []string{"contacts.read", "contacts.write"},
	}
}

func newTestProvider(t *testing.T, base string) *Provider {
	t.Helper()
	provider, err := New(testConfig(base), nil, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return provider
}

func TestAuthorizeURLCarriesStateAndCommaScopes(t *testing.T) {
	provider := newTestProvider(t, "https://api.example.com")

	raw := provider.AuthorizeURL("flow-token-1")
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	query := parsed.Query()
	if query.Get("response_type") != "code" {
		t.Fatalf("unexpected response_type %q", query.Get("response_type"))
	}
	if query.Get("client_id") != "client-1" {
		t.Fatalf("unexpected client_id %q", query.Get("client_id"))
	}
	if query.Get("state") != "flow-token-1" {
		t.Fatalf("unexpected state %q", query.Get("state"))
	}
	if query.Get("scope") != "contacts.read,contacts.write" {
		t.Fatalf("unexpected scope %q", query.Get("scope"))
	}
}

func TestExchangeParsesLocationID(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","locationId":"loc-9"}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	tokens, err := provider.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if tokens.AccessToken != "at-1" || tokens.RefreshToken != "rt-1" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
	if tokens.TenantKey != "loc-9" {
		t.Fatalf("expected tenant key from locationId, got %q", tokens.TenantKey)
	}
	if form.Get("grant_type") != "authorization_code" || form.Get("code") != "auth-code" {
		t.Fatalf("unexpected form: %v", form)
	}
	if form.Get("client_secret") != "secret-1" {
		t.Fatal("expected client secret in form body")
	}
}

func TestExchangeRejectsMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	_, err := provider.Exchange(context.Background(), "auth-code")
	if err == nil {
		t.Fatal("expected error for response without access token")
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("expected raw payload in error, got %v", err)
	}
}

func TestRefreshUsesRefreshEndpoint(t *testing.T) {
	var path string
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2"}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	tokens, err := provider.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if path != "/oauth/refresh" {
		t.Fatalf("expected refresh endpoint, got %q", path)
	}
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "rt-1" {
		t.Fatalf("unexpected form: %v", form)
	}
	if tokens.AccessToken != "at-2" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
}

func TestRefreshFailureMapsToRefreshFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	_, err := provider.Refresh(context.Background(), "rt-1")
	if !core.IsRefreshFailed(err) {
		t.Fatalf("expected refresh failed error, got %v", err)
	}
}

func TestResolveTenantKeyPicksFirstLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Version") != "2021-07-28" {
			t.Fatalf("expected Version header, got %q", r.Header.Get("Version"))
		}
		if r.Header.Get("Authorization") != "Bearer at-1" {
			t.Fatalf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"company":{"locations":[{"id":""},{"id":"loc-7"}]}}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	tenantKey, err := provider.ResolveTenantKey(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("ResolveTenantKey returned error: %v", err)
	}
	if tenantKey != "loc-7" {
		t.Fatalf("expected loc-7, got %q", tenantKey)
	}
}

func TestResolveTenantKeyWithoutLocations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"company":{"locations":[]}}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	_, err := provider.ResolveTenantKey(context.Background(), "at-1")
	if !core.HasTextCode(err, core.ErrorMissingTenantIdentity) {
		t.Fatalf("expected missing tenant identity error, got %v", err)
	}
}

func TestAddTagPostsTagName(t *testing.T) {
	var path string
	var payload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	if err := provider.AddTag(context.Background(), "at-1", "contact-3", "pago_confirmado"); err != nil {
		t.Fatalf("AddTag returned error: %v", err)
	}
	if path != "/contacts/contact-3/tags" {
		t.Fatalf("unexpected path %q", path)
	}
	if payload["tagName"] != "pago_confirmado" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestSetCustomFieldPatchesContact(t *testing.T) {
	var method string
	var payload struct {
		CustomFields map[string]string `json:"customFields"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	if err := provider.SetCustomField(context.Background(), "at-1", "contact-3", "payment_status", "paid"); err != nil {
		t.Fatalf("SetCustomField returned error: %v", err)
	}
	if method != http.MethodPatch {
		t.Fatalf("expected PATCH, got %q", method)
	}
	if payload.CustomFields["payment_status"] != "paid" {
		t.Fatalf("unexpected payload: %v", payload.CustomFields)
	}
}

func TestAddTagUnauthorizedIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid JWT"}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	err := provider.AddTag(context.Background(), "stale", "contact-3", "pago_confirmado")
	if !core.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestCreateContactRecoversDuplicate(t *testing.T) {
	var putPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"This location does not allow duplicated contacts","meta":{"contactId":"contact-old"}}`))
		case http.MethodPut:
			putPath = r.URL.Path + "?" + r.URL.RawQuery
			_, _ = w.Write([]byte(`{"contact":{"id":"contact-old"}}`))
		default:
			t.Fatalf("unexpected method %q", r.Method)
		}
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	result, err := provider.CreateContact(context.Background(), "at-1", "loc-9", core.ContactPayload{
		FirstName: "Ana",
		Email:     "ana@example.com",
	})
	if err != nil {
		t.Fatalf("CreateContact returned error: %v", err)
	}
	if !result.Updated || result.ExternalID != "contact-old" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if putPath != "/contacts/contact-old?locationId=loc-9" {
		t.Fatalf("unexpected update path %q", putPath)
	}
}

func TestNormalizeEventContactShape(t *testing.T) {
	event, err := Normalizer{}.NormalizeEvent([]byte(`{
		"contact": {"id":"contact-5","firstName":"Ana","email":"ana@example.com","locationId":"loc-9"}
	}`))
	if err != nil {
		t.Fatalf("NormalizeEvent returned error: %v", err)
	}
	if event.Kind != core.EntityContact || event.ExternalID != "contact-5" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Contact == nil || event.Contact.FirstName != "Ana" {
		t.Fatalf("unexpected contact payload: %+v", event.Contact)
	}
}

func TestNormalizeEventFlatAppointmentShape(t *testing.T) {
	event, err := Normalizer{}.NormalizeEvent([]byte(`{
		"id":"appt-1","calendarId":"cal-1","contactId":"contact-5",
		"appointmentStatus":"confirmed","startTime":"2025-06-01T10:00:00Z","endTime":"2025-06-01T10:30:00Z"
	}`))
	if err != nil {
		t.Fatalf("NormalizeEvent returned error: %v", err)
	}
	if event.Kind != core.EntityAppointment || event.ExternalID != "appt-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Synthetic {
		t.Fatal("expected non-synthetic event when id present")
	}
	if event.Appointment == nil || event.Appointment.StartTime == nil {
		t.Fatalf("unexpected appointment payload: %+v", event.Appointment)
	}
}

func TestNormalizeEventSynthesizesAppointmentID(t *testing.T) {
	event, err := Normalizer{}.NormalizeEvent([]byte(`{
		"appointment": {"calendarId":"cal-1","contactId":"contact-5","appointmentStatus":"confirmed"}
	}`))
	if err != nil {
		t.Fatalf("NormalizeEvent returned error: %v", err)
	}
	if !event.Synthetic {
		t.Fatal("expected synthetic event when id absent")
	}
	if !strings.HasPrefix(event.ExternalID, "test-") {
		t.Fatalf("unexpected synthesized id %q", event.ExternalID)
	}
	if event.Appointment.Title != "Cita" || event.Appointment.Status != "confirmed" {
		t.Fatalf("unexpected defaults: %+v", event.Appointment)
	}
}

func TestNormalizeEventUnknownShape(t *testing.T) {
	_, err := Normalizer{}.NormalizeEvent([]byte(`{"type":"mystery"}`))
	if err == nil {
		t.Fatal("expected error for unknown shape")
	}
}
