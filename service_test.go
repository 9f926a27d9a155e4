package ghlmp_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	ghlmp "github.com/BETO-17/caso-mercadopago-GHL"
	"github.com/BETO-17/caso-mercadopago-GHL/checkout"
	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/BETO-17/caso-mercadopago-GHL/migrations"
	"github.com/BETO-17/caso-mercadopago-GHL/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool { return false }
func (c testPersistenceConfig) GetDriver() string { return c.driver }
func (c testPersistenceConfig) GetServer() string { return c.server }
func (c testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c testPersistenceConfig) GetOtelIdentifier() string { return "ghlmp-tests" }

type ghlFake struct {
	mu         sync.Mutex
	tagCalls   int
	fieldCalls int
}

func (f *ghlFake) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oauth/token" && r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "ghl-at",
				"refresh_token": "ghl-rt",
				"locationId":    "loc-1",
			})
		case strings.HasSuffix(r.URL.Path, "/tags") && r.Method == http.MethodPost:
			f.mu.Lock()
			f.tagCalls++
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{})
		case strings.HasPrefix(r.URL.Path, "/contacts/") && r.Method == http.MethodPatch:
			f.mu.Lock()
			f.fieldCalls++
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{})
		default:
			http.NotFound(w, r)
		}
	}
}

func (f *ghlFake) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tagCalls, f.fieldCalls
}

func mpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oauth/token" && r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "mp-at",
				"refresh_token": "mp-rt",
				"user_id":       123456,
			})
		case r.URL.Path == "/users/me":
			_ = json.NewEncoder(w).Encode(map[string]any{"public_key": "APP_USR-pk-1"})
		case r.URL.Path == "/checkout/preferences" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":         "pref-1",
				"init_point": "https://mp.example.com/init/pref-1",
			})
		case r.URL.Path == "/v1/payments/search":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{
					"id":                 555,
					"status":             "approved",
					"external_reference": "appointment_appt-1",
					"transaction_amount": 80.0,
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestServiceEndToEnd(t *testing.T) {
	ctx := context.Background()

	ghlServer := &ghlFake{}
	ghlSrv := httptest.NewServer(ghlServer.handler())
	defer ghlSrv.Close()
	mpSrv := httptest.NewServer(mpHandler())
	defer mpSrv.Close()

	reportDir := t.TempDir()
	cfg := core.DefaultConfig()
	cfg.PublicURL = "https://integrations.example.com"
	cfg.GHL.ClientID = "ghl-client"
	cfg.GHL.ClientSecret = "ghl-secret"
	cfg.GHL.RedirectURI = "https://integrations.example.com/oauth/ghl/callback"
	cfg.GHL.TokenURL = ghlSrv.URL + "/oauth/token"
	cfg.GHL.RefreshURL = ghlSrv.URL + "/oauth/token"
	cfg.GHL.APIBaseURL = ghlSrv.URL
	cfg.MP.ClientID = "mp-client"
	cfg.MP.ClientSecret = "mp-secret"
	cfg.MP.RedirectURI = "https://integrations.example.com/oauth/mp/callback"
	cfg.MP.TokenURL = mpSrv.URL + "/oauth/token"
	cfg.MP.APIBaseURL = mpSrv.URL
	cfg.Reconcile.ReportDir = reportDir

	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	service, err := ghlmp.New(cfg, ghlmp.Dependencies{Persistence: client})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	// Onboard one tenant across both legs.
	start, err := service.Onboarding.Start(ctx)
	if err != nil {
		t.Fatalf("start onboarding: %v", err)
	}
	crm, err := service.Onboarding.CompleteCRM(ctx, start.FlowToken, "ghl-code")
	if err != nil {
		t.Fatalf("complete crm leg: %v", err)
	}
	if crm.TenantKey != "loc-1" {
		t.Fatalf("unexpected tenant key %q", crm.TenantKey)
	}
	if crm.FlowToken == "" || crm.FlowToken == start.FlowToken {
		t.Fatalf("second leg must carry a fresh flow token, got %q", crm.FlowToken)
	}
	psp, err := service.Onboarding.CompletePSP(ctx, crm.FlowToken, "mp-code", "")
	if err != nil {
		t.Fatalf("complete psp leg: %v", err)
	}
	if psp.TenantKey != "loc-1" {
		t.Fatalf("psp leg bound to %q, want loc-1", psp.TenantKey)
	}
	if psp.ManualReview {
		t.Fatal("resolved flow must not flag manual review")
	}
	if psp.PublicKey != "APP_USR-pk-1" {
		t.Fatalf("unexpected public key %q", psp.PublicKey)
	}

	mpCred, err := service.Credentials.Get(ctx, core.PlatformMP, "loc-1")
	if err != nil {
		t.Fatalf("mp credential lookup: %v", err)
	}
	if mpCred.AccessToken != "mp-at" || mpCred.PublicKey != "APP_USR-pk-1" {
		t.Fatalf("unexpected mp credential %+v", mpCred)
	}
	if mpCred.TenantKey != "123456" || mpCred.LinkedTenantKey != "loc-1" {
		t.Fatalf("mp credential must be keyed by seller id with location linkage, got %+v", mpCred)
	}

	// Ingest the CRM webhooks that build the local projection.
	contactBody := []byte(`{"type":"ContactCreate","contact":{"id":"contact-1","firstName":"Maria","locationId":"loc-1"}}`)
	result, err := service.Ingestor.Ingest(ctx, webhooks.IngestRequest{
		Platform:  core.PlatformGHL,
		TenantKey: "loc-1",
		Body:      contactBody,
	})
	if err != nil {
		t.Fatalf("ingest contact: %v", err)
	}
	if result.Outcome != webhooks.OutcomeApplied {
		t.Fatalf("contact outcome %q", result.Outcome)
	}

	appointmentBody := []byte(`{"ghl_id":"appt-1","contactId":"contact-1","calendarId":"cal-1","appointmentStatus":"confirmed","locationId":"loc-1"}`)
	result, err = service.Ingestor.Ingest(ctx, webhooks.IngestRequest{
		Platform:  core.PlatformGHL,
		TenantKey: "loc-1",
		Body:      appointmentBody,
	})
	if err != nil {
		t.Fatalf("ingest appointment: %v", err)
	}
	if result.Outcome != webhooks.OutcomeApplied {
		t.Fatalf("appointment outcome %q", result.Outcome)
	}

	// Checkout for the appointment, then the payment webhook closes the loop.
	pref, err := service.Checkout.CreateForAppointment(ctx, checkout.Request{
		TenantKey:      "loc-1",
		AppointmentKey: "appt-1",
		ContactKey:     "contact-1",
		Amount:         80,
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if pref.PreferenceID != "pref-1" || pref.Status != core.PaymentStatusPending {
		t.Fatalf("unexpected preference %+v", pref)
	}

	paymentBody := []byte(`{"id":555,"type":"payment","status":"approved","external_reference":"appointment_appt-1","transaction_amount":80}`)
	result, err = service.Ingestor.Ingest(ctx, webhooks.IngestRequest{
		Platform:  core.PlatformMP,
		TenantKey: "loc-1",
		Body:      paymentBody,
	})
	if err != nil {
		t.Fatalf("ingest payment: %v", err)
	}
	if result.Outcome != webhooks.OutcomeApplied {
		t.Fatalf("payment outcome %q", result.Outcome)
	}

	tagCalls, fieldCalls := ghlServer.counts()
	if tagCalls != 1 || fieldCalls != 1 {
		t.Fatalf("expected one tag and one field push, got %d/%d", tagCalls, fieldCalls)
	}

	// Redelivery is absorbed without repeating side effects.
	result, err = service.Ingestor.Ingest(ctx, webhooks.IngestRequest{
		Platform:  core.PlatformMP,
		TenantKey: "loc-1",
		Body:      paymentBody,
	})
	if err != nil {
		t.Fatalf("ingest payment redelivery: %v", err)
	}
	if result.Outcome != webhooks.OutcomeAlreadyApplied {
		t.Fatalf("redelivery outcome %q", result.Outcome)
	}
	tagCalls, fieldCalls = ghlServer.counts()
	if tagCalls != 1 || fieldCalls != 1 {
		t.Fatalf("redelivery must not repeat side effects, got %d/%d", tagCalls, fieldCalls)
	}

	// The ledger now matches MP, so reconciliation reports nothing.
	run, err := service.Reconciler.Reconcile(ctx, "loc-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(run.Discrepancies) != 0 {
		t.Fatalf("expected clean reconciliation, got %+v", run.Discrepancies)
	}
	if run.ReportPath == "" {
		t.Fatal("expected report path")
	}
	if _, err := os.Stat(run.ReportPath); err != nil {
		t.Fatalf("report file: %v", err)
	}
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	messages []*core.JobExecutionMessage
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

type blockingDequeuer struct{}

func (blockingDequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestServiceSchedulesReconciliation(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	cfg := core.DefaultConfig()
	cfg.GHL.ClientID = "ghl-client"
	cfg.GHL.ClientSecret = "ghl-secret"
	cfg.MP.ClientID = "mp-client"
	cfg.MP.ClientSecret = "mp-secret"

	enqueuer := &recordingEnqueuer{}
	service, err := ghlmp.New(cfg, ghlmp.Dependencies{
		Persistence: client,
		Enqueuer:    enqueuer,
		Tenants: func(context.Context) ([]string, error) {
			return []string{"loc-1"}, nil
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	if service.Runner == nil {
		t.Fatal("runner must be configured when enqueuer and tenants are set")
	}
	if err := service.Runner.EnqueueAll(context.Background()); err != nil {
		t.Fatalf("enqueue all: %v", err)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one queued job, got %d", len(enqueuer.messages))
	}

	if _, err := service.ReconcileWorker(nil); err == nil {
		t.Fatal("worker without a dequeuer must be rejected")
	}
	worker, err := service.ReconcileWorker(blockingDequeuer{})
	if err != nil {
		t.Fatalf("reconcile worker: %v", err)
	}
	if worker == nil {
		t.Fatal("expected a worker")
	}
}

func TestServiceRejectsInvalidConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.ServiceName = ""
	if _, err := ghlmp.New(cfg, ghlmp.Dependencies{}); err == nil {
		t.Fatal("expected config validation error")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:ghlmp-service-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{driver: "sqlite3", server: dsn}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
