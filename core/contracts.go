package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialStore persists per-tenant OAuth credentials. Upsert keys on
// (platform, tenant_key); records are superseded in place, never deleted.
// CredentialStore persists one credential row per (platform, tenant_key).
// Get accepts either the platform's own tenant key or a linked tenant key,
// so MP credentials keyed by seller user id stay reachable by CRM location.
type CredentialStore interface {
	Get(ctx context.Context, platform Platform, tenantKey string) (CredentialRecord, error)
	Upsert(ctx context.Context, record CredentialRecord) (CredentialRecord, error)
}

// FlowTokenStore persists onboarding correlation tokens. Resolve sets the
// tenant key produced by the first leg; Delete consumes the token when the
// second leg completes.
type FlowTokenStore interface {
	Save(ctx context.Context, token FlowToken) error
	Get(ctx context.Context, token string) (FlowToken, error)
	Resolve(ctx context.Context, token string, tenantKey string) error
	Delete(ctx context.Context, token string) error
}

type ContactStore interface {
	GetByExternalID(ctx context.Context, externalID string) (Contact, error)
	Upsert(ctx context.Context, contact Contact) (Contact, error)
}

type AppointmentStore interface {
	GetByExternalID(ctx context.Context, externalID string) (Appointment, error)
	Upsert(ctx context.Context, appointment Appointment) (Appointment, error)
}

// PaymentPreferenceStore persists the local payment ledger. MarkPaid is the
// single conditional write that establishes the idempotency key: it succeeds
// only when the row is not already terminal, and reports whether this call
// performed the transition.
type PaymentPreferenceStore interface {
	Create(ctx context.Context, pref PaymentPreference) (PaymentPreference, error)
	GetByAppointmentKey(ctx context.Context, key string) (PaymentPreference, error)
	GetByPreferenceID(ctx context.Context, preferenceID string) (PaymentPreference, error)
	GetByPaymentReference(ctx context.Context, reference string) (PaymentPreference, error)
	MarkPaid(ctx context.Context, localID string, paymentReference string) (bool, error)
	UpdateStatus(ctx context.Context, localID string, status string) error
}

// OAuthClient is the per-platform OAuth surface: building the authorization
// redirect, exchanging an authorization code, and refreshing a token.
type OAuthClient interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (TokenSet, error)
}

// CRMIdentityResolver is the GHL "who am I" fallback used when the token
// response does not carry a location id.
type CRMIdentityResolver interface {
	ResolveTenantKey(ctx context.Context, accessToken string) (string, error)
}

// PSPIdentityResolver fetches the MP account's public identity.
type PSPIdentityResolver interface {
	PublicKey(ctx context.Context, accessToken string) (string, error)
}

// CRMContactClient covers the outbound GHL contact calls made after a payment
// completes.
type CRMContactClient interface {
	AddTag(ctx context.Context, accessToken string, contactID string, tag string) error
	SetCustomField(ctx context.Context, accessToken string, contactID string, field string, value string) error
}

// PSPPaymentsClient covers the MP read surface used by ingestion (detail
// fetch for thin webhook payloads) and reconciliation (trailing-window
// search).
type PSPPaymentsClient interface {
	GetPayment(ctx context.Context, accessToken string, paymentID string) (RemotePayment, error)
	SearchPayments(ctx context.Context, accessToken string, createdFrom time.Time, limit int) ([]RemotePayment, error)
}

// WebhookNormalizer turns one provider-specific webhook body into the
// canonical event shape. Normalizers never perform I/O; payloads that need a
// follow-up detail fetch mark the event NeedsDetail instead.
type WebhookNormalizer interface {
	NormalizeEvent(body []byte) (CanonicalEvent, error)
}

// JobExecutionMessage mirrors the queue contract used to schedule background
// work without binding domain packages to the queue implementation.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

// JobDelivery is one dequeued message plus its settlement controls.
type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}
