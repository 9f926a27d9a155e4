package core

import (
	"strings"
	"time"
)

// Platform identifies one of the two integrated providers.
type Platform string

const (
	PlatformGHL Platform = "ghl"
	PlatformMP  Platform = "mercadopago"
)

func NormalizePlatform(value string) Platform {
	return Platform(strings.TrimSpace(strings.ToLower(value)))
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformGHL, PlatformMP:
		return true
	default:
		return false
	}
}

// CredentialRecord holds the OAuth tokens issued to one tenant on one
// platform. At most one record exists per (platform, tenant_key); token
// rotation replaces the record in place, it never deletes it.
//
// TenantKey is the platform's own account identifier: the location id for
// GHL, the seller's user id for Mercado Pago. LinkedTenantKey carries the
// CRM location an MP credential was onboarded for, so location-scoped
// callers can still find it.
type CredentialRecord struct {
	ID              string
	Platform        Platform
	TenantKey       string
	LinkedTenantKey string
	AccessToken     string
	RefreshToken    string
	PublicKey       string
	IssuedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FlowToken binds one onboarding attempt across the two OAuth redirects.
// ResolvedTenantKey stays empty until the GHL leg completes; a token without
// a resolved tenant key is never proof of a completed first leg.
type FlowToken struct {
	Token             string
	ResolvedTenantKey string
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

func (t FlowToken) Resolved() bool {
	return strings.TrimSpace(t.ResolvedTenantKey) != ""
}

// Contact is the local projection of a GHL contact.
type Contact struct {
	LocalID    string
	ExternalID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	LocationID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Appointment is the local projection of a GHL calendar appointment. It is
// owned by a Contact and cascade-deleted with it.
type Appointment struct {
	LocalID        string
	ExternalID     string
	ContactLocalID string
	LocationID     string
	CalendarID     string
	Title          string
	Status         string
	AssignedUserID string
	Notes          string
	Source         string
	StartTime      *time.Time
	EndTime        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// PaymentPreference is the local projection of an MP checkout preference. It
// references its Appointment and Contact by external correlation key rather
// than by foreign key, because payment webhooks may arrive before the local
// appointment row exists. PaymentReference is the idempotency key for the
// payment-completion path: once set together with the paid status, reapplying
// "mark paid" is a no-op.
type PaymentPreference struct {
	LocalID          string
	AppointmentKey   string
	ContactKey       string
	PreferenceID     string
	InitPoint        string
	Amount           float64
	Status           string
	PaymentReference string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p PaymentPreference) Paid() bool {
	return strings.TrimSpace(p.Status) == PaymentStatusPaid
}

const (
	DiscrepancyStatusMismatch = "status_mismatch"
	DiscrepancyMissingLocally = "missing_locally"
)

// Discrepancy is one detected divergence between the local payment ledger and
// MP's. The reconciliation pass reports discrepancies, it never corrects them.
type Discrepancy struct {
	Kind             string
	PaymentReference string
	LocalStatus      string
	RemoteStatus     string
	Amount           float64
}

// EntityKind is the canonical entity classification of an inbound webhook.
type EntityKind string

const (
	EntityContact     EntityKind = "contact"
	EntityAppointment EntityKind = "appointment"
	EntityPayment     EntityKind = "payment"
)

// CanonicalEvent is the single internal shape every provider payload is
// normalized into before any business logic runs. Provider shape sniffing
// stays inside the per-platform normalizers.
type CanonicalEvent struct {
	Platform    Platform
	Kind        EntityKind
	ExternalID  string
	Synthetic   bool
	NeedsDetail bool
	Contact     *ContactPayload
	Appointment *AppointmentPayload
	Payment     *PaymentPayload
}

type ContactPayload struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	LocationID string
}

type AppointmentPayload struct {
	ContactExternalID string
	LocationID        string
	CalendarID        string
	Title             string
	Status            string
	AssignedUserID    string
	Notes             string
	Source            string
	StartTime         *time.Time
	EndTime           *time.Time
}

type PaymentPayload struct {
	PaymentID         string
	Status            string
	ExternalReference string
	PreferenceID      string
	Amount            float64
}

// AppointmentReferencePrefix prefixes every external reference this service
// writes into a checkout preference, binding the payment back to a local
// appointment.
const AppointmentReferencePrefix = "appointment_"

// AppointmentReference builds the external reference for an appointment key.
func AppointmentReference(appointmentKey string) string {
	return AppointmentReferencePrefix + strings.TrimSpace(appointmentKey)
}

// ParseAppointmentReference extracts the appointment key from an external
// reference, reporting whether the reference used our format.
func ParseAppointmentReference(reference string) (string, bool) {
	reference = strings.TrimSpace(reference)
	if !strings.HasPrefix(reference, AppointmentReferencePrefix) {
		return "", false
	}
	key := strings.TrimPrefix(reference, AppointmentReferencePrefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// RemotePayment is MP's authoritative view of one payment, as returned by the
// payments search and detail endpoints.
type RemotePayment struct {
	ID                string
	Status            string
	ExternalReference string
	Amount            float64
}

// TokenSet is the normalized result of an OAuth token endpoint call.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TenantKey    string
	PublicKey    string
	Raw          map[string]any
}
