package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/BETO-17/caso-mercadopago-GHL/credentials"
	glog "github.com/goliatone/go-logger/glog"
)

// Outcome classifies what ingestion did with one webhook delivery. Every
// outcome acknowledges the delivery; providers retry only on transport-level
// failures, never on business-level ones.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeUnresolvable   Outcome = "unresolvable"
)

// Result reports one processed delivery.
type Result struct {
	Outcome    Outcome
	Kind       core.EntityKind
	ExternalID string
	Detail     string
}

// PaymentSideEffects receives the post-transition work after a payment is
// marked paid. Implementations are best effort: ingestion never rolls back a
// local transition because a side effect failed.
type PaymentSideEffects interface {
	PaymentCompleted(ctx context.Context, tenantKey string, pref core.PaymentPreference) error
}

// IngestRequest is one raw webhook delivery scoped to a tenant.
type IngestRequest struct {
	Platform  core.Platform
	TenantKey string
	Body      []byte
}

// Ingestor runs every inbound webhook through the same pipeline: normalize,
// correlate against local state, check idempotency, apply the change, then
// dispatch side effects. Only the apply step writes; the paid status is
// absorbing and is never overwritten by later deliveries.
type Ingestor struct {
	contacts     core.ContactStore
	appointments core.AppointmentStore
	payments     core.PaymentPreferenceStore
	credentials  *credentials.Service
	paymentsAPI  core.PSPPaymentsClient
	sideEffects  PaymentSideEffects
	normalizers  map[core.Platform]core.WebhookNormalizer
	logger       core.Logger
	now          func() time.Time
}

type Config struct {
	Contacts     core.ContactStore
	Appointments core.AppointmentStore
	Payments     core.PaymentPreferenceStore
	Credentials  *credentials.Service
	PaymentsAPI  core.PSPPaymentsClient
	SideEffects  PaymentSideEffects
	Normalizers  map[core.Platform]core.WebhookNormalizer
	Logger       core.Logger
	Now          func() time.Time
}

func New(cfg Config) (*Ingestor, error) {
	if cfg.Contacts == nil || cfg.Appointments == nil || cfg.Payments == nil {
		return nil, fmt.Errorf("webhooks: contact, appointment and payment stores are required")
	}
	if len(cfg.Normalizers) == 0 {
		return nil, fmt.Errorf("webhooks: at least one normalizer is required")
	}
	normalizers := make(map[core.Platform]core.WebhookNormalizer, len(cfg.Normalizers))
	for platform, normalizer := range cfg.Normalizers {
		if normalizer == nil {
			continue
		}
		normalizers[platform] = normalizer
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ingestor{
		contacts:     cfg.Contacts,
		appointments: cfg.Appointments,
		payments:     cfg.Payments,
		credentials:  cfg.Credentials,
		paymentsAPI:  cfg.PaymentsAPI,
		sideEffects:  cfg.SideEffects,
		normalizers:  normalizers,
		logger:       glog.Ensure(cfg.Logger),
		now:          now,
	}, nil
}

// Ingest processes one delivery. An error return means the delivery could not
// be safely acknowledged and the provider should redeliver; every Result with
// a nil error is a final acknowledgment.
func (i *Ingestor) Ingest(ctx context.Context, request IngestRequest) (Result, error) {
	if i == nil {
		return Result{}, fmt.Errorf("webhooks: ingestor is nil")
	}
	normalizer, ok := i.normalizers[request.Platform]
	if !ok {
		return Result{}, fmt.Errorf("webhooks: no normalizer for platform %q", request.Platform)
	}

	event, err := normalizer.NormalizeEvent(request.Body)
	if err != nil {
		core.LogWarn(ctx, i.logger, "webhook body unresolvable", map[string]any{
			"platform": string(request.Platform),
		})
		return Result{Outcome: OutcomeUnresolvable, Detail: err.Error()}, nil
	}

	switch event.Kind {
	case core.EntityContact:
		return i.applyContact(ctx, event)
	case core.EntityAppointment:
		return i.applyAppointment(ctx, event)
	case core.EntityPayment:
		return i.applyPayment(ctx, request.TenantKey, event)
	default:
		return Result{Outcome: OutcomeUnresolvable, Detail: fmt.Sprintf("unknown entity kind %q", event.Kind)}, nil
	}
}

func (i *Ingestor) applyContact(ctx context.Context, event core.CanonicalEvent) (Result, error) {
	if event.Contact == nil {
		return Result{Outcome: OutcomeUnresolvable, Kind: event.Kind, Detail: "contact event without payload"}, nil
	}

	contact := core.Contact{
		ExternalID: event.ExternalID,
		FirstName:  event.Contact.FirstName,
		LastName:   event.Contact.LastName,
		Email:      event.Contact.Email,
		Phone:      event.Contact.Phone,
		LocationID: event.Contact.LocationID,
	}
	if existing, err := i.contacts.GetByExternalID(ctx, event.ExternalID); err == nil {
		contact.LocalID = existing.LocalID
		contact.CreatedAt = existing.CreatedAt
	}
	if _, err := i.contacts.Upsert(ctx, contact); err != nil {
		return Result{}, fmt.Errorf("webhooks: upsert contact %s: %w", event.ExternalID, err)
	}

	core.LogInfo(ctx, i.logger, "contact synchronized", map[string]any{"external_id": event.ExternalID})
	return Result{Outcome: OutcomeApplied, Kind: event.Kind, ExternalID: event.ExternalID}, nil
}

func (i *Ingestor) applyAppointment(ctx context.Context, event core.CanonicalEvent) (Result, error) {
	if event.Appointment == nil {
		return Result{Outcome: OutcomeUnresolvable, Kind: event.Kind, Detail: "appointment event without payload"}, nil
	}
	// Events with a synthesized placeholder id carry nothing worth
	// persisting; acknowledge them so the provider stops redelivering.
	if event.Synthetic {
		core.LogWarn(ctx, i.logger, "appointment event without id acknowledged", map[string]any{
			"external_id": event.ExternalID,
		})
		return Result{Outcome: OutcomeUnresolvable, Kind: event.Kind, ExternalID: event.ExternalID, Detail: "synthesized placeholder id"}, nil
	}

	contact, err := i.contacts.GetByExternalID(ctx, event.Appointment.ContactExternalID)
	if err != nil {
		core.LogWarn(ctx, i.logger, "appointment references unknown contact", map[string]any{
			"external_id": event.ExternalID,
			"contact_id":  event.Appointment.ContactExternalID,
		})
		return Result{Outcome: OutcomeNotFound, Kind: event.Kind, ExternalID: event.ExternalID, Detail: "contact not found"}, nil
	}

	appointment := core.Appointment{
		ExternalID:     event.ExternalID,
		ContactLocalID: contact.LocalID,
		LocationID:     event.Appointment.LocationID,
		CalendarID:     event.Appointment.CalendarID,
		Title:          event.Appointment.Title,
		Status:         event.Appointment.Status,
		AssignedUserID: event.Appointment.AssignedUserID,
		Notes:          event.Appointment.Notes,
		Source:         event.Appointment.Source,
		StartTime:      event.Appointment.StartTime,
		EndTime:        event.Appointment.EndTime,
	}
	if existing, err := i.appointments.GetByExternalID(ctx, event.ExternalID); err == nil {
		appointment.LocalID = existing.LocalID
		appointment.CreatedAt = existing.CreatedAt
	}
	if _, err := i.appointments.Upsert(ctx, appointment); err != nil {
		return Result{}, fmt.Errorf("webhooks: upsert appointment %s: %w", event.ExternalID, err)
	}

	core.LogInfo(ctx, i.logger, "appointment synchronized", map[string]any{
		"external_id": event.ExternalID,
	})
	return Result{Outcome: OutcomeApplied, Kind: event.Kind, ExternalID: event.ExternalID}, nil
}

func (i *Ingestor) applyPayment(ctx context.Context, tenantKey string, event core.CanonicalEvent) (Result, error) {
	if event.Payment == nil {
		return Result{Outcome: OutcomeUnresolvable, Kind: event.Kind, Detail: "payment event without payload"}, nil
	}
	payment := *event.Payment

	// Thin notifications carry only the payment id; fetch the rest before
	// touching local state. Failing here is the one non-acknowledged path
	// on the payment pipeline, because redelivery genuinely helps.
	if event.NeedsDetail {
		detail, err := i.fetchPaymentDetail(ctx, tenantKey, payment.PaymentID)
		if err != nil {
			return Result{}, fmt.Errorf("webhooks: payment detail fetch for %s: %w", payment.PaymentID, err)
		}
		payment.Status = detail.Status
		payment.ExternalReference = detail.ExternalReference
		payment.Amount = detail.Amount
	}

	pref, found, err := i.correlatePayment(ctx, payment)
	if err != nil {
		return Result{}, err
	}
	if !found {
		core.LogWarn(ctx, i.logger, "payment without local preference", map[string]any{
			"payment_id":         payment.PaymentID,
			"external_reference": payment.ExternalReference,
		})
		return Result{Outcome: OutcomeNotFound, Kind: event.Kind, ExternalID: payment.PaymentID, Detail: "preference not found"}, nil
	}

	// Idempotency: a delivery for an already recorded payment, or any
	// delivery against a paid preference, changes nothing.
	if pref.PaymentReference == payment.PaymentID || pref.Paid() {
		return Result{Outcome: OutcomeAlreadyApplied, Kind: event.Kind, ExternalID: payment.PaymentID}, nil
	}

	if payment.Status == "approved" {
		transitioned, err := i.payments.MarkPaid(ctx, pref.LocalID, payment.PaymentID)
		if err != nil {
			return Result{}, fmt.Errorf("webhooks: mark preference %s paid: %w", pref.LocalID, err)
		}
		if !transitioned {
			// A concurrent delivery won the conditional write.
			return Result{Outcome: OutcomeAlreadyApplied, Kind: event.Kind, ExternalID: payment.PaymentID}, nil
		}

		pref.Status = core.PaymentStatusPaid
		pref.PaymentReference = payment.PaymentID
		i.dispatchSideEffects(ctx, tenantKey, pref)

		core.LogInfo(ctx, i.logger, "payment approved", map[string]any{
			"payment_id":      payment.PaymentID,
			"appointment_key": pref.AppointmentKey,
		})
		return Result{Outcome: OutcomeApplied, Kind: event.Kind, ExternalID: payment.PaymentID}, nil
	}

	if err := i.payments.UpdateStatus(ctx, pref.LocalID, payment.Status); err != nil {
		return Result{}, fmt.Errorf("webhooks: update preference %s status: %w", pref.LocalID, err)
	}
	core.LogInfo(ctx, i.logger, "payment status recorded", map[string]any{
		"payment_id": payment.PaymentID,
		"status":     payment.Status,
	})
	return Result{Outcome: OutcomeApplied, Kind: event.Kind, ExternalID: payment.PaymentID}, nil
}

func (i *Ingestor) fetchPaymentDetail(ctx context.Context, tenantKey string, paymentID string) (core.RemotePayment, error) {
	if i.paymentsAPI == nil {
		return core.RemotePayment{}, fmt.Errorf("payments api is not configured")
	}
	if i.credentials == nil {
		return core.RemotePayment{}, fmt.Errorf("credentials service is not configured")
	}

	var detail core.RemotePayment
	err := i.credentials.WithAuthRetry(ctx, core.PlatformMP, tenantKey, func(ctx context.Context, accessToken string) error {
		fetched, err := i.paymentsAPI.GetPayment(ctx, accessToken, paymentID)
		if err != nil {
			return err
		}
		detail = fetched
		return nil
	})
	return detail, err
}

func (i *Ingestor) correlatePayment(ctx context.Context, payment core.PaymentPayload) (core.PaymentPreference, bool, error) {
	if appointmentKey, ok := core.ParseAppointmentReference(payment.ExternalReference); ok {
		pref, err := i.payments.GetByAppointmentKey(ctx, appointmentKey)
		if err == nil {
			return pref, true, nil
		}
		if !core.IsNotFound(err) {
			return core.PaymentPreference{}, false, fmt.Errorf("webhooks: lookup preference for appointment %s: %w", appointmentKey, err)
		}
	}
	if preferenceID := strings.TrimSpace(payment.PreferenceID); preferenceID != "" {
		pref, err := i.payments.GetByPreferenceID(ctx, preferenceID)
		if err == nil {
			return pref, true, nil
		}
		if !core.IsNotFound(err) {
			return core.PaymentPreference{}, false, fmt.Errorf("webhooks: lookup preference %s: %w", preferenceID, err)
		}
	}
	return core.PaymentPreference{}, false, nil
}

func (i *Ingestor) dispatchSideEffects(ctx context.Context, tenantKey string, pref core.PaymentPreference) {
	if i.sideEffects == nil {
		return
	}
	if err := i.sideEffects.PaymentCompleted(ctx, tenantKey, pref); err != nil {
		core.LogError(ctx, i.logger, "payment side effects failed", map[string]any{
			"appointment_key":   pref.AppointmentKey,
			"payment_reference": pref.PaymentReference,
		})
	}
}
