package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/BETO-17/caso-mercadopago-GHL/credentials"
	"github.com/BETO-17/caso-mercadopago-GHL/providers/mercadopago"
	glog "github.com/goliatone/go-logger/glog"
)

// PreferenceAPI is the slice of the payments client this service needs.
type PreferenceAPI interface {
	CreatePreference(ctx context.Context, accessToken string, request mercadopago.PreferenceRequest) (mercadopago.PreferenceResult, error)
}

// Service creates a checkout preference for a booked appointment and records
// the pending row in the local payment ledger. The preference's external
// reference carries the appointment key so the payment webhook can correlate
// back.
type Service struct {
	prefs       core.PaymentPreferenceStore
	api         PreferenceAPI
	credentials *credentials.Service
	logger      core.Logger

	publicURL       string
	notificationURL string
	currency        string
}

type Config struct {
	Preferences     core.PaymentPreferenceStore
	API             PreferenceAPI
	Credentials     *credentials.Service
	Logger          core.Logger
	PublicURL       string
	NotificationURL string
	Currency        string
}

func New(cfg Config) (*Service, error) {
	if cfg.Preferences == nil {
		return nil, fmt.Errorf("checkout: payment preference store is required")
	}
	if cfg.API == nil {
		return nil, fmt.Errorf("checkout: preference api is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("checkout: credentials service is required")
	}
	return &Service{
		prefs:           cfg.Preferences,
		api:             cfg.API,
		credentials:     cfg.Credentials,
		logger:          glog.Ensure(cfg.Logger),
		publicURL:       strings.TrimSpace(cfg.PublicURL),
		notificationURL: strings.TrimSpace(cfg.NotificationURL),
		currency:        strings.TrimSpace(cfg.Currency),
	}, nil
}

// Request describes one appointment checkout.
type Request struct {
	TenantKey      string
	AppointmentKey string
	ContactKey     string
	Title          string
	Amount         float64
}

// CreateForAppointment returns the existing preference when the appointment
// already has one, so re-sending a booking webhook never produces a second
// checkout link. Otherwise it registers the preference with MP and persists
// the pending ledger row.
func (s *Service) CreateForAppointment(ctx context.Context, req Request) (core.PaymentPreference, error) {
	if s == nil {
		return core.PaymentPreference{}, fmt.Errorf("checkout: service is nil")
	}
	tenantKey := strings.TrimSpace(req.TenantKey)
	if tenantKey == "" {
		return core.PaymentPreference{}, fmt.Errorf("checkout: tenant key is required")
	}
	appointmentKey := strings.TrimSpace(req.AppointmentKey)
	if appointmentKey == "" {
		return core.PaymentPreference{}, fmt.Errorf("checkout: appointment key is required")
	}
	if req.Amount <= 0 {
		return core.PaymentPreference{}, fmt.Errorf("checkout: amount must be positive")
	}

	existing, err := s.prefs.GetByAppointmentKey(ctx, appointmentKey)
	if err == nil && strings.TrimSpace(existing.PreferenceID) != "" {
		return existing, nil
	}
	if err != nil && !core.IsNotFound(err) {
		return core.PaymentPreference{}, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Cita"
	}

	var result mercadopago.PreferenceResult
	callErr := s.credentials.WithAuthRetry(ctx, core.PlatformMP, tenantKey, func(ctx context.Context, accessToken string) error {
		created, apiErr := s.api.CreatePreference(ctx, accessToken, mercadopago.PreferenceRequest{
			AppointmentKey:  appointmentKey,
			ContactKey:      strings.TrimSpace(req.ContactKey),
			Title:           title,
			Amount:          req.Amount,
			CurrencyID:      s.currency,
			PublicURL:       s.publicURL,
			NotificationURL: s.notificationURL,
		})
		if apiErr != nil {
			return apiErr
		}
		result = created
		return nil
	})
	if callErr != nil {
		return core.PaymentPreference{}, fmt.Errorf("checkout: create preference for appointment %s: %w", appointmentKey, callErr)
	}

	pref, err := s.prefs.Create(ctx, core.PaymentPreference{
		AppointmentKey: appointmentKey,
		ContactKey:     strings.TrimSpace(req.ContactKey),
		PreferenceID:   result.PreferenceID,
		InitPoint:      result.InitPoint,
		Amount:         req.Amount,
		Status:         core.PaymentStatusPending,
	})
	if err != nil {
		return core.PaymentPreference{}, err
	}

	core.LogInfo(ctx, s.logger, "checkout preference created", map[string]any{
		"tenant_key":      tenantKey,
		"appointment_key": appointmentKey,
		"preference_id":   pref.PreferenceID,
	})
	return pref, nil
}
