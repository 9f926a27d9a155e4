package sync

import (
	"context"
	"fmt"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/BETO-17/caso-mercadopago-GHL/credentials"
	command "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	// PaymentConfirmedTag is attached to a contact when their payment is
	// approved.
	PaymentConfirmedTag = "pago_confirmado"

	// PaymentStatusField is the CRM custom field mirroring the local
	// payment status.
	PaymentStatusField = "payment_status"
)

// Dispatcher pushes payment outcomes back to the CRM as a tag plus a custom
// field. It is strictly best effort: each push runs independently, failures
// are logged and reported, and nothing is retried beyond the one refresh the
// credential service performs on an expired token.
type Dispatcher struct {
	credentials *credentials.Service
	contacts    core.CRMContactClient
	logger      core.Logger
}

type Config struct {
	Credentials *credentials.Service
	Contacts    core.CRMContactClient
	Logger      core.Logger
}

func New(cfg Config) (*Dispatcher, error) {
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("sync: credentials service is required")
	}
	if cfg.Contacts == nil {
		return nil, fmt.Errorf("sync: crm contact client is required")
	}
	return &Dispatcher{
		credentials: cfg.Credentials,
		contacts:    cfg.Contacts,
		logger:      glog.Ensure(cfg.Logger),
	}, nil
}

// PaymentCompleted marks the preference's contact as paid in the CRM. Both
// writes are attempted even when the first fails; the returned error is the
// first failure seen.
func (d *Dispatcher) PaymentCompleted(ctx context.Context, tenantKey string, pref core.PaymentPreference) error {
	if d == nil {
		return fmt.Errorf("sync: dispatcher is nil")
	}

	tagErr := d.ApplyTag(ctx, ApplyTagMessage{
		TenantKey: tenantKey,
		ContactID: pref.ContactKey,
		Tag:       PaymentConfirmedTag,
	})
	fieldErr := d.SetField(ctx, SetFieldMessage{
		TenantKey: tenantKey,
		ContactID: pref.ContactKey,
		Field:     PaymentStatusField,
		Value:     core.PaymentStatusPaid,
	})

	if tagErr != nil {
		return tagErr
	}
	return fieldErr
}

// ApplyTag executes one validated tag push.
func (d *Dispatcher) ApplyTag(ctx context.Context, msg ApplyTagMessage) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	err := d.credentials.WithAuthRetry(ctx, core.PlatformGHL, msg.TenantKey, func(ctx context.Context, accessToken string) error {
		return d.contacts.AddTag(ctx, accessToken, msg.ContactID, msg.Tag)
	})
	if err != nil {
		core.LogWarn(ctx, d.logger, "tag push failed", map[string]any{
			"tenant_key": msg.TenantKey,
			"contact_id": msg.ContactID,
			"tag":        msg.Tag,
		})
		return fmt.Errorf("sync: apply tag %q to contact %s: %w", msg.Tag, msg.ContactID, err)
	}
	return nil
}

// SetField executes one validated custom field push.
func (d *Dispatcher) SetField(ctx context.Context, msg SetFieldMessage) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	err := d.credentials.WithAuthRetry(ctx, core.PlatformGHL, msg.TenantKey, func(ctx context.Context, accessToken string) error {
		return d.contacts.SetCustomField(ctx, accessToken, msg.ContactID, msg.Field, msg.Value)
	})
	if err != nil {
		core.LogWarn(ctx, d.logger, "custom field push failed", map[string]any{
			"tenant_key": msg.TenantKey,
			"contact_id": msg.ContactID,
			"field":      msg.Field,
		})
		return fmt.Errorf("sync: set field %q on contact %s: %w", msg.Field, msg.ContactID, err)
	}
	return nil
}
