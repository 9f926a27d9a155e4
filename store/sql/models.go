package sqlstore

import (
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:platform_credentials,alias:pc"`

	ID              string    `bun:"id,pk"`
	Platform        string    `bun:"platform,notnull"`
	TenantKey       string    `bun:"tenant_key,notnull"`
	LinkedTenantKey string    `bun:"linked_tenant_key"`
	AccessToken     string    `bun:"access_token,notnull"`
	RefreshToken    string    `bun:"refresh_token"`
	PublicKey       string    `bun:"public_key"`
	IssuedAt        time.Time `bun:"issued_at,nullzero"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) toDomain() core.CredentialRecord {
	if r == nil {
		return core.CredentialRecord{}
	}
	return core.CredentialRecord{
		ID:              r.ID,
		Platform:        core.Platform(r.Platform),
		TenantKey:       r.TenantKey,
		LinkedTenantKey: r.LinkedTenantKey,
		AccessToken:     r.AccessToken,
		RefreshToken:    r.RefreshToken,
		PublicKey:       r.PublicKey,
		IssuedAt:        r.IssuedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type flowStateRecord struct {
	bun.BaseModel `bun:"table:onboarding_flow_states,alias:ofs"`

	ID                string    `bun:"id,pk"`
	Token             string    `bun:"token,notnull"`
	ResolvedTenantKey string    `bun:"resolved_tenant_key"`
	ExpiresAt         time.Time `bun:"expires_at,nullzero"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *flowStateRecord) toDomain() core.FlowToken {
	if r == nil {
		return core.FlowToken{}
	}
	return core.FlowToken{
		Token:             r.Token,
		ResolvedTenantKey: r.ResolvedTenantKey,
		CreatedAt:         r.CreatedAt,
		ExpiresAt:         r.ExpiresAt,
	}
}

type contactRecord struct {
	bun.BaseModel `bun:"table:contacts,alias:c"`

	ID         string    `bun:"id,pk"`
	ExternalID string    `bun:"external_id,notnull"`
	FirstName  string    `bun:"first_name"`
	LastName   string    `bun:"last_name"`
	Email      string    `bun:"email"`
	Phone      string    `bun:"phone"`
	LocationID string    `bun:"location_id"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *contactRecord) toDomain() core.Contact {
	if r == nil {
		return core.Contact{}
	}
	return core.Contact{
		LocalID:    r.ID,
		ExternalID: r.ExternalID,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
		LocationID: r.LocationID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type appointmentRecord struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID             string     `bun:"id,pk"`
	ExternalID     string     `bun:"external_id,notnull"`
	ContactID      string     `bun:"contact_id,notnull"`
	LocationID     string     `bun:"location_id"`
	CalendarID     string     `bun:"calendar_id"`
	Title          string     `bun:"title"`
	Status         string     `bun:"status,notnull"`
	AssignedUserID string     `bun:"assigned_user_id"`
	Notes          string     `bun:"notes"`
	Source         string     `bun:"source"`
	StartTime      *time.Time `bun:"start_time,nullzero"`
	EndTime        *time.Time `bun:"end_time,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *appointmentRecord) toDomain() core.Appointment {
	if r == nil {
		return core.Appointment{}
	}
	appointment := core.Appointment{
		LocalID:        r.ID,
		ExternalID:     r.ExternalID,
		ContactLocalID: r.ContactID,
		LocationID:     r.LocationID,
		CalendarID:     r.CalendarID,
		Title:          r.Title,
		Status:         r.Status,
		AssignedUserID: r.AssignedUserID,
		Notes:          r.Notes,
		Source:         r.Source,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.StartTime != nil {
		startTime := *r.StartTime
		appointment.StartTime = &startTime
	}
	if r.EndTime != nil {
		endTime := *r.EndTime
		appointment.EndTime = &endTime
	}
	return appointment
}

type paymentPreferenceRecord struct {
	bun.BaseModel `bun:"table:payment_preferences,alias:pp"`

	ID               string    `bun:"id,pk"`
	AppointmentKey   string    `bun:"appointment_key,notnull"`
	ContactKey       string    `bun:"contact_key"`
	PreferenceID     string    `bun:"preference_id"`
	InitPoint        string    `bun:"init_point"`
	Amount           float64   `bun:"amount,notnull"`
	Status           string    `bun:"status,notnull"`
	PaymentReference string    `bun:"payment_reference"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *paymentPreferenceRecord) toDomain() core.PaymentPreference {
	if r == nil {
		return core.PaymentPreference{}
	}
	return core.PaymentPreference{
		LocalID:          r.ID,
		AppointmentKey:   r.AppointmentKey,
		ContactKey:       r.ContactKey,
		PreferenceID:     r.PreferenceID,
		InitPoint:        r.InitPoint,
		Amount:           r.Amount,
		Status:           r.Status,
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
