package ghl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/google/uuid"
)

// Normalizer maps GHL webhook bodies into canonical events. GHL sends contact
// and appointment payloads in two shapes, a nested envelope and a flat object,
// and the normalizer accepts both by preferring the top-level field and
// falling back to the nested one.
type Normalizer struct{}

var _ core.WebhookNormalizer = (*Normalizer)(nil)

type ghlWebhookBody struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	GHLID       string          `json:"ghl_id"`
	Contact     json.RawMessage `json:"contact"`
	Appointment json.RawMessage `json:"appointment"`

	CalendarID        string `json:"calendarId"`
	ContactID         string `json:"contactId"`
	LocationID        string `json:"locationId"`
	Title             string `json:"title"`
	AppointmentStatus string `json:"appointmentStatus"`
	AssignedUserID    string `json:"assignedUserId"`
	Notes             string `json:"notes"`
	Source            string `json:"source"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
}

type ghlContactBody struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	LocationID string `json:"locationId"`
}

type ghlAppointmentBody struct {
	ID                string `json:"id"`
	CalendarID        string `json:"calendarId"`
	ContactID         string `json:"contactId"`
	LocationID        string `json:"locationId"`
	Title             string `json:"title"`
	AppointmentStatus string `json:"appointmentStatus"`
	AssignedUserID    string `json:"assignedUserId"`
	Notes             string `json:"notes"`
	Source            string `json:"source"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
}

func (Normalizer) NormalizeEvent(body []byte) (core.CanonicalEvent, error) {
	var envelope ghlWebhookBody
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.CanonicalEvent{}, fmt.Errorf("providers/ghl: decode webhook body: %w", err)
	}

	if len(envelope.Contact) > 0 && string(envelope.Contact) != "null" {
		return normalizeContact(envelope.Contact)
	}
	if appointmentShaped(envelope) {
		return normalizeAppointment(envelope)
	}
	return core.CanonicalEvent{}, fmt.Errorf("providers/ghl: webhook body matches no known shape")
}

func appointmentShaped(envelope ghlWebhookBody) bool {
	if len(envelope.Appointment) > 0 && string(envelope.Appointment) != "null" {
		return true
	}
	return strings.TrimSpace(envelope.CalendarID) != "" ||
		strings.TrimSpace(envelope.StartTime) != "" ||
		strings.TrimSpace(envelope.AppointmentStatus) != ""
}

func normalizeContact(raw json.RawMessage) (core.CanonicalEvent, error) {
	var contact ghlContactBody
	if err := json.Unmarshal(raw, &contact); err != nil {
		return core.CanonicalEvent{}, fmt.Errorf("providers/ghl: decode contact payload: %w", err)
	}
	if strings.TrimSpace(contact.ID) == "" {
		return core.CanonicalEvent{}, fmt.Errorf("providers/ghl: contact payload carries no id")
	}
	return core.CanonicalEvent{
		Platform:   core.PlatformGHL,
		Kind:       core.EntityContact,
		ExternalID: strings.TrimSpace(contact.ID),
		Contact: &core.ContactPayload{
			FirstName:  contact.FirstName,
			LastName:   contact.LastName,
			Email:      contact.Email,
			Phone:      contact.Phone,
			LocationID: contact.LocationID,
		},
	}, nil
}

func normalizeAppointment(envelope ghlWebhookBody) (core.CanonicalEvent, error) {
	var nested ghlAppointmentBody
	if len(envelope.Appointment) > 0 && string(envelope.Appointment) != "null" {
		if err := json.Unmarshal(envelope.Appointment, &nested); err != nil {
			return core.CanonicalEvent{}, fmt.Errorf("providers/ghl: decode appointment payload: %w", err)
		}
	}

	pick := func(outer, inner string) string {
		if trimmed := strings.TrimSpace(outer); trimmed != "" {
			return trimmed
		}
		return strings.TrimSpace(inner)
	}

	externalID := pick(envelope.GHLID, pick(envelope.ID, nested.ID))
	synthetic := false
	if externalID == "" {
		// Test deliveries from GHL omit the id; ack them under a
		// placeholder so redelivery does not loop forever.
		externalID = "test-" + uuid.NewString()
		synthetic = true
	}

	status := pick(envelope.AppointmentStatus, nested.AppointmentStatus)
	if status == "" {
		status = "confirmed"
	}
	title := pick(envelope.Title, nested.Title)
	if title == "" {
		title = "Cita"
	}

	return core.CanonicalEvent{
		Platform:   core.PlatformGHL,
		Kind:       core.EntityAppointment,
		ExternalID: externalID,
		Synthetic:  synthetic,
		Appointment: &core.AppointmentPayload{
			ContactExternalID: pick(envelope.ContactID, nested.ContactID),
			LocationID:        pick(envelope.LocationID, nested.LocationID),
			CalendarID:        pick(envelope.CalendarID, nested.CalendarID),
			Title:             title,
			Status:            status,
			AssignedUserID:    pick(envelope.AssignedUserID, nested.AssignedUserID),
			Notes:             pick(envelope.Notes, nested.Notes),
			Source:            pick(envelope.Source, nested.Source),
			StartTime:         parseEventTime(pick(envelope.StartTime, nested.StartTime)),
			EndTime:           parseEventTime(pick(envelope.EndTime, nested.EndTime)),
		},
	}, nil
}

func parseEventTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}
