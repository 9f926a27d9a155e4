package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AppointmentStore keeps the local projection of CRM calendar appointments.
// Every row belongs to a contact; deleting the contact cascades here.
type AppointmentStore struct {
	db   *bun.DB
	repo repository.Repository[*appointmentRecord]
}

func (s *AppointmentStore) GetByExternalID(ctx context.Context, externalID string) (core.Appointment, error) {
	if s == nil || s.repo == nil {
		return core.Appointment{}, fmt.Errorf("sqlstore: appointment store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.Appointment{}, fmt.Errorf("sqlstore: appointment external id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("external_id", "=", externalID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Appointment{}, err
	}
	if len(records) == 0 {
		return core.Appointment{}, core.NewTargetNotFound(fmt.Sprintf("appointment %q not found", externalID))
	}
	return records[0].toDomain(), nil
}

func (s *AppointmentStore) Upsert(ctx context.Context, appointment core.Appointment) (core.Appointment, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Appointment{}, fmt.Errorf("sqlstore: appointment store is not configured")
	}
	externalID := strings.TrimSpace(appointment.ExternalID)
	if externalID == "" {
		return core.Appointment{}, fmt.Errorf("sqlstore: appointment external id is required")
	}
	contactID := strings.TrimSpace(appointment.ContactLocalID)
	if contactID == "" {
		return core.Appointment{}, fmt.Errorf("sqlstore: appointment contact id is required")
	}
	status := strings.TrimSpace(appointment.Status)
	if status == "" {
		status = "confirmed"
	}
	now := time.Now().UTC()

	var saved core.Appointment
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		update := tx.NewUpdate().
			Model((*appointmentRecord)(nil)).
			Set("contact_id = ?", contactID).
			Set("location_id = ?", appointment.LocationID).
			Set("calendar_id = ?", appointment.CalendarID).
			Set("title = ?", appointment.Title).
			Set("status = ?", status).
			Set("assigned_user_id = ?", appointment.AssignedUserID).
			Set("notes = ?", appointment.Notes).
			Set("source = ?", appointment.Source).
			Set("updated_at = ?", now).
			Where("external_id = ?", externalID)
		if appointment.StartTime != nil {
			update = update.Set("start_time = ?", appointment.StartTime.UTC())
		}
		if appointment.EndTime != nil {
			update = update.Set("end_time = ?", appointment.EndTime.UTC())
		}
		result, err := update.Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			existing := &appointmentRecord{}
			if err := tx.NewSelect().
				Model(existing).
				Where("?TableAlias.external_id = ?", externalID).
				Limit(1).
				Scan(ctx); err != nil {
				return err
			}
			saved = existing.toDomain()
			return nil
		}

		record := &appointmentRecord{
			ID:             uuid.NewString(),
			ExternalID:     externalID,
			ContactID:      contactID,
			LocationID:     appointment.LocationID,
			CalendarID:     appointment.CalendarID,
			Title:          appointment.Title,
			Status:         status,
			AssignedUserID: appointment.AssignedUserID,
			Notes:          appointment.Notes,
			Source:         appointment.Source,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if appointment.StartTime != nil {
			startTime := appointment.StartTime.UTC()
			record.StartTime = &startTime
		}
		if appointment.EndTime != nil {
			endTime := appointment.EndTime.UTC()
			record.EndTime = &endTime
		}
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		saved = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.Appointment{}, err
	}
	return saved, nil
}
