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

// PaymentPreferenceStore keeps the local payment ledger. MarkPaid is the one
// conditional write in the system: the WHERE clauses make the paid transition
// happen at most once per row no matter how many deliveries race for it.
type PaymentPreferenceStore struct {
	db   *bun.DB
	repo repository.Repository[*paymentPreferenceRecord]
}

func (s *PaymentPreferenceStore) Create(ctx context.Context, pref core.PaymentPreference) (core.PaymentPreference, error) {
	if s == nil || s.repo == nil {
		return core.PaymentPreference{}, fmt.Errorf("sqlstore: payment preference store is not configured")
	}
	appointmentKey := strings.TrimSpace(pref.AppointmentKey)
	if appointmentKey == "" {
		return core.PaymentPreference{}, fmt.Errorf("sqlstore: appointment key is required")
	}
	status := strings.TrimSpace(pref.Status)
	if status == "" {
		status = core.PaymentStatusPending
	}
	now := time.Now().UTC()

	inserted, err := s.repo.Create(ctx, &paymentPreferenceRecord{
		ID:               uuid.NewString(),
		AppointmentKey:   appointmentKey,
		ContactKey:       strings.TrimSpace(pref.ContactKey),
		PreferenceID:     strings.TrimSpace(pref.PreferenceID),
		InitPoint:        pref.InitPoint,
		Amount:           pref.Amount,
		Status:           status,
		PaymentReference: strings.TrimSpace(pref.PaymentReference),
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return core.PaymentPreference{}, err
	}
	return inserted.toDomain(), nil
}

func (s *PaymentPreferenceStore) GetByAppointmentKey(ctx context.Context, key string) (core.PaymentPreference, error) {
	return s.getBy(ctx, "appointment_key", key)
}

func (s *PaymentPreferenceStore) GetByPreferenceID(ctx context.Context, preferenceID string) (core.PaymentPreference, error) {
	return s.getBy(ctx, "preference_id", preferenceID)
}

func (s *PaymentPreferenceStore) GetByPaymentReference(ctx context.Context, reference string) (core.PaymentPreference, error) {
	return s.getBy(ctx, "payment_reference", reference)
}

func (s *PaymentPreferenceStore) getBy(ctx context.Context, column string, value string) (core.PaymentPreference, error) {
	if s == nil || s.repo == nil {
		return core.PaymentPreference{}, fmt.Errorf("sqlstore: payment preference store is not configured")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return core.PaymentPreference{}, fmt.Errorf("sqlstore: %s is required", column)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy(column, "=", value),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.PaymentPreference{}, err
	}
	if len(records) == 0 {
		return core.PaymentPreference{}, core.NewTargetNotFound(
			fmt.Sprintf("payment preference with %s %q not found", column, value),
		)
	}
	return records[0].toDomain(), nil
}

// MarkPaid transitions one row to paid and stamps the payment reference.
// It reports false without error when another delivery already won the
// transition, or when the row carries a different payment reference.
func (s *PaymentPreferenceStore) MarkPaid(ctx context.Context, localID string, paymentReference string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: payment preference store is not configured")
	}
	localID = strings.TrimSpace(localID)
	if localID == "" {
		return false, fmt.Errorf("sqlstore: payment preference id is required")
	}
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return false, fmt.Errorf("sqlstore: payment reference is required")
	}

	result, err := s.db.NewUpdate().
		Model((*paymentPreferenceRecord)(nil)).
		Set("status = ?", core.PaymentStatusPaid).
		Set("payment_reference = ?", paymentReference).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", localID).
		Where("status <> ?", core.PaymentStatusPaid).
		Where("payment_reference IS NULL OR payment_reference = '' OR payment_reference = ?", paymentReference).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdateStatus records a non-terminal status change. Paid rows are never
// downgraded here.
func (s *PaymentPreferenceStore) UpdateStatus(ctx context.Context, localID string, status string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: payment preference store is not configured")
	}
	localID = strings.TrimSpace(localID)
	if localID == "" {
		return fmt.Errorf("sqlstore: payment preference id is required")
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return fmt.Errorf("sqlstore: status is required")
	}

	_, err := s.db.NewUpdate().
		Model((*paymentPreferenceRecord)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", localID).
		Where("status <> ?", core.PaymentStatusPaid).
		Exec(ctx)
	return err
}
