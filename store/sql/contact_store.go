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

// ContactStore keeps the local projection of CRM contacts, keyed by the
// provider's external id.
type ContactStore struct {
	db   *bun.DB
	repo repository.Repository[*contactRecord]
}

func (s *ContactStore) GetByExternalID(ctx context.Context, externalID string) (core.Contact, error) {
	if s == nil || s.repo == nil {
		return core.Contact{}, fmt.Errorf("sqlstore: contact store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.Contact{}, fmt.Errorf("sqlstore: contact external id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("external_id", "=", externalID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Contact{}, err
	}
	if len(records) == 0 {
		return core.Contact{}, core.NewTargetNotFound(fmt.Sprintf("contact %q not found", externalID))
	}
	return records[0].toDomain(), nil
}

func (s *ContactStore) Upsert(ctx context.Context, contact core.Contact) (core.Contact, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Contact{}, fmt.Errorf("sqlstore: contact store is not configured")
	}
	externalID := strings.TrimSpace(contact.ExternalID)
	if externalID == "" {
		return core.Contact{}, fmt.Errorf("sqlstore: contact external id is required")
	}
	now := time.Now().UTC()

	var saved core.Contact
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewUpdate().
			Model((*contactRecord)(nil)).
			Set("first_name = ?", contact.FirstName).
			Set("last_name = ?", contact.LastName).
			Set("email = ?", contact.Email).
			Set("phone = ?", contact.Phone).
			Set("location_id = ?", contact.LocationID).
			Set("updated_at = ?", now).
			Where("external_id = ?", externalID).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			existing := &contactRecord{}
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

		inserted, createErr := s.repo.CreateTx(ctx, tx, &contactRecord{
			ID:         uuid.NewString(),
			ExternalID: externalID,
			FirstName:  contact.FirstName,
			LastName:   contact.LastName,
			Email:      contact.Email,
			Phone:      contact.Phone,
			LocationID: contact.LocationID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if createErr != nil {
			return createErr
		}
		saved = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.Contact{}, err
	}
	return saved, nil
}
