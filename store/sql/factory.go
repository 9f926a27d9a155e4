package sqlstore

import (
	"fmt"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds every SQL-backed store on top of a single bun
// handle. Stores are initialized once and shared.
type RepositoryFactory struct {
	db *bun.DB

	credentialStore        *CredentialStore
	flowStateStore         *FlowStateStore
	contactStore           *ContactStore
	appointmentStore       *AppointmentStore
	paymentPreferenceStore *PaymentPreferenceStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) FlowTokenStore() core.FlowTokenStore {
	if f == nil {
		return nil
	}
	return f.flowStateStore
}

func (f *RepositoryFactory) ContactStore() core.ContactStore {
	if f == nil {
		return nil
	}
	return f.contactStore
}

func (f *RepositoryFactory) AppointmentStore() core.AppointmentStore {
	if f == nil {
		return nil
	}
	return f.appointmentStore
}

func (f *RepositoryFactory) PaymentPreferenceStore() core.PaymentPreferenceStore {
	if f == nil {
		return nil
	}
	return f.paymentPreferenceStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialRepo := repository.NewRepository[*credentialRecord](f.db, credentialHandlers())
	if validator, ok := credentialRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}

	flowStateRepo := repository.NewRepository[*flowStateRecord](f.db, flowStateHandlers())
	if validator, ok := flowStateRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid flow state repository wiring: %w", err)
		}
	}

	contactRepo := repository.NewRepository[*contactRecord](f.db, contactHandlers())
	if validator, ok := contactRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid contact repository wiring: %w", err)
		}
	}

	appointmentRepo := repository.NewRepository[*appointmentRecord](f.db, appointmentHandlers())
	if validator, ok := appointmentRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid appointment repository wiring: %w", err)
		}
	}

	preferenceRepo := repository.NewRepository[*paymentPreferenceRecord](f.db, paymentPreferenceHandlers())
	if validator, ok := preferenceRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid payment preference repository wiring: %w", err)
		}
	}

	f.credentialStore = &CredentialStore{db: f.db, repo: credentialRepo}
	f.flowStateStore = &FlowStateStore{db: f.db, repo: flowStateRepo}
	f.contactStore = &ContactStore{db: f.db, repo: contactRepo}
	f.appointmentStore = &AppointmentStore{db: f.db, repo: appointmentRepo}
	f.paymentPreferenceStore = &PaymentPreferenceStore{db: f.db, repo: preferenceRepo}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
