package ghlmp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/adapters/gojob"
	"github.com/BETO-17/caso-mercadopago-GHL/adapters/gologger"
	"github.com/BETO-17/caso-mercadopago-GHL/checkout"
	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/BETO-17/caso-mercadopago-GHL/credentials"
	"github.com/BETO-17/caso-mercadopago-GHL/onboarding"
	"github.com/BETO-17/caso-mercadopago-GHL/providers/ghl"
	"github.com/BETO-17/caso-mercadopago-GHL/providers/mercadopago"
	"github.com/BETO-17/caso-mercadopago-GHL/reconcile"
	sqlstore "github.com/BETO-17/caso-mercadopago-GHL/store/sql"
	crmsync "github.com/BETO-17/caso-mercadopago-GHL/sync"
	"github.com/BETO-17/caso-mercadopago-GHL/webhooks"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-job/queue"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// Dependencies carries the runtime collaborators the integration needs.
// Persistence is either a *bun.DB or a go-persistence-bun client; everything
// else is optional and falls back to sane defaults.
type Dependencies struct {
	Persistence    any
	HTTPClient     core.HTTPDoer
	Logger         core.Logger
	LoggerProvider core.LoggerProvider

	// Cache, when set, fronts credential reads with a read-through cache.
	Cache repositorycache.CacheService

	// Enqueuer and Tenants enable the scheduled reconciliation runner.
	Enqueuer core.JobEnqueuer
	Tenants  func(ctx context.Context) ([]string, error)

	// FlowTokens overrides the SQL-backed flow token store, e.g. with the
	// in-memory store for single-instance deployments.
	FlowTokens core.FlowTokenStore
}

// Service is the assembled integration: tenant onboarding, webhook ingestion,
// checkout creation, CRM sync and payment reconciliation sharing one
// credential service and one store factory.
type Service struct {
	config core.Config
	stores *sqlstore.RepositoryFactory
	logger core.Logger

	Credentials *credentials.Service
	Onboarding  *onboarding.Chain
	Ingestor    *webhooks.Ingestor
	Checkout    *checkout.Service
	Sync        *crmsync.Dispatcher
	Reconciler  *reconcile.Engine

	// Runner is nil unless Dependencies provided an enqueuer and a tenant
	// lister.
	Runner *reconcile.Runner

	subscriptions []commanddispatcher.Subscription
}

func New(cfg core.Config, deps Dependencies) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	_, logger := gologger.Resolve(cfg.ServiceName, deps.LoggerProvider, deps.Logger)

	factory := sqlstore.NewRepositoryFactory()
	if err := factory.BuildStores(deps.Persistence); err != nil {
		return nil, err
	}

	credentialStore := factory.CredentialStore()
	if deps.Cache != nil {
		cached, err := sqlstore.NewCachedCredentialStore(credentialStore, deps.Cache)
		if err != nil {
			return nil, err
		}
		credentialStore = cached
	}

	ghlProvider, err := ghl.New(cfg.GHL, deps.HTTPClient, logger)
	if err != nil {
		return nil, err
	}
	mpProvider, err := mercadopago.New(cfg.MP, deps.HTTPClient, logger)
	if err != nil {
		return nil, err
	}

	creds, err := credentials.New(credentials.Config{
		Store: credentialStore,
		OAuth: map[core.Platform]core.OAuthClient{
			core.PlatformGHL: ghlProvider,
			core.PlatformMP:  mpProvider,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	flows := deps.FlowTokens
	if flows == nil {
		flows = factory.FlowTokenStore()
	}

	chain, err := onboarding.New(onboarding.Config{
		Flows:        flows,
		Credentials:  creds,
		GHL:          ghlProvider,
		GHLIdentity:  ghlProvider,
		MP:           mpProvider,
		MPIdentity:   mpProvider,
		Logger:       logger,
		FlowTokenTTL: cfg.FlowTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	dispatcher, err := crmsync.New(crmsync.Config{
		Credentials: creds,
		Contacts:    ghlProvider,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	ingestor, err := webhooks.New(webhooks.Config{
		Contacts:     factory.ContactStore(),
		Appointments: factory.AppointmentStore(),
		Payments:     factory.PaymentPreferenceStore(),
		Credentials:  creds,
		PaymentsAPI:  mpProvider,
		SideEffects:  dispatcher,
		Normalizers: map[core.Platform]core.WebhookNormalizer{
			core.PlatformGHL: ghl.Normalizer{},
			core.PlatformMP:  mercadopago.Normalizer{},
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	checkoutService, err := checkout.New(checkout.Config{
		Preferences:     factory.PaymentPreferenceStore(),
		API:             mpProvider,
		Credentials:     creds,
		Logger:          logger,
		PublicURL:       cfg.PublicURL,
		NotificationURL: notificationURL(cfg.PublicURL),
	})
	if err != nil {
		return nil, err
	}

	var reports reconcile.ReportWriter
	if strings.TrimSpace(cfg.Reconcile.ReportDir) != "" {
		reports = &reconcile.CSVReportWriter{Dir: cfg.Reconcile.ReportDir}
	}
	engine, err := reconcile.New(reconcile.Config{
		Payments:    factory.PaymentPreferenceStore(),
		PaymentsAPI: mpProvider,
		Credentials: creds,
		Reports:     reports,
		Logger:      logger,
		Window:      cfg.Reconcile.Window,
		SearchLimit: cfg.Reconcile.SearchLimit,
	})
	if err != nil {
		return nil, err
	}

	service := &Service{
		config:      cfg,
		stores:      factory,
		logger:      logger,
		Credentials: creds,
		Onboarding:  chain,
		Ingestor:    ingestor,
		Checkout:    checkoutService,
		Sync:        dispatcher,
		Reconciler:  engine,
	}

	if deps.Enqueuer != nil && deps.Tenants != nil {
		runner, runnerErr := reconcile.NewRunner(reconcile.RunnerConfig{
			Engine:   engine,
			Enqueuer: deps.Enqueuer,
			Tenants:  deps.Tenants,
			Logger:   logger,
			Interval: cfg.Reconcile.Window,
		})
		if runnerErr != nil {
			return nil, runnerErr
		}
		service.Runner = runner
	}

	service.subscriptions = crmsync.Subscribe(dispatcher)
	return service, nil
}

// Config returns the validated configuration the service was built with.
func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.config
}

// Stores exposes the repository factory, mainly for tests and migrations.
func (s *Service) Stores() *sqlstore.RepositoryFactory {
	if s == nil {
		return nil
	}
	return s.stores
}

// Close releases the command bus subscriptions.
func (s *Service) Close() {
	if s == nil {
		return
	}
	for _, subscription := range s.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	s.subscriptions = nil
}

// ReconcileWorker builds a queue consumer that executes scheduled
// reconciliation jobs. The runner must be configured, so New needs the same
// Enqueuer and Tenants dependencies that enable it.
func (s *Service) ReconcileWorker(dequeuer core.JobDequeuer) (*reconcile.Worker, error) {
	if s == nil || s.Runner == nil {
		return nil, fmt.Errorf("ghlmp: reconciliation runner is not configured")
	}
	return reconcile.NewWorker(s.Runner, dequeuer, s.logger)
}

// JobQueueEnqueuer adapts a go-job queue enqueuer to Dependencies.Enqueuer.
func JobQueueEnqueuer(enqueuer queue.Enqueuer) core.JobEnqueuer {
	return gojob.NewEnqueuer(enqueuer)
}

// JobQueueDequeuer adapts a go-job queue dequeuer with bounded retries for
// ReconcileWorker.
func JobQueueDequeuer(dequeuer queue.Dequeuer) core.JobDequeuer {
	return gojob.NewDequeuer(dequeuer, gojob.RetryPolicy{
		MaxAttempts:     5,
		MaxDelay:        5 * time.Minute,
		DeadLetterOnMax: true,
	})
}

func notificationURL(publicURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s/webhooks/mercadopago", trimmed)
}
