package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
	"github.com/BETO-17/caso-mercadopago-GHL/credentials"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultWindow      = 24 * time.Hour
	defaultSearchLimit = 50
)

// Engine compares MP's view of recent payments against the local ledger and
// reports every divergence. It only reads: discrepancies are written to a CSV
// report for a human, never auto-corrected.
type Engine struct {
	payments    core.PaymentPreferenceStore
	paymentsAPI core.PSPPaymentsClient
	credentials *credentials.Service
	reports     ReportWriter
	logger      core.Logger
	window      time.Duration
	searchLimit int
	now         func() time.Time
}

type Config struct {
	Payments    core.PaymentPreferenceStore
	PaymentsAPI core.PSPPaymentsClient
	Credentials *credentials.Service
	Reports     ReportWriter
	Logger      core.Logger
	Window      time.Duration
	SearchLimit int
	Now         func() time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.Payments == nil {
		return nil, fmt.Errorf("reconcile: payment store is required")
	}
	if cfg.PaymentsAPI == nil {
		return nil, fmt.Errorf("reconcile: payments api is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("reconcile: credentials service is required")
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		payments:    cfg.Payments,
		paymentsAPI: cfg.PaymentsAPI,
		credentials: cfg.Credentials,
		reports:     cfg.Reports,
		logger:      glog.Ensure(cfg.Logger),
		window:      window,
		searchLimit: limit,
		now:         now,
	}, nil
}

// RunResult is one completed reconciliation pass.
type RunResult struct {
	Discrepancies []core.Discrepancy
	ReportPath    string
	Checked       int
}

// Reconcile diffs MP payments created inside the trailing window against the
// local ledger. A failed remote search fails the whole run; a pass never
// reports partial results.
func (e *Engine) Reconcile(ctx context.Context, tenantKey string) (RunResult, error) {
	if e == nil {
		return RunResult{}, fmt.Errorf("reconcile: engine is nil")
	}

	from := e.now().Add(-e.window)
	var remote []core.RemotePayment
	err := e.credentials.WithAuthRetry(ctx, core.PlatformMP, tenantKey, func(ctx context.Context, accessToken string) error {
		payments, err := e.paymentsAPI.SearchPayments(ctx, accessToken, from, e.searchLimit)
		if err != nil {
			return err
		}
		remote = payments
		return nil
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("reconcile: search payments since %s: %w", from.Format(time.RFC3339), err)
	}

	discrepancies := make([]core.Discrepancy, 0)
	for _, payment := range remote {
		local, lookupErr := e.payments.GetByPaymentReference(ctx, payment.ID)
		if lookupErr != nil {
			if !core.IsNotFound(lookupErr) {
				return RunResult{}, fmt.Errorf("reconcile: lookup payment %s: %w", payment.ID, lookupErr)
			}
			discrepancies = append(discrepancies, core.Discrepancy{
				Kind:             core.DiscrepancyMissingLocally,
				PaymentReference: payment.ID,
				LocalStatus:      "not_found",
				RemoteStatus:     payment.Status,
				Amount:           payment.Amount,
			})
			continue
		}
		if !statusesMatch(local.Status, payment.Status) {
			discrepancies = append(discrepancies, core.Discrepancy{
				Kind:             core.DiscrepancyStatusMismatch,
				PaymentReference: payment.ID,
				LocalStatus:      local.Status,
				RemoteStatus:     payment.Status,
				Amount:           payment.Amount,
			})
		}
	}

	result := RunResult{Discrepancies: discrepancies, Checked: len(remote)}
	if e.reports != nil {
		path, writeErr := e.reports.Write(e.now(), discrepancies)
		if writeErr != nil {
			return RunResult{}, fmt.Errorf("reconcile: write report: %w", writeErr)
		}
		result.ReportPath = path
	}

	core.LogInfo(ctx, e.logger, "reconciliation completed", map[string]any{
		"tenant_key":    tenantKey,
		"checked":       result.Checked,
		"discrepancies": len(discrepancies),
		"report":        result.ReportPath,
	})
	return result, nil
}

// statusesMatch maps MP's approved onto the local paid status; every other
// status is compared verbatim.
func statusesMatch(localStatus string, remoteStatus string) bool {
	if localStatus == remoteStatus {
		return true
	}
	return localStatus == core.PaymentStatusPaid && remoteStatus == "approved"
}
