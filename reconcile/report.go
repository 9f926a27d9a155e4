package reconcile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BETO-17/caso-mercadopago-GHL/core"
)

// ReportWriter persists one reconciliation pass for a human to review.
type ReportWriter interface {
	Write(ranAt time.Time, discrepancies []core.Discrepancy) (string, error)
}

// CSVReportWriter writes reconcile_report_<timestamp>.csv files into a
// directory. An empty pass still produces a file with just the header, so the
// report trail proves the pass ran.
type CSVReportWriter struct {
	Dir string
}

var _ ReportWriter = (*CSVReportWriter)(nil)

func (w *CSVReportWriter) Write(ranAt time.Time, discrepancies []core.Discrepancy) (string, error) {
	dir := "."
	if w != nil && strings.TrimSpace(w.Dir) != "" {
		dir = w.Dir
	}
	path := filepath.Join(dir, fmt.Sprintf("reconcile_report_%s.csv", ranAt.Format("20060102_150405")))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("reconcile: create report %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"payment_reference", "local_status", "remote_status", "amount"}); err != nil {
		return "", fmt.Errorf("reconcile: write report header: %w", err)
	}
	for _, discrepancy := range discrepancies {
		record := []string{
			discrepancy.PaymentReference,
			discrepancy.LocalStatus,
			discrepancy.RemoteStatus,
			strconv.FormatFloat(discrepancy.Amount, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("reconcile: write report row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("reconcile: flush report: %w", err)
	}
	return path, nil
}
