// Package export renders the ledgers as CSV downloads and archives them to
// object storage.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/ILLUVRSE/outfit-review/internal/ledger"
)

// ErrExportUnavailable is returned when a ledger has no records yet.
var ErrExportUnavailable = errors.New("export unavailable")

// Exporter renders full ledger snapshots. Output depends only on the stored
// records, so repeated exports of an unchanged ledger are byte-identical.
type Exporter struct {
	store ledger.Store
}

func NewExporter(store ledger.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportHistory renders the processed ledger.
func (e *Exporter) ExportHistory(ctx context.Context) ([]byte, error) {
	recs, err := e.store.ListProcessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("read processed ledger: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no processed combinations", ErrExportUnavailable)
	}
	return ledger.RenderProcessed(recs)
}

// ExportAccepted renders the accepted ledger.
func (e *Exporter) ExportAccepted(ctx context.Context) ([]byte, error) {
	recs, err := e.store.ListAccepted(ctx)
	if err != nil {
		return nil, fmt.Errorf("read accepted ledger: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no accepted combinations", ErrExportUnavailable)
	}
	return ledger.RenderAccepted(recs)
}
