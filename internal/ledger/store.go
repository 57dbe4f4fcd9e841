// Package ledger persists review decisions: the processed ledger (every
// combination ever decided) and the accepted ledger (the accepted slice of
// each decision). Both are append-only.
package ledger

import (
	"context"
	"errors"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

var (
	// ErrStoreIO wraps any durable read or write failure.
	ErrStoreIO = errors.New("ledger io failure")

	// ErrAlreadyProcessed is returned by AppendDecision when the combination
	// is already in the processed ledger. Nothing is written.
	ErrAlreadyProcessed = errors.New("combination already processed")
)

// Store is the persistence abstraction shared by the file, Postgres and
// in-memory ledgers.
type Store interface {
	// Contains reports whether a structurally equal combination has been
	// processed.
	Contains(ctx context.Context, c models.Combination) (bool, error)

	// AppendDecision durably appends processed and, when accepted is non-nil,
	// the matching accepted row. Either both rows are written or neither is.
	AppendDecision(ctx context.Context, processed *models.ProcessedRecord, accepted *models.AcceptedRecord) error

	// ListProcessed returns every processed record in append order.
	ListProcessed(ctx context.Context) ([]models.ProcessedRecord, error)

	// ListAccepted returns every accepted record in append order.
	ListAccepted(ctx context.Context) ([]models.AcceptedRecord, error)

	// Ping validates the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
