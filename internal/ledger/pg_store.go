package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

// Schema creates the ledger tables. The fingerprint column enforces one
// processed row per combination.
const Schema = `
CREATE TABLE IF NOT EXISTS processed_combinations (
	id           BIGSERIAL PRIMARY KEY,
	fingerprint  TEXT NOT NULL UNIQUE,
	top          TEXT NOT NULL DEFAULT '',
	bottom       TEXT NOT NULL DEFAULT '',
	handbag      TEXT NOT NULL DEFAULT '',
	accessories  TEXT NOT NULL DEFAULT '',
	shoes        TEXT NOT NULL DEFAULT '',
	decisions    TEXT NOT NULL DEFAULT '',
	reviewer     TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS accepted_combinations (
	id           BIGSERIAL PRIMARY KEY,
	processed_id BIGINT NOT NULL REFERENCES processed_combinations(id),
	top          TEXT NOT NULL DEFAULT '',
	bottom       TEXT NOT NULL DEFAULT '',
	handbag      TEXT NOT NULL DEFAULT '',
	accessories  TEXT NOT NULL DEFAULT '',
	shoes        TEXT NOT NULL DEFAULT '',
	accepted_at  TIMESTAMPTZ NOT NULL
);
`

// PGStore persists both ledgers in Postgres.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the ledger tables if they are missing.
func (p *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", ErrStoreIO, err)
	}
	return nil
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PGStore) Contains(ctx context.Context, c models.Combination) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM processed_combinations WHERE fingerprint=$1)`
	var exists bool
	if err := p.db.QueryRowContext(ctx, q, c.Fingerprint()).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: contains: %w", ErrStoreIO, err)
	}
	return exists, nil
}

// AppendDecision writes both rows in one transaction.
func (p *PGStore) AppendDecision(ctx context.Context, processed *models.ProcessedRecord, accepted *models.AcceptedRecord) error {
	if processed == nil {
		return fmt.Errorf("nil processed record")
	}
	processedAt := processed.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrStoreIO, err)
	}
	defer tx.Rollback()

	ids := processed.Combination.IDs()
	const insertProcessed = `
		INSERT INTO processed_combinations
		  (fingerprint, top, bottom, handbag, accessories, shoes, decisions, reviewer, processed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id
	`
	var processedID int64
	err = tx.QueryRowContext(ctx, insertProcessed,
		processed.Combination.Fingerprint(),
		ids[0], ids[1], ids[2], ids[3], ids[4],
		processed.Decisions.String(),
		processed.Reviewer,
		processedAt,
	).Scan(&processedID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyProcessed
	}
	if err != nil {
		return fmt.Errorf("%w: insert processed: %w", ErrStoreIO, err)
	}

	if accepted != nil {
		acceptedAt := accepted.AcceptedAt
		if acceptedAt.IsZero() {
			acceptedAt = processedAt
		}
		aids := accepted.Combination.IDs()
		const insertAccepted = `
			INSERT INTO accepted_combinations
			  (processed_id, top, bottom, handbag, accessories, shoes, accepted_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`
		if _, err := tx.ExecContext(ctx, insertAccepted,
			processedID, aids[0], aids[1], aids[2], aids[3], aids[4], acceptedAt,
		); err != nil {
			return fmt.Errorf("%w: insert accepted: %w", ErrStoreIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit decision: %w", ErrStoreIO, err)
	}
	return nil
}

func (p *PGStore) ListProcessed(ctx context.Context) ([]models.ProcessedRecord, error) {
	const q = `
		SELECT top, bottom, handbag, accessories, shoes, decisions, reviewer, processed_at
		FROM processed_combinations ORDER BY id
	`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list processed: %w", ErrStoreIO, err)
	}
	defer rows.Close()

	var out []models.ProcessedRecord
	for rows.Next() {
		var (
			ids       [5]string
			decisions string
			rec       models.ProcessedRecord
		)
		if err := rows.Scan(&ids[0], &ids[1], &ids[2], &ids[3], &ids[4], &decisions, &rec.Reviewer, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("%w: scan processed: %w", ErrStoreIO, err)
		}
		rec.Combination = models.CombinationOf(ids[:]...)
		if rec.Decisions, err = models.ParseDecisionSet(decisions); err != nil {
			return nil, fmt.Errorf("%w: decode decisions: %w", ErrStoreIO, err)
		}
		rec.ProcessedAt = rec.ProcessedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list processed: %w", ErrStoreIO, err)
	}
	return out, nil
}

func (p *PGStore) ListAccepted(ctx context.Context) ([]models.AcceptedRecord, error) {
	const q = `
		SELECT top, bottom, handbag, accessories, shoes, accepted_at
		FROM accepted_combinations ORDER BY id
	`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: list accepted: %w", ErrStoreIO, err)
	}
	defer rows.Close()

	var out []models.AcceptedRecord
	for rows.Next() {
		var (
			ids [5]string
			rec models.AcceptedRecord
		)
		if err := rows.Scan(&ids[0], &ids[1], &ids[2], &ids[3], &ids[4], &rec.AcceptedAt); err != nil {
			return nil, fmt.Errorf("%w: scan accepted: %w", ErrStoreIO, err)
		}
		rec.Combination = models.CombinationOf(ids[:]...)
		rec.AcceptedAt = rec.AcceptedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list accepted: %w", ErrStoreIO, err)
	}
	return out, nil
}

// Close is a no-op; the caller owns the *sql.DB.
func (p *PGStore) Close() error { return nil }
