// Package service implements the decision processor: it serves unseen
// combinations and records reviewer decisions against the ledgers.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ILLUVRSE/outfit-review/internal/events"
	"github.com/ILLUVRSE/outfit-review/internal/ledger"
	"github.com/ILLUVRSE/outfit-review/internal/models"
	"github.com/ILLUVRSE/outfit-review/internal/sampler"
)

// ErrIncompleteDecision is returned when a decision set does not cover
// exactly the categories present in the combination. Nothing is written.
var ErrIncompleteDecision = errors.New("incomplete decision")

type Service struct {
	store     ledger.Store
	sampler   *sampler.Sampler
	publisher events.Publisher
	now       func() time.Time

	// gate serialises the contains+append sequence.
	gate sync.Mutex
}

type Option func(*Service)

// WithPublisher sends a DecisionEvent for every recorded decision.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store ledger.Store, smp *sampler.Sampler, opts ...Option) *Service {
	s := &Service{
		store:     store,
		sampler:   smp,
		publisher: events.Nop{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns a combination that is not in the processed ledger.
func (s *Service) Next(ctx context.Context) (models.Combination, error) {
	return s.sampler.DrawUnique(ctx, s.store)
}

type SubmitRequest struct {
	Combination models.Combination
	Decisions   models.DecisionSet
	Reviewer    string
}

// Validate checks that every present item has a usable identifier and that
// the decisions cover exactly the present categories with accept or reject.
func (r SubmitRequest) Validate() error {
	present := r.Combination.Present()
	if len(present) == 0 {
		return fmt.Errorf("%w: combination has no items", ErrIncompleteDecision)
	}
	if len(r.Decisions) != len(present) {
		return fmt.Errorf("%w: got %d decisions for %d categories", ErrIncompleteDecision, len(r.Decisions), len(present))
	}
	for _, cat := range present {
		if item, _ := r.Combination.Item(cat); !models.ValidItemID(item.ID) {
			return fmt.Errorf("%w: invalid %s item %q", ErrIncompleteDecision, cat, item.ID)
		}
		d, ok := r.Decisions[cat]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrIncompleteDecision, cat)
		}
		if !d.Valid() {
			return fmt.Errorf("%w: invalid decision %q for %s", ErrIncompleteDecision, d, cat)
		}
	}
	return nil
}

// Submit records the decision and returns the next unseen combination.
// Resubmitting a processed combination writes nothing and still returns a
// fresh combination, so client retries are safe.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (models.Combination, error) {
	if err := req.Validate(); err != nil {
		return models.Combination{}, err
	}
	rec, recorded, err := s.record(ctx, req)
	if err != nil {
		return models.Combination{}, err
	}
	if recorded {
		log.Info().
			Str("fingerprint", rec.Combination.Fingerprint()).
			Str("decisions", rec.Decisions.String()).
			Str("reviewer", rec.Reviewer).
			Msg("decision recorded")
		if err := s.publisher.Publish(ctx, events.NewDecisionEvent(rec)); err != nil {
			log.Warn().Err(err).Msg("publish decision event")
		}
	}
	return s.Next(ctx)
}

func (s *Service) record(ctx context.Context, req SubmitRequest) (*models.ProcessedRecord, bool, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	seen, err := s.store.Contains(ctx, req.Combination)
	if err != nil {
		return nil, false, fmt.Errorf("check processed: %w", err)
	}
	if seen {
		log.Debug().Str("combination", req.Combination.String()).Msg("combination already processed")
		return nil, false, nil
	}

	now := s.now()
	processed := &models.ProcessedRecord{
		Combination: req.Combination.Identity(),
		Decisions:   req.Decisions,
		Reviewer:    req.Reviewer,
		ProcessedAt: now,
	}
	var accepted *models.AcceptedRecord
	if cats := req.Decisions.Accepted(); len(cats) > 0 {
		accepted = &models.AcceptedRecord{
			Combination: processed.Combination.Subset(cats),
			AcceptedAt:  now,
		}
	}
	if err := s.store.AppendDecision(ctx, processed, accepted); err != nil {
		if errors.Is(err, ledger.ErrAlreadyProcessed) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("append decision: %w", err)
	}
	return processed, true, nil
}
