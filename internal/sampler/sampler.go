// Package sampler draws random outfit combinations and retries draws against
// a history until an unseen combination comes up.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/ILLUVRSE/outfit-review/internal/assets"
	"github.com/ILLUVRSE/outfit-review/internal/models"
)

// DefaultMaxAttempts bounds the unique-draw loop.
const DefaultMaxAttempts = 10000

// ErrCombinationSpaceExhausted means the retry ceiling was hit: every
// combination the pools can produce has (almost certainly) been processed.
var ErrCombinationSpaceExhausted = errors.New("exhausted unique combinations")

// History answers whether a combination was processed before.
type History interface {
	Contains(ctx context.Context, c models.Combination) (bool, error)
}

// Sampler draws one item per category independently and uniformly.
type Sampler struct {
	pool        assets.Pool
	maxAttempts int

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customises a Sampler.
type Option func(*Sampler)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRand injects a random source, mainly for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Sampler) {
		if r != nil {
			s.rng = r
		}
	}
}

func New(pool assets.Pool, opts ...Option) *Sampler {
	s := &Sampler{
		pool:        pool,
		maxAttempts: DefaultMaxAttempts,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampler) MaxAttempts() int { return s.maxAttempts }

// Draw takes a fresh pool snapshot and returns one random combination. It is
// not deduplicated.
func (s *Sampler) Draw(ctx context.Context) (models.Combination, error) {
	snap, err := assets.TakeSnapshot(ctx, s.pool)
	if err != nil {
		return models.Combination{}, err
	}
	return s.drawFrom(snap), nil
}

func (s *Sampler) drawFrom(snap assets.Snapshot) models.Combination {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c models.Combination
	for _, cat := range models.Categories {
		items := snap[cat]
		if len(items) == 0 {
			continue
		}
		id := items[s.rng.IntN(len(items))]
		c = c.With(cat, models.Item{ID: id, URL: s.pool.Locate(cat, id)})
	}
	return c
}

// DrawUnique repeatedly draws from a single pool snapshot until a
// combination absent from history comes up. It fails with
// ErrCombinationSpaceExhausted after MaxAttempts draws, or earlier once
// every combination the snapshot can produce was found in history.
func (s *Sampler) DrawUnique(ctx context.Context, history History) (models.Combination, error) {
	snap, err := assets.TakeSnapshot(ctx, s.pool)
	if err != nil {
		return models.Combination{}, err
	}
	size := snap.Size()
	checked := make(map[string]struct{})
	attempt := 0
	for attempt < s.maxAttempts {
		attempt++
		if err := ctx.Err(); err != nil {
			return models.Combination{}, err
		}
		c := s.drawFrom(snap)
		fp := c.Fingerprint()
		if _, ok := checked[fp]; ok {
			continue
		}
		seen, err := history.Contains(ctx, c)
		if err != nil {
			return models.Combination{}, fmt.Errorf("check history: %w", err)
		}
		if !seen {
			return c, nil
		}
		checked[fp] = struct{}{}
		if len(checked) >= size {
			break
		}
	}
	return models.Combination{}, fmt.Errorf("%w after %d attempts", ErrCombinationSpaceExhausted, attempt)
}
