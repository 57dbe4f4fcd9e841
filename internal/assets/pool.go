// Package assets enumerates the item identifiers available per category.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

// ErrPoolUnavailable is returned when a category's backing store cannot be
// enumerated. Callers degrade that category to absent.
var ErrPoolUnavailable = errors.New("asset pool unavailable")

// Pool lists the items of one category and derives display locators.
type Pool interface {
	// ListItems returns the identifiers currently available for cat. An empty
	// pool is not an error.
	ListItems(ctx context.Context, cat models.Category) ([]string, error)

	// Locate returns the display URL of an item.
	Locate(cat models.Category, id string) string
}

// CategoryDirs maps each category to its directory (or key prefix) name.
var CategoryDirs = map[models.Category]string{
	models.CategoryTop:         "tops",
	models.CategoryBottom:      "bottoms",
	models.CategoryHandbag:     "handbags",
	models.CategoryAccessories: "accessories",
	models.CategoryShoes:       "shoes",
}

func unavailable(cat models.Category, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPoolUnavailable, cat, err)
}

// Snapshot is a point-in-time listing of every category.
type Snapshot map[models.Category][]string

// Size is the number of distinct combinations the snapshot can produce.
// Empty categories contribute a single absent slot.
func (s Snapshot) Size() int {
	n := 1
	for _, cat := range models.Categories {
		if k := len(s[cat]); k > 0 {
			n *= k
		}
	}
	return n
}

// TakeSnapshot lists every category concurrently. Categories whose pool is
// unavailable are logged and left empty; only context errors fail the call.
func TakeSnapshot(ctx context.Context, pool Pool) (Snapshot, error) {
	var mu sync.Mutex
	snap := make(Snapshot, len(models.Categories))
	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range models.Categories {
		g.Go(func() error {
			items, err := pool.ListItems(gctx, cat)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn().Err(err).Str("category", string(cat)).Msg("asset pool unavailable, category left empty")
				items = nil
			}
			mu.Lock()
			snap[cat] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
