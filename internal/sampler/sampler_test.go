package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

type staticPool map[models.Category][]string

func (p staticPool) ListItems(ctx context.Context, cat models.Category) ([]string, error) {
	return p[cat], nil
}

func (p staticPool) Locate(cat models.Category, id string) string {
	return "http://assets/" + string(cat) + "/" + id
}

type setHistory map[string]bool

func (h setHistory) Contains(ctx context.Context, c models.Combination) (bool, error) {
	return h[c.Fingerprint()], nil
}

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(1, 2)))
}

func TestDrawLeavesEmptyCategoriesAbsent(t *testing.T) {
	s := New(staticPool{models.CategoryTop: {"A", "B"}, models.CategoryBottom: {"X"}}, seeded())

	c, err := s.Draw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Category{models.CategoryTop, models.CategoryBottom}, c.Present())
	bottom, _ := c.Item(models.CategoryBottom)
	assert.Equal(t, "X", bottom.ID)
	assert.Equal(t, "http://assets/bottom/X", bottom.URL)
}

func TestDrawIsRoughlyUniform(t *testing.T) {
	s := New(staticPool{models.CategoryTop: {"A", "B", "C", "D"}}, seeded())
	counts := map[string]int{}
	for i := 0; i < 4000; i++ {
		c, err := s.Draw(context.Background())
		require.NoError(t, err)
		item, _ := c.Item(models.CategoryTop)
		counts[item.ID]++
	}
	for id, n := range counts {
		assert.InDelta(t, 1000, n, 200, "item %s drawn %d times", id, n)
	}
	assert.Len(t, counts, 4)
}

func TestDrawUniqueSkipsHistory(t *testing.T) {
	s := New(staticPool{models.CategoryTop: {"A", "B"}, models.CategoryBottom: {"X"}}, seeded())
	history := setHistory{models.CombinationOf("A", "X").Fingerprint(): true}

	for i := 0; i < 20; i++ {
		c, err := s.DrawUnique(context.Background(), history)
		require.NoError(t, err)
		assert.True(t, c.Equal(models.CombinationOf("B", "X")), "got %s", c)
	}
}

func TestDrawUniqueExhaustion(t *testing.T) {
	s := New(staticPool{models.CategoryTop: {"A"}}, seeded(), WithMaxAttempts(50))
	history := setHistory{models.CombinationOf("A").Fingerprint(): true}

	_, err := s.DrawUnique(context.Background(), history)
	assert.True(t, errors.Is(err, ErrCombinationSpaceExhausted))
}

func TestDrawUniqueAllPoolsEmpty(t *testing.T) {
	s := New(staticPool{}, seeded(), WithMaxAttempts(10))

	c, err := s.DrawUnique(context.Background(), setHistory{})
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = s.DrawUnique(context.Background(), setHistory{models.Combination{}.Fingerprint(): true})
	assert.ErrorIs(t, err, ErrCombinationSpaceExhausted)
}

type failingHistory struct{}

func (failingHistory) Contains(ctx context.Context, c models.Combination) (bool, error) {
	return false, errors.New("disk gone")
}

func TestDrawUniquePropagatesHistoryErrors(t *testing.T) {
	s := New(staticPool{models.CategoryTop: {"A"}}, seeded())
	_, err := s.DrawUnique(context.Background(), failingHistory{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCombinationSpaceExhausted))
}

type countingHistory struct {
	setHistory
	calls int
}

func (h *countingHistory) Contains(ctx context.Context, c models.Combination) (bool, error) {
	h.calls++
	return h.setHistory.Contains(ctx, c)
}

func TestDrawUniqueStopsOnceSnapshotIsCovered(t *testing.T) {
	s := New(staticPool{models.CategoryTop: {"A", "B"}, models.CategoryBottom: {"X"}}, seeded())
	history := &countingHistory{setHistory: setHistory{
		models.CombinationOf("A", "X").Fingerprint(): true,
		models.CombinationOf("B", "X").Fingerprint(): true,
	}}

	_, err := s.DrawUnique(context.Background(), history)
	require.ErrorIs(t, err, ErrCombinationSpaceExhausted)
	assert.Equal(t, 2, history.calls, "each distinct combination is checked once")
	assert.NotContains(t, err.Error(), "after 10000 attempts")
}
