// Package models contains the outfit review domain types shared by the
// sampler, the ledgers and the HTTP layer.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ILLUVRSE/outfit-review/internal/canonical"
)

// Category is one of the fixed clothing slots of a combination.
type Category string

const (
	CategoryTop         Category = "top"
	CategoryBottom      Category = "bottom"
	CategoryHandbag     Category = "handbag"
	CategoryAccessories Category = "accessories"
	CategoryShoes       Category = "shoes"
)

const categoryCount = 5

// Categories lists every category in ledger column order.
var Categories = [categoryCount]Category{
	CategoryTop,
	CategoryBottom,
	CategoryHandbag,
	CategoryAccessories,
	CategoryShoes,
}

// ParseCategory maps a label to its Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.index() >= 0
}

func (c Category) index() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return -1
}

// Item is one asset of a category pool. URL is a display locator and is
// not part of the item's identity.
type Item struct {
	ID  string `json:"filename"`
	URL string `json:"url,omitempty"`
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ValidItemID reports whether id can name an item: an image file name
// (.jpg, .jpeg or .png) with no path separator or control character. Any
// other identifier cannot be stored as a single ledger row.
func ValidItemID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f || r == '/' || r == '\\' {
			return false
		}
	}
	return imageExtensions[strings.ToLower(path.Ext(id))]
}

// Combination holds at most one Item per Category. The zero value has every
// slot absent. Combinations are values; setters return copies.
type Combination struct {
	slots [categoryCount]Item
}

// NewCombination builds a Combination from a category map. Items with an
// empty ID are treated as absent.
func NewCombination(items map[Category]Item) (Combination, error) {
	var c Combination
	for cat, item := range items {
		i := cat.index()
		if i < 0 {
			return Combination{}, fmt.Errorf("unknown category %q", cat)
		}
		c.slots[i] = item
	}
	return c, nil
}

// CombinationOf builds a Combination from identifiers in Category order.
// Missing trailing values and empty strings leave the slot absent.
func CombinationOf(ids ...string) Combination {
	var c Combination
	for i := 0; i < len(ids) && i < categoryCount; i++ {
		c.slots[i] = Item{ID: ids[i]}
	}
	return c
}

// Item returns the item in the given slot and whether it is present.
func (c Combination) Item(cat Category) (Item, bool) {
	i := cat.index()
	if i < 0 || c.slots[i].ID == "" {
		return Item{}, false
	}
	return c.slots[i], true
}

// With returns a copy of c with the slot for cat set to item.
func (c Combination) With(cat Category, item Item) Combination {
	if i := cat.index(); i >= 0 {
		c.slots[i] = item
	}
	return c
}

// Present lists the categories holding an item, in Category order.
func (c Combination) Present() []Category {
	out := make([]Category, 0, categoryCount)
	for i, cat := range Categories {
		if c.slots[i].ID != "" {
			out = append(out, cat)
		}
	}
	return out
}

// IsEmpty reports whether every slot is absent.
func (c Combination) IsEmpty() bool {
	return len(c.Present()) == 0
}

// IDs returns the identifiers in Category order, "" for absent slots.
func (c Combination) IDs() []string {
	out := make([]string, categoryCount)
	for i := range c.slots {
		out[i] = c.slots[i].ID
	}
	return out
}

// Equal compares identifiers slot by slot; locators are ignored.
func (c Combination) Equal(o Combination) bool {
	for i := range c.slots {
		if c.slots[i].ID != o.slots[i].ID {
			return false
		}
	}
	return true
}

// Subset keeps only the listed categories.
func (c Combination) Subset(cats []Category) Combination {
	var out Combination
	for _, cat := range cats {
		if i := cat.index(); i >= 0 {
			out.slots[i] = c.slots[i]
		}
	}
	return out
}

// Identity drops locators.
func (c Combination) Identity() Combination {
	return CombinationOf(c.IDs()...)
}

// Fingerprint is the hex SHA-256 of the canonical identifier tuple. Two
// combinations share a fingerprint iff they are Equal.
func (c Combination) Fingerprint() string {
	b, err := canonical.MarshalCanonical(c.IDs())
	if err != nil {
		// strings always encode
		panic(err)
	}
	return canonical.HashHex(b)
}

func (c Combination) String() string {
	return strings.Join(c.IDs(), "|")
}

// MarshalJSON renders every category; absent slots are null.
func (c Combination) MarshalJSON() ([]byte, error) {
	out := make(map[Category]*Item, categoryCount)
	for i, cat := range Categories {
		if c.slots[i].ID == "" {
			out[cat] = nil
			continue
		}
		item := c.slots[i]
		out[cat] = &item
	}
	return json.Marshal(out)
}

func (c *Combination) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = Combination{}
		return nil
	}
	var raw map[string]*Item
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	items := make(map[Category]Item, len(raw))
	for k, v := range raw {
		cat, ok := ParseCategory(k)
		if !ok {
			return fmt.Errorf("unknown category %q", k)
		}
		if v != nil {
			items[cat] = *v
		}
	}
	parsed, err := NewCombination(items)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Decision is a verdict for one category of a combination.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// DecisionSet maps each category of a combination to a verdict.
type DecisionSet map[Category]Decision

// UniformDecisions applies d to every present category of c.
func UniformDecisions(c Combination, d Decision) DecisionSet {
	out := make(DecisionSet, categoryCount)
	for _, cat := range c.Present() {
		out[cat] = d
	}
	return out
}

// Accepted lists the accepted categories in Category order.
func (d DecisionSet) Accepted() []Category {
	var out []Category
	for _, cat := range Categories {
		if d[cat] == DecisionAccept {
			out = append(out, cat)
		}
	}
	return out
}

// String encodes the set as "top=accept;bottom=reject" in Category order.
func (d DecisionSet) String() string {
	parts := make([]string, 0, len(d))
	for _, cat := range Categories {
		if v, ok := d[cat]; ok {
			parts = append(parts, string(cat)+"="+string(v))
		}
	}
	return strings.Join(parts, ";")
}

// ParseDecisionSet reverses DecisionSet.String. The empty string yields nil.
func ParseDecisionSet(s string) (DecisionSet, error) {
	if s == "" {
		return nil, nil
	}
	out := make(DecisionSet)
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed decision %q", part)
		}
		cat, ok := ParseCategory(k)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", k)
		}
		d := Decision(v)
		if !d.Valid() {
			return nil, fmt.Errorf("invalid decision %q for %s", v, cat)
		}
		out[cat] = d
	}
	return out, nil
}

// ProcessedRecord is one row of the processed ledger.
type ProcessedRecord struct {
	Combination Combination `json:"combination"`
	Decisions   DecisionSet `json:"decisions,omitempty"`
	Reviewer    string      `json:"reviewer,omitempty"`
	ProcessedAt time.Time   `json:"processedAt"`
}

// AcceptedRecord is one row of the accepted ledger. Only accepted
// categories are present in Combination.
type AcceptedRecord struct {
	Combination Combination `json:"combination"`
	AcceptedAt  time.Time   `json:"acceptedAt"`
}
