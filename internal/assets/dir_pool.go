package assets

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

// DirPool reads category pools from sub-directories of Root, e.g.
// <Root>/tops/*.jpg. Items are served by the HTTP layer under
// <BaseURL>/images/<dir>/<file>.
type DirPool struct {
	Root    string
	BaseURL string
}

func NewDirPool(root, baseURL string) *DirPool {
	return &DirPool{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (p *DirPool) ListItems(ctx context.Context, cat models.Category) ([]string, error) {
	dir, ok := CategoryDirs[cat]
	if !ok {
		return nil, unavailable(cat, os.ErrNotExist)
	}
	entries, err := os.ReadDir(filepath.Join(p.Root, dir))
	if err != nil {
		return nil, unavailable(cat, err)
	}
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !models.ValidItemID(e.Name()) {
			continue
		}
		items = append(items, e.Name())
	}
	sort.Strings(items)
	return items, nil
}

func (p *DirPool) Locate(cat models.Category, id string) string {
	return p.BaseURL + "/images/" + CategoryDirs[cat] + "/" + url.PathEscape(id)
}
