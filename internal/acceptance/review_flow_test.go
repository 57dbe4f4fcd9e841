package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ILLUVRSE/outfit-review/internal/assets"
	"github.com/ILLUVRSE/outfit-review/internal/config"
	"github.com/ILLUVRSE/outfit-review/internal/export"
	"github.com/ILLUVRSE/outfit-review/internal/httpserver"
	"github.com/ILLUVRSE/outfit-review/internal/ledger"
	"github.com/ILLUVRSE/outfit-review/internal/models"
	"github.com/ILLUVRSE/outfit-review/internal/sampler"
	"github.com/ILLUVRSE/outfit-review/internal/service"
)

func setupAssets(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for dir, names := range map[string][]string{"tops": {"A.jpg", "B.jpg"}, "bottoms": {"X.jpg"}} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		for _, n := range names {
			if err := os.WriteFile(filepath.Join(root, dir, n), []byte(n), 0o644); err != nil {
				t.Fatalf("write asset: %v", err)
			}
		}
	}
	return root
}

func newRouter(t *testing.T, assetDir string, store ledger.Store) http.Handler {
	t.Helper()
	cfg := config.Config{AssetDir: assetDir, PublicBaseURL: "http://localhost:3000", MaxAttempts: 500, AllowedOrigins: []string{"*"}}
	smp := sampler.New(assets.NewDirPool(assetDir, cfg.PublicBaseURL), sampler.WithMaxAttempts(cfg.MaxAttempts))
	svc := service.New(store, smp)
	return httpserver.New(cfg, svc, export.NewExporter(store), store, nil).Router()
}

func call(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestTwoTopsOneBottomScenario(t *testing.T) {
	ctx := context.Background()
	assetDir := setupAssets(t)
	dataDir := t.TempDir()

	store, err := ledger.OpenFileStore(dataDir)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	router := newRouter(t, assetDir, store)

	rec := call(t, router, http.MethodGet, "/api/combination", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first draw: %d %s", rec.Code, rec.Body.String())
	}
	var first models.Combination
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode first: %v", err)
	}

	rec = call(t, router, http.MethodPost, "/api/decision", map[string]interface{}{
		"currentCombination": first,
		"decisions":          map[string]string{"top": "accept", "bottom": "reject"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var second models.Combination
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if second.Equal(first) {
		t.Fatalf("processed combination re-served: %s", first)
	}
	if bottom, _ := second.Item(models.CategoryBottom); bottom.ID != "X.jpg" {
		t.Fatalf("unexpected bottom %q", bottom.ID)
	}

	accepted, err := store.ListAccepted(ctx)
	if err != nil {
		t.Fatalf("list accepted: %v", err)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted record, got %d", len(accepted))
	}
	if got := accepted[0].Combination.Present(); len(got) != 1 || got[0] != models.CategoryTop {
		t.Fatalf("accepted record should hold only top, got %v", got)
	}

	rec = call(t, router, http.MethodPost, "/api/decision", map[string]interface{}{
		"currentCombination": second,
		"decisions":          map[string]string{"top": "reject", "bottom": "reject"},
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected exhaustion after the last combination, got %d %s", rec.Code, rec.Body.String())
	}
	rec = call(t, router, http.MethodGet, "/api/combination", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected exhaustion on third draw, got %d", rec.Code)
	}

	one := call(t, router, http.MethodGet, "/api/download/processed", nil).Body.String()
	two := call(t, router, http.MethodGet, "/api/download/processed", nil).Body.String()
	if one != two {
		t.Fatalf("export not idempotent:\n%s\n---\n%s", one, two)
	}
	onDisk, err := os.ReadFile(filepath.Join(dataDir, ledger.ProcessedFileName))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if string(onDisk) != one {
		t.Fatalf("export differs from ledger file:\n%s\n---\n%s", onDisk, one)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// History survives a restart.
	reopened, err := ledger.OpenFileStore(dataDir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	smp := sampler.New(assets.NewDirPool(assetDir, ""), sampler.WithMaxAttempts(500))
	if _, err := smp.DrawUnique(ctx, reopened); !errors.Is(err, sampler.ErrCombinationSpaceExhausted) {
		t.Fatalf("expected exhaustion after restart, got %v", err)
	}
}

func TestDownloadsBeforeAnyDecisionAreNotFound(t *testing.T) {
	store, err := ledger.OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer store.Close()
	router := newRouter(t, setupAssets(t), store)

	for _, path := range []string{"/api/download/processed", "/api/download/accepted"} {
		if rec := call(t, router, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}
