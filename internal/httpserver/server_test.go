package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/outfit-review/internal/assets"
	"github.com/ILLUVRSE/outfit-review/internal/auth"
	"github.com/ILLUVRSE/outfit-review/internal/config"
	"github.com/ILLUVRSE/outfit-review/internal/export"
	"github.com/ILLUVRSE/outfit-review/internal/ledger"
	"github.com/ILLUVRSE/outfit-review/internal/sampler"
	"github.com/ILLUVRSE/outfit-review/internal/service"
)

type fixture struct {
	router   http.Handler
	store    *ledger.MemoryStore
	assetDir string
}

func writeAssets(t *testing.T, root string, files map[string][]string) {
	t.Helper()
	for dir, names := range files {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(root, dir, n), []byte("img:"+n), 0o644))
		}
	}
}

func newFixture(t *testing.T, mutate func(*config.Config), verifier *auth.Verifier) fixture {
	t.Helper()
	root := t.TempDir()
	writeAssets(t, root, map[string][]string{
		"tops":    {"A.jpg", "B.jpg"},
		"bottoms": {"X.png"},
	})
	cfg := config.Config{
		AssetDir:       root,
		PublicBaseURL:  "http://localhost:3000",
		MaxAttempts:    200,
		AllowedOrigins: []string{"*"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	store := ledger.NewMemoryStore()
	smp := sampler.New(assets.NewDirPool(root, cfg.PublicBaseURL),
		sampler.WithMaxAttempts(cfg.MaxAttempts), sampler.WithRand(rand.New(rand.NewPCG(3, 4))))
	svc := service.New(store, smp)
	srv := New(cfg, svc, export.NewExporter(store), store, verifier)
	return fixture{router: srv.Router(), store: store, assetDir: root}
}

func (f fixture) do(t *testing.T, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeCombination(t *testing.T, rec *httptest.ResponseRecorder) map[string]map[string]string {
	t.Helper()
	var out map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGetCombination(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/combination", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decodeCombination(t, rec)
	assert.Len(t, c, 5)
	assert.Nil(t, c["shoes"])
	assert.Equal(t, "X.png", c["bottom"]["filename"])
	assert.Equal(t, "http://localhost:3000/images/bottoms/X.png", c["bottom"]["url"])
	assert.Contains(t, []string{"A.jpg", "B.jpg"}, c["top"]["filename"])
}

func TestDecisionFlowAndDownloads(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/download/processed", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	first := decodeCombination(t, f.do(t, http.MethodGet, "/api/combination", nil, nil))
	rec = f.do(t, http.MethodPost, "/api/decision", map[string]interface{}{
		"currentCombination": first,
		"decisions":          map[string]string{"top": "accept", "bottom": "reject"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decodeCombination(t, rec)
	assert.NotEqual(t, first["top"]["filename"], next["top"]["filename"])

	rec = f.do(t, http.MethodGet, "/api/download/accepted", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="accepted.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("%s,,,,,", first["top"]["filename"]))

	rec = f.do(t, http.MethodGet, "/api/download/processed", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "top=accept;bottom=reject")

	// Uniform decision for the remaining combination exhausts the space.
	rec = f.do(t, http.MethodPost, "/api/decision", map[string]interface{}{
		"currentCombination": next,
		"decision":           "reject",
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "exhausted")

	rec = f.do(t, http.MethodGet, "/api/combination", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	processed, _ := f.store.ListProcessed(context.Background())
	assert.Len(t, processed, 2)
}

func TestDecisionValidation(t *testing.T) {
	f := newFixture(t, nil, nil)
	combo := map[string]interface{}{
		"top":    map[string]string{"filename": "A.jpg"},
		"bottom": map[string]string{"filename": "X.png"},
	}

	cases := []struct {
		name string
		body interface{}
	}{
		{"malformed json", `{"currentCombination":`},
		{"missing category", map[string]interface{}{"currentCombination": combo, "decisions": map[string]string{"top": "accept"}}},
		{"unknown category", map[string]interface{}{"currentCombination": combo, "decisions": map[string]string{"top": "accept", "bottom": "accept", "hat": "accept"}}},
		{"bad value", map[string]interface{}{"currentCombination": combo, "decisions": map[string]string{"top": "accept", "bottom": "meh"}}},
		{"bad uniform value", map[string]interface{}{"currentCombination": combo, "decision": "meh"}},
		{"unknown combination category", map[string]interface{}{"currentCombination": map[string]interface{}{"hat": map[string]string{"filename": "h.jpg"}}, "decision": "accept"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/decision", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	processed, _ := f.store.ListProcessed(context.Background())
	assert.Empty(t, processed)
}

func TestDecisionWithMultilineIdentifierLeavesFileLedgerUntouched(t *testing.T) {
	root := t.TempDir()
	writeAssets(t, root, map[string][]string{"tops": {"A.jpg"}, "bottoms": {"X.png"}})
	dataDir := t.TempDir()
	store, err := ledger.OpenFileStore(dataDir)
	require.NoError(t, err)
	defer store.Close()

	cfg := config.Config{AssetDir: root, MaxAttempts: 50, AllowedOrigins: []string{"*"}}
	svc := service.New(store, sampler.New(assets.NewDirPool(root, "")))
	router := New(cfg, svc, export.NewExporter(store), store, nil).Router()
	f := fixture{router: router, assetDir: root}

	rec := f.do(t, http.MethodPost, "/api/decision", map[string]interface{}{
		"currentCombination": map[string]interface{}{
			"top":    map[string]string{"filename": "a\nb.jpg"},
			"bottom": map[string]string{"filename": "X.png"},
		},
		"decisions": map[string]string{"top": "accept", "bottom": "reject"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	_, err = os.Stat(filepath.Join(dataDir, ledger.ProcessedFileName))
	assert.True(t, os.IsNotExist(err), "no ledger row may be written")
	rec = f.do(t, http.MethodGet, "/api/download/processed", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreFailureIs500(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.store.FailAppend = ledger.ErrStoreIO

	rec := f.do(t, http.MethodPost, "/api/decision", map[string]interface{}{
		"currentCombination": map[string]interface{}{"top": map[string]string{"filename": "A.jpg"}},
		"decision":           "accept",
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndUnknownAPI(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "API endpoint not found")
}

func TestImagesAreServed(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/images/tops/A.jpg", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "img:A.jpg", rec.Body.String())
}

func TestSPAFallback(t *testing.T) {
	ui := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ui, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ui, "app.js"), []byte("console.log(1)"), 0o644))
	f := newFixture(t, func(c *config.Config) { c.UIDir = ui }, nil)

	rec := f.do(t, http.MethodGet, "/review/42", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app</html>")

	rec = f.do(t, http.MethodGet, "/app.js", nil, nil)
	assert.Equal(t, "console.log(1)", rec.Body.String())
}

func TestCORS(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.AllowedOrigins = []string{"http://localhost:19006"} }, nil)

	rec := f.do(t, http.MethodOptions, "/api/decision", nil, http.Header{"Origin": {"http://localhost:19006"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:19006", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodGet, "/api/combination", nil, http.Header{"Origin": {"http://evil.example"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBearerTokenRequiredAndReviewerRecorded(t *testing.T) {
	v, err := auth.NewVerifier("s3cret")
	require.NoError(t, err)
	f := newFixture(t, nil, v)

	rec := f.do(t, http.MethodGet, "/api/combination", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := v.Issue("reviewer-9", time.Hour)
	require.NoError(t, err)
	hdr := http.Header{"Authorization": {"Bearer " + tok}}

	rec = f.do(t, http.MethodPost, "/api/decision", map[string]interface{}{
		"currentCombination": map[string]interface{}{"top": map[string]string{"filename": "A.jpg"}, "bottom": map[string]string{"filename": "X.png"}},
		"decision":           "accept",
	}, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	processed, _ := f.store.ListProcessed(context.Background())
	require.Len(t, processed, 1)
	assert.Equal(t, "reviewer-9", processed[0].Reviewer)

	rec = f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")
}
