package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kagami/internal/catalog"
	"github.com/hyperjump/kagami/internal/config"
	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/indexer"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/search"
	"github.com/hyperjump/kagami/internal/storage"
	"github.com/hyperjump/kagami/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pngBytes(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	red   = color.RGBA{R: 230, G: 20, B: 20, A: 255}
	green = color.RGBA{R: 20, G: 210, B: 40, A: 255}
	blue  = color.RGBA{R: 10, G: 30, B: 220, A: 255}
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	root    string
	base    string
	history storage.HistoryStore
}

func newTestEnv(t *testing.T, ready bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	for name, c := range map[string]color.RGBA{"red": red, "green": green, "blue": blue} {
		path := filepath.Join(root, name, name+".png")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, pngBytes(t, c), 0644))
	}

	emb := embedding.NewHashEmbedder(64)
	base := filepath.Join(t.TempDir(), "store", "embeddings")
	idx := indexer.NewIndexer(emb, indexer.WithStorePath(base, vectorstore.CodecZSTD))

	history, err := storage.NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	svc := search.NewService(emb, search.NewResolver(root),
		search.WithHistory(history),
		search.WithLimits(5, 10),
	)
	cat, err := catalog.NewMemOnly(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	if ready {
		store, report, err := idx.Ingest(context.Background(), root)
		require.NoError(t, err)
		require.True(t, report.OK())
		require.NoError(t, svc.Swap(store))
		require.NoError(t, cat.Rebuild(context.Background(), store))
	}

	cfg := &config.ServerConfig{Host: "localhost", Port: 0, MaxUploadBytes: 1 << 20, RequestTimeout: 5 * time.Second}
	srv := NewServer(svc, cfg, zap.NewNop(),
		WithCatalog(cat, root),
		WithHistory(history),
		WithStorePath(base),
		WithExtensions(indexer.DefaultExtensions),
	)
	return &testEnv{srv: srv, handler: srv.Handler(), root: root, base: base, history: history}
}

func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func multipartSearch(t *testing.T, filename string, data []byte, k string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	if k != "" {
		require.NoError(t, mw.WriteField("k", k))
	}
	require.NoError(t, mw.Close())
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestHandleSearch_Multipart(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(multipartSearch(t, "query.png", pngBytes(t, red), "2"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.SearchResponse](t, w)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.K)
	assert.Equal(t, "query.png", resp.Query)
	top := resp.Results[0]
	assert.Equal(t, "red.png", top.Filename)
	assert.Equal(t, "red", top.Class)
	assert.Equal(t, 1, top.Rank)
	assert.InDelta(t, 100.0, top.SimilarityPercent, 1e-3)
	assert.GreaterOrEqual(t, top.SimilarityPercent, resp.Results[1].SimilarityPercent)

	list, err := env.history.ListSearches(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "query.png", list[0].QueryName)
}

func TestHandleSearch_RawBody(t *testing.T) {
	env := newTestEnv(t, true)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search?k=1", bytes.NewReader(pngBytes(t, blue)))
	r.Header.Set("Content-Type", "image/png")
	w := env.do(r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.SearchResponse](t, w)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "blue.png", resp.Results[0].Filename)
	assert.Contains(t, resp.Query, "upload-")
}

func TestHandleSearch_Errors(t *testing.T) {
	env := newTestEnv(t, true)
	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"k not a number", multipartSearch(t, "q.png", pngBytes(t, red), "abc"), http.StatusBadRequest},
		{"k above max", multipartSearch(t, "q.png", pngBytes(t, red), "11"), http.StatusBadRequest},
		{"negative k", multipartSearch(t, "q.png", pngBytes(t, red), "-2"), http.StatusBadRequest},
		{"missing image field", multipartSearch(t, "", nil, "3"), http.StatusBadRequest},
		{"disallowed extension", multipartSearch(t, "q.tiff", pngBytes(t, red), ""), http.StatusUnsupportedMediaType},
		{"not an image", multipartSearch(t, "q.png", []byte("definitely not a png"), ""), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, decode[map[string]string](t, w), "error")
		})
	}
}

func TestHandleSearch_TooLarge(t *testing.T) {
	env := newTestEnv(t, true)
	env.srv.config.MaxUploadBytes = 64
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(make([]byte, 1024)))
	r.Header.Set("Content-Type", "image/png")
	w := env.do(r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleSearch_NotReady(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(multipartSearch(t, "q.png", pngBytes(t, red), ""))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, h.Code)
	assert.Equal(t, "not_ready", decode[map[string]string](t, h)["state"])
}

func TestHandleHealthAndStats(t *testing.T) {
	env := newTestEnv(t, true)
	h := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, h.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, h)["state"])

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.DatasetStats](t, w)
	assert.Equal(t, 3, stats.TotalVectors)
	assert.Equal(t, 64, stats.Dimensions)
	assert.True(t, stats.IndexReady)
	assert.Equal(t, "hash", stats.Embedder)
}

func TestHandleCatalogAndClasses(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/catalog?q=green", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Results []catalog.Entry `json:"results"`
		Total   int             `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "green.png", out.Results[0].Filename)

	c := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/classes", nil))
	require.Equal(t, http.StatusOK, c.Code)
	var classes struct {
		Classes []catalog.ClassCount `json:"classes"`
	}
	require.NoError(t, json.NewDecoder(c.Body).Decode(&classes))
	assert.Len(t, classes.Classes, 3)
}

func TestHandleArtifact(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/0", nil))
	require.Equal(t, http.StatusOK, w.Code)
	// Rows follow lexical path order: blue, green, red.
	assert.Equal(t, pngBytes(t, blue), w.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/99", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/x", nil)).Code)

	require.NoError(t, os.Remove(filepath.Join(env.root, "green", "green.png")))
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/1", nil)).Code)
}

func TestHandleHistory(t *testing.T) {
	env := newTestEnv(t, true)
	empty := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	require.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, `{"searches":[]}`, empty.Body.String())

	require.Equal(t, http.StatusOK, env.do(multipartSearch(t, "q.png", pngBytes(t, green), "")).Code)
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Searches []models.HistoryRecord `json:"searches"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out.Searches, 1)

	one := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/history/"+out.Searches[0].ID, nil))
	assert.Equal(t, http.StatusOK, one.Code)
	missing := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/history/nope", nil))
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestHandleReload(t *testing.T) {
	env := newTestEnv(t, false)
	// The indexer persisted nothing yet for a not-ready env.
	w := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/reload", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	store := vectorstore.New(64)
	vec := make([]float32, 64)
	vec[0] = 1
	require.NoError(t, store.Append(vec, models.SourceRecord{CanonicalPath: filepath.Join(env.root, "red", "red.png")}))
	require.NoError(t, vectorstore.Save(store, env.base, vectorstore.CodecNone))

	w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/reload", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[models.DatasetStats](t, w).TotalVectors)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&models.InvalidKError{K: 0, Max: 5}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrServiceNotReady, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: no model", models.ErrServiceDegraded), http.StatusServiceUnavailable},
		{models.ErrEmbeddingTimeout, http.StatusGatewayTimeout},
		{models.ErrDecodeFailure, http.StatusUnprocessableEntity},
		{models.ErrModelFailure, http.StatusBadGateway},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: a.tiff", errUnsupportedType), http.StatusUnsupportedMediaType},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
