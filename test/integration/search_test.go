// Package integration provides tests against real databases and object storage.
// Each test is skipped unless its service is configured through the environment.
package integration

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kagami/internal/config"
	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/indexer"
	"github.com/hyperjump/kagami/internal/remote"
	"github.com/hyperjump/kagami/internal/search"
	"github.com/hyperjump/kagami/internal/storage"
	"github.com/hyperjump/kagami/internal/vectorstore"
)

func writeCollection(t *testing.T, root string) []string {
	t.Helper()
	colors := map[string]color.RGBA{
		"reds/red.png":     {R: 230, G: 20, B: 20, A: 255},
		"greens/green.png": {R: 20, G: 210, B: 40, A: 255},
		"blues/blue.png":   {R: 10, G: 30, B: 220, A: 255},
	}
	var paths []string
	for rel, c := range colors {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				img.Set(x, y, c)
			}
		}
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()
		paths = append(paths, path)
	}
	return paths
}

func ingest(t *testing.T, root, storePath string, e embedding.Embedder) *vectorstore.Store {
	t.Helper()
	store, report, err := indexer.NewIndexer(e, indexer.WithStorePath(storePath, vectorstore.CodecLZ4)).
		Ingest(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("ingest report: %+v", report)
	}
	return store
}

func TestIntegration_PostgresHistory(t *testing.T) {
	dsn := os.Getenv("KAGAMI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KAGAMI_TEST_POSTGRES_DSN not set")
	}
	history, err := storage.NewHistoryStore(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()

	dir := t.TempDir()
	root := filepath.Join(dir, "images")
	paths := writeCollection(t, root)
	e := embedding.NewHashEmbedder(32)
	storePath := filepath.Join(dir, "embeddings")
	ingest(t, root, storePath, e)

	svc := search.NewService(e, search.NewResolver(root), search.WithHistory(history))
	if err := svc.Load(storePath); err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	ctx := context.Background()
	before, err := history.CountSearches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := svc.QueryFile(ctx, paths[0], 2)
	if err != nil {
		t.Fatal(err)
	}
	after, err := history.CountSearches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after != before+1 {
		t.Errorf("searches = %d, want %d", after, before+1)
	}
	records, err := history.ListSearches(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ResultCount != resp.Total {
		t.Errorf("latest record = %+v, want %d results", records, resp.Total)
	}
	got, err := history.GetSearch(ctx, records[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != resp.Total || got.Results[0].SourcePath != resp.Results[0].SourcePath {
		t.Errorf("stored results differ from response: %+v", got.Results)
	}
}

func TestIntegration_MinioRoundTrip(t *testing.T) {
	endpoint := os.Getenv("KAGAMI_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("KAGAMI_TEST_MINIO_ENDPOINT not set")
	}
	cfg := config.RemoteConfig{
		Endpoint:  endpoint,
		Bucket:    "kagami-integration",
		Prefix:    fmt.Sprintf("run-%d", time.Now().UnixNano()),
		AccessKey: os.Getenv(config.EnvRemoteAccessKey),
		SecretKey: os.Getenv(config.EnvRemoteSecretKey),
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	mirror, err := remote.New(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	root := filepath.Join(dir, "images")
	writeCollection(t, root)
	e := embedding.NewHashEmbedder(32)
	local := filepath.Join(dir, "a", "embeddings")
	want := ingest(t, root, local, e)

	if err := mirror.Push(ctx, local); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "b", "embeddings")
	got, err := mirror.Pull(ctx, other)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != want.Len() || got.Dim() != want.Dim() {
		t.Fatalf("pulled %dx%d, want %dx%d", got.Len(), got.Dim(), want.Len(), want.Dim())
	}

	svc := search.NewService(e, search.NewResolver(root))
	if err := svc.Load(other); err != nil {
		t.Fatalf("pulled store does not load: %v", err)
	}
	defer svc.Close()
	if svc.State().State != search.StateReady {
		t.Errorf("state = %s, want ready", svc.State().State)
	}
}
