// Package remote mirrors the persisted vector store to S3-compatible object storage,
// so a serving host can pull the artifacts an ingest host produced.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/hyperjump/kagami/internal/config"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/vectorstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// blobStore is the subset of object storage the mirror needs.
type blobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Mirror pushes and pulls the matrix and manifest of one store.
type Mirror struct {
	blobs  blobStore
	prefix string
	logger *zap.Logger
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// New connects to the endpoint in cfg and creates the bucket if it does not exist.
func New(ctx context.Context, cfg config.RemoteConfig, opts ...Option) (*Mirror, error) {
	if !cfg.Enabled() {
		return nil, errors.New("remote storage is not configured (remote.endpoint and remote.bucket)")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return newMirror(&minioBlobs{client: client, bucket: cfg.Bucket}, cfg.Prefix, opts...), nil
}

func newMirror(blobs blobStore, prefix string, opts ...Option) *Mirror {
	m := &Mirror{blobs: blobs, prefix: prefix, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mirror) key(local string) string {
	return path.Join(m.prefix, filepath.Base(local))
}

// Push uploads the artifacts at base. The matrix goes first so a reader never sees a
// manifest that points at a missing matrix; a mismatched pair fails its checksum on load.
func (m *Mirror) Push(ctx context.Context, base string) error {
	if !vectorstore.Exists(base) {
		return fmt.Errorf("push %s: %w", base, models.ErrNotFound)
	}
	for _, local := range vectorstore.Artifacts(base) {
		data, err := os.ReadFile(local)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", models.ErrIOFailure, local, err)
		}
		if err := m.blobs.Put(ctx, m.key(local), data); err != nil {
			return fmt.Errorf("%w: upload %s: %v", models.ErrIOFailure, m.key(local), err)
		}
		m.logger.Info("artifact uploaded", zap.String("key", m.key(local)), zap.Int("bytes", len(data)))
	}
	return nil
}

// Pull downloads the artifacts for base, validates them as a pair, and only then
// installs them over the local copy. The validated store is returned.
func (m *Mirror) Pull(ctx context.Context, base string) (*vectorstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIOFailure, err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(base), ".pull-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIOFailure, err)
	}
	defer os.RemoveAll(staging)

	stagedBase := filepath.Join(staging, filepath.Base(base))
	for _, local := range vectorstore.Artifacts(base) {
		data, err := m.blobs.Get(ctx, m.key(local))
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", m.key(local), err)
		}
		if err := os.WriteFile(filepath.Join(staging, filepath.Base(local)), data, 0644); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrIOFailure, err)
		}
	}

	store, err := vectorstore.Load(stagedBase)
	if err != nil {
		return nil, fmt.Errorf("validate pulled store: %w", err)
	}
	staged := vectorstore.Artifacts(stagedBase)
	for i, target := range vectorstore.Artifacts(base) {
		if err := os.Rename(staged[i], target); err != nil {
			return nil, fmt.Errorf("%w: install %s: %v", models.ErrIOFailure, target, err)
		}
	}
	m.logger.Info("store pulled", zap.String("path", base), zap.Int("vectors", store.Len()))
	return store, nil
}

// minioBlobs implements blobStore for MinIO and S3-compatible storage.
type minioBlobs struct {
	client *minio.Client
	bucket string
}

func (b *minioBlobs) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

func (b *minioBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	if _, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("%s: %w", key, models.ErrNotFound)
		}
		return nil, err
	}
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
