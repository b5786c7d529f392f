package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hyperjump/kagami/internal/models"
)

// MatrixPath returns the matrix artifact path for a store base path.
func MatrixPath(base string) string { return base + ".vec" }

// ManifestPath returns the manifest artifact path for a store base path.
func ManifestPath(base string) string { return base + ".manifest.json" }

// Artifacts lists both artifact paths, matrix first.
func Artifacts(base string) []string {
	return []string{MatrixPath(base), ManifestPath(base)}
}

type manifest struct {
	Format      string           `json:"format"`
	Version     int              `json:"version"`
	Rows        int              `json:"rows"`
	Dim         int              `json:"dim"`
	Codec       string           `json:"codec"`
	Embedder    string           `json:"embedder,omitempty"`
	MatrixCRC32 uint32           `json:"matrix_crc32"`
	CreatedAt   time.Time        `json:"created_at"`
	Sources     []manifestSource `json:"sources"`
}

type manifestSource struct {
	Path        string `json:"path"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Save writes the store to base as two artifacts. Each is written to a temp file,
// fsynced, and renamed over the previous one, matrix first. The manifest carries the
// matrix checksum, so a crash between the two renames is detected by Load.
func Save(s *Store, base string, codec Codec) error {
	if base == "" {
		return fmt.Errorf("%w: empty store path", models.ErrIOFailure)
	}
	if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
		return fmt.Errorf("%w: create store directory: %v", models.ErrIOFailure, err)
	}
	matrix, checksum, err := encodeMatrix(s.data, s.Len(), s.dim, codec)
	if err != nil {
		return err
	}
	m := manifest{
		Format:      manifestFormat,
		Version:     manifestVersion,
		Rows:        s.Len(),
		Dim:         s.dim,
		Codec:       Codec(matrix[8]).String(),
		Embedder:    s.embedder,
		MatrixCRC32: checksum,
		CreatedAt:   time.Now().UTC(),
		Sources:     make([]manifestSource, len(s.sources)),
	}
	for i, rec := range s.sources {
		m.Sources[i] = manifestSource{Path: rec.CanonicalPath, Placeholder: rec.Placeholder}
	}
	manifestBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeFileAtomic(MatrixPath(base), matrix); err != nil {
		return err
	}
	return writeFileAtomic(ManifestPath(base), manifestBytes)
}

// Load reads and validates both artifacts. A missing artifact yields ErrNotFound;
// any structural or cross-artifact inconsistency yields ErrCorruptFormat.
func Load(base string) (*Store, error) {
	matrixBytes, err := readArtifact(MatrixPath(base))
	if err != nil {
		return nil, err
	}
	manifestBytes, err := readArtifact(ManifestPath(base))
	if err != nil {
		return nil, err
	}
	h, data, err := decodeMatrix(matrixBytes)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", MatrixPath(base), err)
	}
	var m manifest
	if err := json.Unmarshal(manifestBytes, &m); err != nil {
		return nil, fmt.Errorf("load %s: %w", ManifestPath(base), corrupt("manifest json: %v", err))
	}
	if m.Format != manifestFormat {
		return nil, corrupt("unknown manifest format %q", m.Format)
	}
	if m.Version != manifestVersion {
		return nil, corrupt("unsupported manifest version %d", m.Version)
	}
	if uint64(m.Rows) != h.rows || len(m.Sources) != m.Rows {
		return nil, corrupt("row count mismatch: manifest %d (%d sources), matrix %d", m.Rows, len(m.Sources), h.rows)
	}
	if uint32(m.Dim) != h.dim {
		return nil, corrupt("dimension mismatch: manifest %d, matrix %d", m.Dim, h.dim)
	}
	if m.MatrixCRC32 != h.checksum {
		return nil, corrupt("manifest does not belong to matrix: checksum %08x != %08x", m.MatrixCRC32, h.checksum)
	}
	s := &Store{
		dim:      m.Dim,
		data:     data,
		sources:  make([]models.SourceRecord, m.Rows),
		masked:   roaring.New(),
		embedder: m.Embedder,
	}
	for i, src := range m.Sources {
		s.sources[i] = models.SourceRecord{CanonicalPath: src.Path, Placeholder: src.Placeholder}
		if src.Placeholder {
			s.masked.Add(uint32(i))
		}
	}
	return s, nil
}

// Exists reports whether both artifacts are present.
func Exists(base string) bool {
	for _, p := range Artifacts(base) {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func readArtifact(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrIOFailure, path, err)
	}
	return b, nil
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", models.ErrIOFailure, path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if _, err := os.Stat(tmpName); err == nil {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %v", models.ErrIOFailure, path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync %s: %v", models.ErrIOFailure, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", models.ErrIOFailure, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", models.ErrIOFailure, path, err)
	}
	syncDir(dir)
	return nil
}

// syncDir persists the rename. Some platforms cannot fsync a directory; that is ignored.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_ = f.Sync()
}
