package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "embeddings")

	if err := os.WriteFile(base+".vec", make([]byte, 44+16), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base+".manifest.json", []byte(`{"rows":1}`), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DiskUsageBytes(base+".vec", base+".manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	if got != 60+10 {
		t.Errorf("artifact pair: got %d bytes, want 70", got)
	}

	got, err = DiskUsageBytes(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != 70 {
		t.Errorf("directory: got %d bytes, want 70", got)
	}
}

func TestDiskUsageBytes_MissingAndEmpty(t *testing.T) {
	got, err := DiskUsageBytes("", filepath.Join(t.TempDir(), "missing.vec"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}
