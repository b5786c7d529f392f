package vector

import (
	"context"
	"testing"
)

func TestNewIndex_Flat(t *testing.T) {
	idx, err := NewIndex("flat", storeOf(t, [][]float32{{1, 0, 0}}))
	if err != nil {
		t.Fatalf("NewIndex(flat): %v", err)
	}
	defer idx.Close()

	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if idx.Type() != "flat" {
		t.Errorf("Type=%s, want flat", idx.Type())
	}
	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Row != 0 {
		t.Errorf("unexpected hits %+v", hits)
	}
}

func TestNewIndex_Empty(t *testing.T) {
	// Empty string should default to flat
	idx, err := NewIndex("", storeOf(t, nil))
	if err != nil {
		t.Fatalf("NewIndex(''): %v", err)
	}
	defer idx.Close()

	if idx.Type() != string(IndexTypeFlat) {
		t.Errorf("Type=%s, want flat", idx.Type())
	}
}

func TestNewIndex_Unknown(t *testing.T) {
	_, err := NewIndex("hnsw", storeOf(t, nil))
	if err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewIndex_FAISSMatchesAvailability(t *testing.T) {
	_, err := NewIndex("faiss", storeOf(t, [][]float32{{1, 0}}))
	if IsFAISSAvailable() && err != nil {
		t.Errorf("FAISS available but NewIndex failed: %v", err)
	}
	if !IsFAISSAvailable() && err == nil {
		t.Error("expected error when FAISS is not compiled in")
	}
}

func TestSimilarityHelpers(t *testing.T) {
	a := []float32{0.6, 0.8}
	b := []float32{1, 0}
	if !IsUnit(a) || !IsUnit(b) {
		t.Error("expected unit vectors")
	}
	if IsUnit([]float32{2, 0}) {
		t.Error("norm 2 is not unit")
	}
	if d := SquaredL2(a, b); d < 0.799 || d > 0.801 {
		t.Errorf("SquaredL2 = %v, want 0.8", d)
	}
}
