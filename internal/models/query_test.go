package models

import (
	"errors"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G'}
	tests := []struct {
		name    string
		query   *SearchQuery
		maxK    int
		wantK   int
		wantErr bool
		badK    bool
	}{
		{"empty image", &SearchQuery{}, 50, 0, true, false},
		{"default k", &SearchQuery{Image: img}, 50, DefaultK, false, false},
		{"explicit k", &SearchQuery{Image: img, K: 12}, 50, 12, false, false},
		{"k at max", &SearchQuery{Image: img, K: 50}, 50, 50, false, false},
		{"k above max", &SearchQuery{Image: img, K: 51}, 50, 0, true, true},
		{"negative k", &SearchQuery{Image: img, K: -1}, 50, 0, true, true},
		{"no max", &SearchQuery{Image: img, K: 1000}, 0, 1000, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(tt.maxK)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.badK && !errors.Is(err, ErrInvalidK) {
				t.Errorf("expected ErrInvalidK, got %v", err)
			}
			if !tt.wantErr && tt.query.K != tt.wantK {
				t.Errorf("K = %d, want %d", tt.query.K, tt.wantK)
			}
		})
	}
}
