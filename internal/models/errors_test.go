package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionMismatchError(t *testing.T) {
	err := fmt.Errorf("append: %w", &DimensionMismatchError{Expected: 512, Actual: 3})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	var dm *DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 512, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
	assert.Contains(t, err.Error(), "expected 512, got 3")
}

func TestClassName(t *testing.T) {
	tests := []struct {
		root, path, want string
	}{
		{"/data", "/data/cats/a.jpg", "cats"},
		{"/data", "/data/animals/dogs/b.png", "dogs"},
		{"/data", "/data/c.png", UnknownClass},
		{"/data", "/elsewhere/x/c.png", UnknownClass},
		{"", "/data/cats/a.jpg", UnknownClass},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassName(tt.root, tt.path))
		})
	}
}
