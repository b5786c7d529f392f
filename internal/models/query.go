package models

import "fmt"

// DefaultK is the number of results returned when a query does not ask for a count.
const DefaultK = 5

// SearchQuery represents an image similarity request.
type SearchQuery struct {
	// Name is a display label for the query image (upload filename or path).
	Name  string `json:"name,omitempty"`
	Image []byte `json:"-"`
	K     int    `json:"k,omitempty"`
}

// Validate checks the image payload and bounds k to [1, maxK].
// A zero k takes DefaultK; a negative k or one above maxK is rejected.
func (q *SearchQuery) Validate(maxK int) error {
	if len(q.Image) == 0 {
		return fmt.Errorf("query image cannot be empty")
	}
	if q.K == 0 {
		q.K = DefaultK
	}
	if q.K < 0 {
		return &InvalidKError{K: q.K, Max: maxK}
	}
	if maxK > 0 && q.K > maxK {
		return &InvalidKError{K: q.K, Max: maxK}
	}
	return nil
}
