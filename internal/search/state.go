package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kagami/internal/vector"
	"github.com/hyperjump/kagami/internal/vectorstore"
)

// State is the readiness of a Service.
type State int

const (
	// StateNotReady means no store has been loaded; queries fail with ErrServiceNotReady.
	StateNotReady State = iota
	// StateReady means queries are answered from the current snapshot.
	StateReady
	// StateDegraded means a snapshot is loaded but the service runs with a known fault,
	// such as a fallback embedder. Queries follow the DegradedPolicy.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "not_ready"
	}
}

// ServiceState is the state of a Service together with the reason when degraded.
type ServiceState struct {
	State  State
	Reason string
}

// DegradedPolicy decides how a degraded service answers queries.
type DegradedPolicy string

const (
	// DegradedReject fails queries with ErrServiceDegraded.
	DegradedReject DegradedPolicy = "reject"
	// DegradedServe answers queries and flags the response as degraded.
	DegradedServe DegradedPolicy = "serve"
)

// ParseDegradedPolicy maps a config value to a DegradedPolicy. Empty means serve.
func ParseDegradedPolicy(s string) (DegradedPolicy, error) {
	switch DegradedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DegradedServe:
		return DegradedServe, nil
	case DegradedReject:
		return DegradedReject, nil
	default:
		return "", fmt.Errorf("unknown degraded policy %q (use reject or serve)", s)
	}
}

// snapshot is an immutable store and the index built over it.
type snapshot struct {
	store    *vectorstore.Store
	index    vector.Index
	loadedAt time.Time
}
