// Package lifecycle owns the published product index: it loads or builds it
// at startup, applies incremental adds and full rebuilds, and reports readiness.
package lifecycle

import (
	"context"
	"errors"

	"github.com/hyperjump/mirip/internal/models"
)

// State is the readiness of the manager.
type State string

const (
	StateNotInitialized State = "not_initialized"
	StateInitializing   State = "initializing"
	StateReady          State = "ready"
	// StateReadyWithError means the index serves queries but the last build
	// or save failed; see Status.Error.
	StateReadyWithError State = "ready_with_error"
)

var (
	// ErrNotReady is returned when no index has been published yet.
	ErrNotReady = errors.New("index not ready")
	// ErrDuplicateID is returned by AddOne for an id that is already indexed.
	ErrDuplicateID = errors.New("product already indexed")
	// ErrRebuildInProgress is returned when a background rebuild is requested while a build runs.
	ErrRebuildInProgress = errors.New("rebuild already in progress")
	// ErrNotIndexed is returned by RebuildWithout for an id that is not in the index.
	ErrNotIndexed = errors.New("product not indexed")
	// ErrEmptySource is returned when a rebuild would replace a non-empty index
	// with nothing because the source yielded no rows.
	ErrEmptySource = errors.New("source returned no products")
)

// RecordEmbedder maps a product row to a vector of Dimensions() length.
type RecordEmbedder interface {
	EmbedRecord(ctx context.Context, product models.Product) ([]float32, error)
	Dimensions() int
}

// Result is one search hit.
type Result struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Status is a point-in-time snapshot of the manager.
type Status struct {
	State      State        `json:"state"`
	Progress   int          `json:"progress"`
	Total      int          `json:"total"`
	Error      string       `json:"error,omitempty"`
	IndexSize  int          `json:"index_size"`
	Dimensions int          `json:"dimensions"`
	IndexType  string       `json:"index_type"`
	LastBuild  *BuildReport `json:"last_build,omitempty"`
}
