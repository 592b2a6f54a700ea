// Package storage keeps the history of index builds.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/mirip/internal/lifecycle"
)

// ErrBuildNotFound is returned when a build id is unknown.
var ErrBuildNotFound = errors.New("build not found")

// History stores and lists finished build reports.
type History interface {
	lifecycle.ReportRecorder

	GetBuild(ctx context.Context, id string) (*lifecycle.BuildReport, error)
	ListBuilds(ctx context.Context, offset, limit int) ([]*lifecycle.BuildReport, error)
	CountBuilds(ctx context.Context) (int64, error)
	Close() error
}
