package lifecycle

import (
	"time"

	"github.com/google/uuid"
)

// maxReportedFailures caps the failures kept in a report; Failed keeps the full count.
const maxReportedFailures = 100

// RecordFailure is a single record skipped during a build.
type RecordFailure struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// BuildReport summarizes one index build.
type BuildReport struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Source     string          `json:"source"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Duration   string          `json:"duration"`
	Total      int             `json:"total"`
	Indexed    int             `json:"indexed"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Failures   []RecordFailure `json:"failures,omitempty"`
	Persisted  bool            `json:"persisted"`
	Error      string          `json:"error,omitempty"`
}

// Build kinds.
const (
	KindInitial    = "initial"
	KindLoaded     = "loaded"
	KindRebuild    = "rebuild"
	KindBackground = "background"
)

func newReport(kind string) *BuildReport {
	return &BuildReport{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
	}
}

func (r *BuildReport) fail(id int64, err error) {
	r.Failed++
	if len(r.Failures) < maxReportedFailures {
		r.Failures = append(r.Failures, RecordFailure{ID: id, Error: err.Error()})
	}
}

func (r *BuildReport) finish(err error) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	if err != nil {
		r.Error = err.Error()
	}
}

// clone returns a copy safe to hand to callers.
func (r *BuildReport) clone() *BuildReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Failures = append([]RecordFailure(nil), r.Failures...)
	return &c
}
