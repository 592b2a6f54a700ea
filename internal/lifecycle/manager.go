package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hyperjump/mirip/internal/indexstore"
	"github.com/hyperjump/mirip/internal/models"
	"github.com/hyperjump/mirip/internal/source"
	"github.com/hyperjump/mirip/internal/vector"
)

// DefaultEmbedTimeout bounds a single record embedding during a build.
const DefaultEmbedTimeout = 30 * time.Second

// swapRetries bounds how often a call that found its store replaced retries
// on the newly published one.
const swapRetries = 3

var errNoID = errors.New("row has no integer id")

// ReportRecorder receives every finished build report.
type ReportRecorder interface {
	RecordBuild(ctx context.Context, r *BuildReport) error
}

// Manager owns the published index store. Searches and adds go to the
// published store; builds run one at a time and either fill a store that is
// published once ready or replace the published store wholesale.
//
// An AddOne that races a background rebuild may land in the store being
// replaced; the product is then only in the new store if the source already
// returned it.
type Manager struct {
	persister *indexstore.Persister
	source    source.Provider
	embedder  RecordEmbedder
	logger    *zap.Logger
	recorder  ReportRecorder

	threshold    int
	embedTimeout time.Duration
	limiter      *rate.Limiter
	indexType    string

	store atomic.Pointer[indexstore.Store]
	// filling is the published store while the initial build is still adding
	// to it. Such a store is saved only by the build.
	filling atomic.Pointer[indexstore.Store]
	build   *semaphore.Weighted
	wg      sync.WaitGroup

	mu        sync.Mutex
	state     State
	progress  int
	total     int
	lastErr   string
	lastBuild *BuildReport
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithThreshold publishes the initial build once n records are indexed.
// n <= 0 publishes only when the build completes.
func WithThreshold(n int) Option {
	return func(m *Manager) {
		m.threshold = n
	}
}

// WithEmbedTimeout bounds each record embedding.
func WithEmbedTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.embedTimeout = d
		}
	}
}

// WithRateLimit paces record embeddings during builds. rps <= 0 means unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(m *Manager) {
		if rps <= 0 {
			m.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithIndexType selects the vector index backend for new stores.
func WithIndexType(t string) Option {
	return func(m *Manager) {
		m.indexType = t
	}
}

// WithReportRecorder stores build reports.
func WithReportRecorder(r ReportRecorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// NewManager creates a manager in the not_initialized state.
func NewManager(persister *indexstore.Persister, src source.Provider, embedder RecordEmbedder, opts ...Option) *Manager {
	m := &Manager{
		persister:    persister,
		source:       src,
		embedder:     embedder,
		logger:       zap.NewNop(),
		embedTimeout: DefaultEmbedTimeout,
		limiter:      rate.NewLimiter(rate.Inf, 0),
		indexType:    string(vector.IndexTypeMemory),
		build:        semaphore.NewWeighted(1),
		state:        StateNotInitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize loads the persisted index or builds it from the source. It
// returns once the build completes; the store may be published earlier when
// the ready threshold is reached.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.build.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.build.Release(1)

	m.begin()
	dim := m.embedder.Dimensions()
	if s, ok := m.persister.LoadIfExists(ctx, dim); ok {
		n := s.Count()
		r := newReport(KindLoaded)
		r.Source = "persisted"
		r.Total, r.Indexed, r.Persisted = n, n, true
		r.finish(nil)
		m.publish(s)
		m.finish(ctx, r, n, n, nil)
		return nil
	}

	s, err := indexstore.NewStore(m.indexType, dim)
	if err != nil {
		r := newReport(KindInitial)
		r.finish(err)
		m.finish(ctx, r, 0, 0, err)
		return err
	}
	return m.buildInto(ctx, s, KindInitial)
}

// InitializeInBackground runs Initialize on a goroutine. Poll Status for progress.
func (m *Manager) InitializeInBackground(ctx context.Context) {
	m.mu.Lock()
	if m.state == StateNotInitialized {
		m.state = StateInitializing
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.Initialize(ctx); err != nil {
			m.logger.Error("Index initialization finished with error", zap.Error(err))
		}
	}()
}

// AddOne indexes one product and persists the store. It requires a published store.
// While the initial build is still filling the store the add is saved with
// the build. An add whose store is replaced before it is saved is retried on
// the new store.
func (m *Manager) AddOne(ctx context.Context, id int64, vec []float32) error {
	moved := false
	for attempt := 0; ; attempt++ {
		s := m.store.Load()
		if s == nil {
			return ErrNotReady
		}
		added, err := s.AddIfAbsent(id, vec)
		if errors.Is(err, indexstore.ErrStoreClosed) && attempt < swapRetries {
			continue
		}
		if err != nil {
			return err
		}
		if !added {
			if moved {
				// The replacement store already holds the product.
				return nil
			}
			return fmt.Errorf("%w: %d", ErrDuplicateID, id)
		}
		if m.filling.Load() == s {
			m.logger.Info("Product indexed during build", zap.Int64("id", id), zap.Int("index_size", s.Count()))
			return nil
		}
		err = m.persister.Save(ctx, s)
		if (errors.Is(err, indexstore.ErrSuperseded) || errors.Is(err, indexstore.ErrStoreClosed)) &&
			attempt < swapRetries {
			moved = true
			continue
		}
		if err != nil {
			m.degrade(err)
			return err
		}
		m.logger.Info("Product indexed", zap.Int64("id", id), zap.Int("index_size", s.Count()))
		return nil
	}
}

// Rebuild replaces the published store contents with items, in order, and
// persists the result. It waits for any running build. When nothing is
// published yet, a new store is created and published.
func (m *Manager) Rebuild(ctx context.Context, items []indexstore.Item) error {
	if err := m.build.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.build.Release(1)

	s := m.store.Load()
	created := false
	if s == nil {
		var err error
		s, err = indexstore.NewStore(m.indexType, m.embedder.Dimensions())
		if err != nil {
			return err
		}
		created = true
	}
	if err := s.Rebuild(items); err != nil {
		if created {
			_ = s.Close()
		}
		return err
	}
	if created {
		m.publish(s)
	}
	return m.saveRebuild(ctx, s, len(items))
}

// RebuildWithout removes id by rebuilding the published store from the other
// ids. items derives the replacement entries for those ids. The whole
// operation holds the build lock, so removals and rebuilds never start from
// each other's stale id sets; products added meanwhile are kept.
func (m *Manager) RebuildWithout(ctx context.Context, id int64,
	items func(ctx context.Context, remaining []int64) ([]indexstore.Item, error)) error {
	if err := m.build.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.build.Release(1)

	s := m.store.Load()
	if s == nil {
		return ErrNotReady
	}
	current := s.IDs()
	remaining := make([]int64, 0, len(current))
	found := false
	for _, other := range current {
		if other == id {
			found = true
			continue
		}
		remaining = append(remaining, other)
	}
	if !found {
		return fmt.Errorf("%w: %d", ErrNotIndexed, id)
	}

	replacement, err := items(ctx, remaining)
	if err != nil {
		return err
	}
	if err := s.RebuildKeepingTail(replacement, len(current), id); err != nil {
		return err
	}
	return m.saveRebuild(ctx, s, s.Count())
}

// saveRebuild persists a store rebuilt in place and records the report.
func (m *Manager) saveRebuild(ctx context.Context, s *indexstore.Store, n int) error {
	r := newReport(KindRebuild)
	r.Source = "items"
	r.Total = n
	r.Indexed = n

	saveErr := m.save(ctx, s)
	r.Persisted = saveErr == nil
	r.finish(saveErr)
	m.finish(ctx, r, n, n, saveErr)
	return saveErr
}

// RebuildInBackground re-derives the index from the source into a new store
// on a goroutine, swaps it in, then saves it. Readers keep using the current
// store until the swap. Returns ErrRebuildInProgress if a build is running.
func (m *Manager) RebuildInBackground(ctx context.Context) error {
	if !m.build.TryAcquire(1) {
		return ErrRebuildInProgress
	}
	m.begin()
	bctx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.build.Release(1)
		if err := m.rebuildFromSource(bctx, KindBackground); err != nil {
			m.logger.Error("Background rebuild finished with error", zap.Error(err))
		}
	}()
	return nil
}

// RebuildFromSource is the blocking form of RebuildInBackground.
func (m *Manager) RebuildFromSource(ctx context.Context) error {
	if err := m.build.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.build.Release(1)
	m.begin()
	return m.rebuildFromSource(ctx, KindRebuild)
}

func (m *Manager) rebuildFromSource(ctx context.Context, kind string) error {
	s, err := indexstore.NewStore(m.indexType, m.embedder.Dimensions())
	if err != nil {
		r := newReport(kind)
		r.finish(err)
		m.finish(ctx, r, 0, 0, err)
		return err
	}
	return m.buildInto(ctx, s, kind)
}

// buildInto fills s from the source. The initial build publishes s as soon as
// the threshold is reached; other builds publish s once it is complete. A
// build interrupted by ctx is not saved.
func (m *Manager) buildInto(ctx context.Context, s *indexstore.Store, kind string) error {
	early := kind == KindInitial
	r := newReport(kind)
	rows, from := m.fetch(ctx)
	r.Source = from
	r.Total = len(rows)

	if len(rows) == 0 && !early {
		if cur := m.store.Load(); cur != nil && cur.Count() > 0 {
			_ = s.Close()
			err := fmt.Errorf("%w: keeping %d indexed products", ErrEmptySource, cur.Count())
			r.finish(err)
			m.finish(ctx, r, 0, 0, err)
			return err
		}
	}

	live := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		if row.IsDeleted() {
			r.Skipped++
			continue
		}
		live = append(live, row)
	}
	m.setTotal(len(live))
	m.logger.Info("Building index",
		zap.String("build_id", r.ID),
		zap.String("kind", kind),
		zap.String("source", from),
		zap.Int("records", len(live)),
		zap.Int("soft_deleted", r.Skipped))

	published := false
	if early {
		m.filling.Store(s)
		defer m.filling.CompareAndSwap(s, nil)
	}
	processed := 0
	for _, row := range live {
		if ctx.Err() != nil {
			break
		}
		if err := m.indexRecord(ctx, s, row); err != nil {
			id, _ := row.ID()
			r.fail(id, err)
			m.logger.Warn("Skipping record", zap.Int64("id", id), zap.Error(err))
		} else {
			r.Indexed++
		}
		processed++
		m.setProgress(processed)

		if early && !published && m.threshold > 0 && r.Indexed >= m.threshold {
			m.publish(s)
			published = true
			m.markReady()
			m.logger.Info("Index ready, continuing build",
				zap.Int("indexed", r.Indexed), zap.Int("total", len(live)))
		}
	}

	if err := ctx.Err(); err != nil {
		// An interrupted build is never saved, so the next start does not
		// mistake it for a complete index. An initial build keeps serving
		// what it has; other builds leave the published store in place.
		m.filling.CompareAndSwap(s, nil)
		if early {
			if !published {
				m.publish(s)
			}
		} else {
			_ = s.Close()
		}
		r.finish(err)
		m.finish(ctx, r, processed, len(live), err)
		return err
	}

	if early {
		if !published {
			m.publish(s)
		}
		m.filling.CompareAndSwap(s, nil)
	}
	if !early {
		m.publish(s)
	}
	saveErr := m.save(context.WithoutCancel(ctx), s)
	r.Persisted = saveErr == nil

	r.finish(saveErr)
	m.finish(ctx, r, processed, len(live), saveErr)
	return saveErr
}

func (m *Manager) indexRecord(ctx context.Context, s *indexstore.Store, row models.Product) error {
	id, ok := row.ID()
	if !ok {
		return errNoID
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	ectx, cancel := context.WithTimeout(ctx, m.embedTimeout)
	defer cancel()
	vec, err := m.embedder.EmbedRecord(ectx, row)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	added, err := s.AddIfAbsent(id, vec)
	if err != nil {
		return err
	}
	if !added {
		return ErrDuplicateID
	}
	return nil
}

// fetch reads all rows from the source. Errors are logged and yield no rows.
func (m *Manager) fetch(ctx context.Context) ([]models.Product, string) {
	if m.source == nil {
		return nil, ""
	}
	if c, ok := m.source.(interface {
		FetchAllFrom(context.Context) ([]models.Product, string, error)
	}); ok {
		rows, from, err := c.FetchAllFrom(ctx)
		if err != nil {
			m.logger.Error("Failed to read products", zap.Error(err))
			return nil, from
		}
		return rows, from
	}
	rows, err := m.source.FetchAll(ctx)
	if err != nil {
		m.logger.Error("Failed to read products", zap.String("source", m.source.Name()), zap.Error(err))
		return nil, m.source.Name()
	}
	return rows, m.source.Name()
}

// Search returns up to k products most similar to vec.
func (m *Manager) Search(ctx context.Context, vec []float32, k int) ([]Result, error) {
	var matches []indexstore.Match
	for attempt := 0; ; attempt++ {
		s := m.store.Load()
		if s == nil {
			return nil, ErrNotReady
		}
		var err error
		matches, err = s.Search(vec, k)
		if errors.Is(err, indexstore.ErrStoreClosed) && attempt < swapRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	out := make([]Result, len(matches))
	for i, mt := range matches {
		out[i] = Result{ID: mt.ID, Score: mt.Score}
	}
	return out, nil
}

// IDs returns the ids of the published store in position order.
func (m *Manager) IDs() []int64 {
	if s := m.store.Load(); s != nil {
		return s.IDs()
	}
	return nil
}

// Status returns a snapshot of the manager state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		State:     m.state,
		Progress:  m.progress,
		Total:     m.total,
		Error:     m.lastErr,
		LastBuild: m.lastBuild.clone(),
	}
	m.mu.Unlock()

	st.Dimensions = m.embedder.Dimensions()
	st.IndexType = m.indexType
	if s := m.store.Load(); s != nil {
		st.IndexSize = s.Count()
		st.IndexType = s.IndexType()
	}
	return st
}

// Wait blocks until background work started by the manager has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close waits for background work and releases the published store.
func (m *Manager) Close() error {
	m.Wait()
	if s := m.store.Swap(nil); s != nil {
		return s.Close()
	}
	return nil
}

// save persists a build's store. A newer snapshot of s already written by an
// add counts as persisted.
func (m *Manager) save(ctx context.Context, s *indexstore.Store) error {
	if err := m.persister.Save(ctx, s); err != nil && !errors.Is(err, indexstore.ErrSuperseded) {
		return err
	}
	return nil
}

// publish makes s the store served to readers and releases the previous one.
// A reader still holding the previous store gets ErrStoreClosed and retries
// on s.
func (m *Manager) publish(s *indexstore.Store) {
	if old := m.store.Swap(s); old != nil && old != s {
		_ = old.Close()
	}
}

func (m *Manager) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateInitializing
	m.progress, m.total = 0, 0
	m.lastErr = ""
}

func (m *Manager) setTotal(n int) {
	m.mu.Lock()
	m.total = n
	m.mu.Unlock()
}

func (m *Manager) setProgress(n int) {
	m.mu.Lock()
	m.progress = n
	m.mu.Unlock()
}

func (m *Manager) markReady() {
	m.mu.Lock()
	m.state = StateReady
	m.mu.Unlock()
}

// degrade records a failure outside a build without hiding the index.
func (m *Manager) degrade(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateReady {
		m.state = StateReadyWithError
	}
	m.lastErr = err.Error()
}

func (m *Manager) finish(ctx context.Context, r *BuildReport, progress, total int, err error) {
	m.mu.Lock()
	m.progress, m.total = progress, total
	m.lastBuild = r
	if err != nil {
		m.state = StateReadyWithError
		m.lastErr = err.Error()
	} else {
		m.state = StateReady
		m.lastErr = ""
	}
	m.mu.Unlock()

	fields := []zap.Field{
		zap.String("build_id", r.ID),
		zap.String("kind", r.Kind),
		zap.Int("indexed", r.Indexed),
		zap.Int("failed", r.Failed),
		zap.Int("skipped", r.Skipped),
		zap.Bool("persisted", r.Persisted),
		zap.String("duration", r.Duration),
	}
	if err != nil {
		m.logger.Warn("Index build finished with error", append(fields, zap.Error(err))...)
	} else {
		m.logger.Info("Index build finished", fields...)
	}

	if m.recorder != nil {
		if rerr := m.recorder.RecordBuild(context.WithoutCancel(ctx), r.clone()); rerr != nil {
			m.logger.Warn("Failed to record build report", zap.String("build_id", r.ID), zap.Error(rerr))
		}
	}
}
