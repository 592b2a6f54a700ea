package indexstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Persister saves and restores a Store as two files: the index blob and the mapping JSON.
// Saves are serialized; the blob header carries a checksum of the ids so a
// blob and a mapping from different saves are never loaded together.
type Persister struct {
	indexPath   string
	mappingPath string
	indexType   string
	compress    bool
	mirror      Mirror
	logger      *zap.Logger

	mu             sync.Mutex
	saved          bool
	lastGeneration uint64
	lastVersion    uint64
}

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Persister) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCompression enables zstd compression of the index payload.
func WithCompression(enabled bool) Option {
	return func(p *Persister) {
		p.compress = enabled
	}
}

// WithMirror pushes artifacts to m after each save and pulls them when missing locally.
func WithMirror(m Mirror) Option {
	return func(p *Persister) {
		p.mirror = m
	}
}

// WithIndexType sets the index backend used for loaded stores.
func WithIndexType(indexType string) Option {
	return func(p *Persister) {
		p.indexType = indexType
	}
}

// NewPersister creates a persister for the given artifact paths.
func NewPersister(indexPath, mappingPath string, opts ...Option) *Persister {
	p := &Persister{
		indexPath:   indexPath,
		mappingPath: mappingPath,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IndexPath returns the index blob path.
func (p *Persister) IndexPath() string { return p.indexPath }

// MappingPath returns the mapping file path.
func (p *Persister) MappingPath() string { return p.mappingPath }

// Save writes both artifacts. Each file is written to a temporary sibling,
// synced, then renamed into place. On error the store is untouched and the
// previous artifacts remain readable.
//
// A snapshot older than the last one written, from an earlier store or an
// earlier version of the same store, is not written and ErrSuperseded is returned.
func (p *Persister) Save(ctx context.Context, s *Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	flat, ids, version, err := s.snapshot()
	if err != nil {
		return fmt.Errorf("%w: snapshot: %w", ErrPersistence, err)
	}
	if p.saved && (s.generation < p.lastGeneration ||
		(s.generation == p.lastGeneration && version < p.lastVersion)) {
		return ErrSuperseded
	}
	dim := s.Dimensions()

	if err := writeFileAtomic(p.indexPath, func(w io.Writer) error {
		return encodeBlob(w, dim, flat, ids, p.compress)
	}); err != nil {
		return fmt.Errorf("%w: index: %w", ErrPersistence, err)
	}
	if err := writeFileAtomic(p.mappingPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(ids)
	}); err != nil {
		return fmt.Errorf("%w: mapping: %w", ErrPersistence, err)
	}

	p.saved = true
	p.lastGeneration, p.lastVersion = s.generation, version

	p.logger.Debug("Index saved",
		zap.String("index_path", p.indexPath),
		zap.Int("vectors", len(ids)),
		zap.Int("dimensions", dim))

	if p.mirror != nil {
		p.push(ctx)
	}
	return nil
}

func (p *Persister) push(ctx context.Context) {
	for _, path := range []string{p.indexPath, p.mappingPath} {
		if err := p.mirror.Push(ctx, filepath.Base(path), path); err != nil {
			p.logger.Warn("Failed to mirror index artifact",
				zap.String("path", path), zap.Error(err))
		}
	}
}

func (p *Persister) pull(ctx context.Context) {
	for _, path := range []string{p.indexPath, p.mappingPath} {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := p.mirror.Pull(ctx, filepath.Base(path), path); err != nil {
			p.logger.Warn("Failed to pull index artifact from mirror",
				zap.String("path", path), zap.Error(err))
		}
	}
}

// LoadIfExists restores a store when both artifacts are present and consistent
// with dim. Every other outcome returns false and logs the reason.
func (p *Persister) LoadIfExists(ctx context.Context, dim int) (*Store, bool) {
	s, err := p.Load(ctx, dim)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Info("No persisted index found", zap.String("index_path", p.indexPath))
		} else {
			p.logger.Warn("Ignoring persisted index", zap.Error(err))
		}
		return nil, false
	}
	return s, true
}

// Load restores a store or returns the reason wrapped in ErrLoadFailure.
func (p *Persister) Load(ctx context.Context, dim int) (*Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mirror != nil {
		p.pull(ctx)
	}

	ids, err := readMapping(p.mappingPath)
	if err != nil {
		return nil, fmt.Errorf("%w: mapping: %w", ErrLoadFailure, err)
	}

	f, err := os.Open(p.indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: index: %w", ErrLoadFailure, err)
	}
	defer f.Close()

	hdr, flat, err := decodeBlob(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: index: %w", ErrLoadFailure, err)
	}
	if int(hdr.dim) != dim {
		return nil, fmt.Errorf("%w: index dimension %d, expected %d", ErrLoadFailure, hdr.dim, dim)
	}
	if hdr.count != uint64(len(ids)) {
		return nil, fmt.Errorf("%w: index holds %d vectors, mapping holds %d ids", ErrLoadFailure, hdr.count, len(ids))
	}
	if hdr.idSum != idsChecksum(ids) {
		return nil, fmt.Errorf("%w: mapping does not belong to index", ErrLoadFailure)
	}

	s, err := NewStore(p.indexType, dim)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}
	if err := s.restore(flat, ids); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %w", ErrLoadFailure, err)
	}
	p.logger.Info("Loaded persisted index",
		zap.String("index_path", p.indexPath),
		zap.Int("vectors", len(ids)))
	return s, nil
}

// DiskUsage returns the combined size of the artifacts. Missing files count as zero.
func (p *Persister) DiskUsage() (int64, error) {
	var total int64
	for _, path := range []string{p.indexPath, p.mappingPath} {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func readMapping(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	return ids, nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}
