package indexstore

import "errors"

var (
	// ErrPositionOutOfRange is returned by Mapping.IDAt for a position outside [0, Len()).
	ErrPositionOutOfRange = errors.New("position out of range")
	// ErrPersistence wraps any failure to write the index or mapping artifacts.
	ErrPersistence = errors.New("failed to persist index")
	// ErrLoadFailure wraps any reason a persisted index could not be restored.
	ErrLoadFailure = errors.New("failed to load index")
	// ErrStoreClosed is returned by a store that was replaced and released.
	ErrStoreClosed = errors.New("index store closed")
	// ErrSuperseded is returned by Save when a newer snapshot was already written.
	ErrSuperseded = errors.New("newer index already saved")
)
