package common

import "errors"

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrDiskFull    = errors.New("disk full")

	ErrClosed   = errors.New("storage engine closed")
	ErrKeyEmpty = errors.New("key cannot be empty")

	// ErrCorrupted marks an on-disk structure (block, meta, manifest record)
	// that failed to decode. Fatal at open time.
	ErrCorrupted = errors.New("corrupted on-disk structure")

	// ErrInvariantViolation marks a logic bug, such as a live SST ID missing
	// from the ID map during compaction. Fatal: the manifest and the live
	// set have diverged and forward progress would corrupt more state.
	ErrInvariantViolation = errors.New("storage engine invariant violated")

	// ErrIteratorExhausted names the misuse of advancing an iterator past
	// its end. The lsm iterators do not return it: their Next past the end
	// is a no-op that returns nil.
	ErrIteratorExhausted = errors.New("iterator has no more entries")
)
