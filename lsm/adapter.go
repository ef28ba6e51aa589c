package lsm

import "github.com/crystaldb/lsmkv/common"

// Adapter wraps Engine to implement common.StorageEngine. Engine's Get
// reports an absent or tombstoned key via a false bool; the adapter maps
// that onto the interface's ErrKeyNotFound convention.
type Adapter struct {
	engine *Engine
}

// NewAdapter opens an engine at dir and wraps it.
func NewAdapter(dir string, opts Options) (*Adapter, error) {
	engine, err := Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{engine: engine}, nil
}

// Put implements common.StorageEngine.
func (a *Adapter) Put(key, value []byte) error {
	return a.engine.Put(key, value)
}

// Get implements common.StorageEngine.
func (a *Adapter) Get(key []byte) ([]byte, error) {
	value, found, err := a.engine.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrKeyNotFound
	}
	return value, nil
}

// Delete implements common.StorageEngine.
func (a *Adapter) Delete(key []byte) error {
	return a.engine.Delete(key)
}

// Close implements common.StorageEngine.
func (a *Adapter) Close() error {
	return a.engine.Close()
}

// Sync implements common.StorageEngine.
func (a *Adapter) Sync() error {
	return a.engine.Sync()
}

// Stats implements common.StorageEngine.
func (a *Adapter) Stats() common.Stats {
	return a.engine.Stats()
}

// Compact implements common.StorageEngine by running a full L0+L1
// compaction synchronously.
func (a *Adapter) Compact() error {
	return a.engine.ForceFullCompaction()
}

// Scan returns a common.Iterator over the keys between lower and upper,
// each bound applied with its own kind (LSM-specific
// extension beyond common.StorageEngine, mirroring the teacher's own
// Adapter.Scan escape hatch for range queries).
func (a *Adapter) Scan(lower, upper Bound) (common.Iterator, error) {
	it, err := a.engine.Scan(lower, upper)
	if err != nil {
		return nil, err
	}
	return &iteratorAdapter{inner: it}, nil
}

// iteratorAdapter bridges StorageIterator's IsValid/Key/Value/Next(error)
// shape onto common.Iterator's Next-then-read convention.
type iteratorAdapter struct {
	inner   *FusedIterator
	started bool
	err     error
}

// Next advances to the next entry, returning false once exhausted or after
// an error (retrievable via Error).
func (it *iteratorAdapter) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		return it.inner.IsValid()
	}
	if err := it.inner.Next(); err != nil {
		it.err = err
		return false
	}
	return it.inner.IsValid()
}

// Key returns the current entry's key.
func (it *iteratorAdapter) Key() []byte { return it.inner.Key() }

// Value returns the current entry's value.
func (it *iteratorAdapter) Value() []byte { return it.inner.Value() }

// Error returns the error, if any, that stopped iteration.
func (it *iteratorAdapter) Error() error { return it.err }

// Close releases the on-disk tables this scan pinned. Safe to call even if
// the scan already ran to exhaustion, which releases them on its own.
func (it *iteratorAdapter) Close() error { return it.inner.Close() }
