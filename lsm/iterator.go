package lsm

// StorageIterator is the common shape every layer of the read path
// implements: block, SST, concat, merge and the top-level LSM iterator
// (spec §7). Value returns an empty slice, never nil, for a tombstone;
// callers distinguish "deleted" from "absent" by whether IsValid is true
// at all.
type StorageIterator interface {
	IsValid() bool
	Key() []byte
	Value() []byte
	Next() error
}
