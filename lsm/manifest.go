package lsm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crystaldb/lsmkv/common"
)

// ManifestRecordKind tags which variant a ManifestRecord holds.
type ManifestRecordKind int

const (
	RecordFlush ManifestRecordKind = iota
	RecordNewMemtable
	RecordCompaction
)

// ManifestRecord is one entry in the append-only manifest stream (spec
// §4.8). Exactly one of the Kind-selected fields is meaningful.
type ManifestRecord struct {
	Kind ManifestRecordKind

	// RecordFlush, RecordNewMemtable
	ID uint32

	// RecordCompaction
	Task      CompactionTask
	OutputIDs []uint32
}

// manifestWire is the on-disk shape: {"Flush": id} | {"NewMemtable": id} |
// {"Compaction": [task, [ids]]}, matching spec §6 byte-for-byte.
type manifestWire struct {
	Flush       *uint32          `json:"Flush,omitempty"`
	NewMemtable *uint32          `json:"NewMemtable,omitempty"`
	Compaction  *json.RawMessage `json:"Compaction,omitempty"`
}

// MarshalJSON renders r in the wire shape.
func (r ManifestRecord) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RecordFlush:
		id := r.ID
		return json.Marshal(manifestWire{Flush: &id})
	case RecordNewMemtable:
		id := r.ID
		return json.Marshal(manifestWire{NewMemtable: &id})
	case RecordCompaction:
		taskBytes, err := json.Marshal(r.Task)
		if err != nil {
			return nil, err
		}
		pair, err := json.Marshal([]json.RawMessage{taskBytes, mustMarshalIDs(r.OutputIDs)})
		if err != nil {
			return nil, err
		}
		raw := json.RawMessage(pair)
		return json.Marshal(manifestWire{Compaction: &raw})
	default:
		return nil, fmt.Errorf("marshal manifest record: unknown kind %d", r.Kind)
	}
}

func mustMarshalIDs(ids []uint32) json.RawMessage {
	b, _ := json.Marshal(ids)
	return b
}

// UnmarshalJSON parses the wire shape back into r.
func (r *ManifestRecord) UnmarshalJSON(data []byte) error {
	var wire manifestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode manifest record: %w: %v", common.ErrCorrupted, err)
	}
	switch {
	case wire.Flush != nil:
		r.Kind = RecordFlush
		r.ID = *wire.Flush
	case wire.NewMemtable != nil:
		r.Kind = RecordNewMemtable
		r.ID = *wire.NewMemtable
	case wire.Compaction != nil:
		var pair [2]json.RawMessage
		if err := json.Unmarshal(*wire.Compaction, &pair); err != nil {
			return fmt.Errorf("decode manifest compaction record: %w: %v", common.ErrCorrupted, err)
		}
		task, err := unmarshalCompactionTask(pair[0])
		if err != nil {
			return err
		}
		var ids []uint32
		if err := json.Unmarshal(pair[1], &ids); err != nil {
			return fmt.Errorf("decode manifest compaction output ids: %w: %v", common.ErrCorrupted, err)
		}
		r.Kind = RecordCompaction
		r.Task = task
		r.OutputIDs = ids
	default:
		return fmt.Errorf("decode manifest record: %w: no recognized variant", common.ErrCorrupted)
	}
	return nil
}

// Manifest guards the append-only MANIFEST file behind a mutex, so the
// recorded on-disk order and the published in-memory order never diverge
// (spec §4.8, §5: the manifest mutex is taken together with the structural
// state lock).
type Manifest struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenManifest creates path if absent and returns a handle open for
// appends.
func OpenManifest(path string) (*Manifest, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	return &Manifest{file: file, path: path}, nil
}

// Recover reads every record from the manifest in order.
func (m *Manifest) Recover() ([]ManifestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("recover manifest %s: %w", m.path, err)
	}

	var records []ManifestRecord
	dec := json.NewDecoder(bufio.NewReader(m.file))
	for {
		var rec ManifestRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("recover manifest %s: %w", m.path, err)
		}
		records = append(records, rec)
	}

	if _, err := m.file.Seek(0, 2); err != nil {
		return nil, fmt.Errorf("recover manifest %s: %w", m.path, err)
	}
	return records, nil
}

// Append writes one record, flushes it, and fsyncs the manifest file.
// Callers are responsible for also fsyncing the engine directory and for
// holding the structural state lock across the whole operation (spec
// §4.8, §5).
func (m *Manifest) Append(rec ManifestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode manifest record: %w", err)
	}
	if _, err := m.file.Write(data); err != nil {
		return fmt.Errorf("append manifest record: %w", err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("sync manifest: %w", err)
	}
	return nil
}

// Close closes the manifest file.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	return m.file.Close()
}
