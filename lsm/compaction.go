package lsm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/crystaldb/lsmkv/common"
)

// CompactionTaskKind tags which controller produced a CompactionTask.
type CompactionTaskKind int

const (
	TaskSimple CompactionTaskKind = iota
	TaskTiered
	TaskForceFull
)

// SimpleLeveledCompactionTask compacts an upper level (nil UpperLevel means
// L0) into LowerLevel (spec §4.7). Level labels are 1-based: LowerLevel N
// is the Level whose Label is N, always found via levelByLabel rather than
// by its position in state.Levels (spec §9 open question, resolved this
// way throughout).
type SimpleLeveledCompactionTask struct {
	UpperLevel              *int
	UpperLevelSSTIDs        []uint32
	LowerLevel              int
	LowerLevelSSTIDs        []uint32
	IsLowerLevelBottomLevel bool
}

// TieredCompactionTask merges a run of adjacent tiers into one.
type TieredCompactionTask struct {
	Tiers              []Level
	BottomTierIncluded bool
}

// ForceFullCompactionTask merges all of L0 with L1 (spec §4.6
// force_full_compaction).
type ForceFullCompactionTask struct {
	L0SSTIDs []uint32
	L1SSTIDs []uint32
}

// CompactionTask is a tagged union so it round-trips through the manifest
// as plain data (spec §9: "controllers are pure functions of (state, task)
// -> (state', removed-IDs)").
type CompactionTask struct {
	Kind   CompactionTaskKind
	Simple *SimpleLeveledCompactionTask
	Tiered *TieredCompactionTask
	Full   *ForceFullCompactionTask
}

// IsBottomLevel reports whether this task's output lands at the bottom of
// the hierarchy, where tombstones may finally be dropped.
func (t CompactionTask) IsBottomLevel() bool {
	switch t.Kind {
	case TaskSimple:
		return t.Simple.IsLowerLevelBottomLevel
	case TaskTiered:
		return t.Tiered.BottomTierIncluded
	case TaskForceFull:
		return true
	default:
		return false
	}
}

type compactionTaskWire struct {
	Simple *SimpleLeveledCompactionTask `json:"Simple,omitempty"`
	Tiered *TieredCompactionTask        `json:"Tiered,omitempty"`
	Full   *ForceFullCompactionTask     `json:"ForceFull,omitempty"`
}

// MarshalJSON renders t as one of {"Simple":...}, {"Tiered":...},
// {"ForceFull":...}.
func (t CompactionTask) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TaskSimple:
		return json.Marshal(compactionTaskWire{Simple: t.Simple})
	case TaskTiered:
		return json.Marshal(compactionTaskWire{Tiered: t.Tiered})
	case TaskForceFull:
		return json.Marshal(compactionTaskWire{Full: t.Full})
	default:
		return nil, fmt.Errorf("marshal compaction task: unknown kind %d", t.Kind)
	}
}

func unmarshalCompactionTask(data []byte) (CompactionTask, error) {
	var wire compactionTaskWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return CompactionTask{}, fmt.Errorf("decode compaction task: %w: %v", common.ErrCorrupted, err)
	}
	switch {
	case wire.Simple != nil:
		return CompactionTask{Kind: TaskSimple, Simple: wire.Simple}, nil
	case wire.Tiered != nil:
		return CompactionTask{Kind: TaskTiered, Tiered: wire.Tiered}, nil
	case wire.Full != nil:
		return CompactionTask{Kind: TaskForceFull, Full: wire.Full}, nil
	default:
		return CompactionTask{}, fmt.Errorf("decode compaction task: %w: no recognized variant", common.ErrCorrupted)
	}
}

// CompactionFilter drops keys matching Prefix during bottom-level
// compaction even when they are not tombstoned. Supplemented from the
// original source's compact.rs (not exercised by default; spec.md lists it
// as "planned but not exercised here").
type CompactionFilter struct {
	Prefix []byte
}

func (f CompactionFilter) matches(key []byte) bool {
	return bytes.HasPrefix(key, f.Prefix)
}

// runCompactionMerge drains merged into a sequence of SSTs, sealing a new
// one whenever the current builder's estimated size reaches targetSstSize
// (spec §4.7). Tombstones are dropped only when compactToBottom is true;
// so are keys matching any filter. allocID hands out the next SST ID.
func runCompactionMerge(
	merged StorageIterator,
	compactToBottom bool,
	filters []CompactionFilter,
	blockSize, targetSstSize int,
	cache *BlockCache,
	dir string,
	allocID func() uint32,
) ([]*SortedTable, error) {
	var tables []*SortedTable
	builder := NewSsTableBuilder(blockSize)

	for merged.IsValid() {
		key := merged.Key()
		value := merged.Value()

		drop := false
		if len(value) == 0 && compactToBottom {
			drop = true
		}
		if !drop && compactToBottom {
			for _, f := range filters {
				if f.matches(key) {
					drop = true
					break
				}
			}
		}

		if !drop {
			builder.Add(append([]byte(nil), key...), append([]byte(nil), value...))
		}

		if builder.EstimatedSize() >= targetSstSize {
			id := allocID()
			table, err := builder.Build(id, cache, sstPath(dir, id))
			if err != nil {
				return nil, fmt.Errorf("compaction: seal sst %d: %w", id, err)
			}
			tables = append(tables, table)
			builder = NewSsTableBuilder(blockSize)
		}

		if err := merged.Next(); err != nil {
			return nil, fmt.Errorf("compaction: advance merge: %w", err)
		}
	}

	if builder.keyCount > 0 {
		id := allocID()
		table, err := builder.Build(id, cache, sstPath(dir, id))
		if err != nil {
			return nil, fmt.Errorf("compaction: seal trailing sst %d: %w", id, err)
		}
		tables = append(tables, table)
	}

	return tables, nil
}

// buildUpperIterator constructs the upper-side iterator for a compaction:
// a MergeIterator of SsTableIterators for L0 (tables may overlap), or a
// ConcatIterator for a disjoint level (spec §4.7).
func buildUpperIterator(isL0 bool, tables []*SortedTable) (StorageIterator, error) {
	if isL0 {
		iters := make([]StorageIterator, 0, len(tables))
		for _, t := range tables {
			it, err := NewSsTableIteratorAndSeekToFirst(t)
			if err != nil {
				return nil, err
			}
			iters = append(iters, it)
		}
		return NewMergeIterator(iters)
	}
	return NewConcatIteratorAndSeekToFirst(tables)
}
