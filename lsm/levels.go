package lsm

import (
	"sort"
)

// sortLevelByFirstKey reorders a level's SST ids by first key, restoring
// the disjoint-sorted invariant L1+ levels must hold after a compaction
// adds new tables (spec §2, §4.5).
func sortLevelByFirstKey(ids []uint32, sst map[uint32]*SortedTable) {
	sort.Slice(ids, func(i, j int) bool {
		return string(sst[ids[i]].FirstKey()) < string(sst[ids[j]].FirstKey())
	})
}

// levelTables resolves a level's ids into their SortedTable handles, in the
// level's stored order.
func levelTables(ids []uint32, sst map[uint32]*SortedTable) []*SortedTable {
	tables := make([]*SortedTable, 0, len(ids))
	for _, id := range ids {
		tables = append(tables, sst[id])
	}
	return tables
}

// levelByLabel finds a level by its label, returning nil if absent.
func levelByLabel(levels []Level, label int) *Level {
	for i := range levels {
		if levels[i].Label == label {
			return &levels[i]
		}
	}
	return nil
}
