package lsm

// selectSimpleLeveledTask implements the simple-leveled controller's task
// selection (spec §4.7). Level labels are 1-based: opts addresses L1..Lmax
// by label, looked up via levelByLabel.
func selectSimpleLeveledTask(opts SimpleLeveledOptions, l0 []uint32, levels []Level) *SimpleLeveledCompactionTask {
	if len(l0) >= opts.Level0FileNumCompactionTrigger {
		lvl1 := levelByLabel(levels, 1)
		var lowerIDs []uint32
		if lvl1 != nil {
			lowerIDs = append([]uint32(nil), lvl1.SSTs...)
		}
		return &SimpleLeveledCompactionTask{
			UpperLevel:              nil,
			UpperLevelSSTIDs:        append([]uint32(nil), l0...),
			LowerLevel:              1,
			LowerLevelSSTIDs:        lowerIDs,
			IsLowerLevelBottomLevel: opts.MaxLevels == 1,
		}
	}

	for i := 1; i < opts.MaxLevels; i++ {
		upper := levelByLabel(levels, i)
		lower := levelByLabel(levels, i+1)
		upperLen := 0
		if upper != nil {
			upperLen = len(upper.SSTs)
		}
		if upperLen == 0 {
			continue
		}
		lowerLen := 0
		var lowerIDs []uint32
		if lower != nil {
			lowerLen = len(lower.SSTs)
			lowerIDs = append([]uint32(nil), lower.SSTs...)
		}
		if 100*lowerLen/upperLen < opts.SizeRatioPercent {
			upperLabel := i
			return &SimpleLeveledCompactionTask{
				UpperLevel:              &upperLabel,
				UpperLevelSSTIDs:        append([]uint32(nil), upper.SSTs...),
				LowerLevel:              i + 1,
				LowerLevelSSTIDs:        lowerIDs,
				IsLowerLevelBottomLevel: i+1 == opts.MaxLevels,
			}
		}
	}

	return nil
}

// applySimpleLeveledCompaction folds a compaction's output into a snapshot
// copy of state, returning the new snapshot and the set of SST ids to drop
// from the global ID map (spec §4.7 "Apply").
func applySimpleLeveledCompaction(state *LsmState, task *SimpleLeveledCompactionTask, outputTables []*SortedTable) (*LsmState, []uint32) {
	next := state.snapshot()

	removed := append([]uint32(nil), task.UpperLevelSSTIDs...)
	removed = append(removed, task.LowerLevelSSTIDs...)

	if task.UpperLevel == nil {
		next.L0SSTables = nil
	} else {
		if lvl := levelByLabel(next.Levels, *task.UpperLevel); lvl != nil {
			lvl.SSTs = nil
		}
	}

	outputIDs := make([]uint32, len(outputTables))
	for i, t := range outputTables {
		outputIDs[i] = t.ID
		next.SST[t.ID] = t
	}

	if lvl := levelByLabel(next.Levels, task.LowerLevel); lvl != nil {
		lvl.SSTs = outputIDs
	} else {
		next.Levels = append(next.Levels, Level{Label: task.LowerLevel, SSTs: outputIDs})
	}

	for _, id := range removed {
		delete(next.SST, id)
	}

	return next, removed
}
