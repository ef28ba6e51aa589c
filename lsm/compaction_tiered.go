package lsm

// tierSize approximates a tier's size by its SST count, matching how the
// literal test scenario in spec §8 ("levels of sizes [1,1,1,1]") treats one
// SST as one unit of size.
func tierSize(t Level) int { return len(t.SSTs) }

// selectTieredTask implements the tiered controller's task selection
// (spec §4.7): space-amplification trigger, then size-ratio trigger, then
// reduce-runs fallback. tiers is newest-first.
func selectTieredTask(opts TieredOptions, tiers []Level) *TieredCompactionTask {
	if len(tiers) <= opts.NumTiers {
		return nil
	}

	total := 0
	for _, t := range tiers {
		total += tierSize(t)
	}
	last := tierSize(tiers[len(tiers)-1])
	if last > 0 && 100*(total-last)/last >= opts.MaxSizeAmplificationPercent {
		return &TieredCompactionTask{
			Tiers:              append([]Level(nil), tiers...),
			BottomTierIncluded: true,
		}
	}

	sum := 0
	for i := 0; i < len(tiers); i++ {
		if i > 0 {
			current := tierSize(tiers[i])
			if current > 0 && 100*sum/current >= 100*opts.SizeRatio && i+1 > opts.MinMergeWidth {
				return &TieredCompactionTask{
					Tiers:              append([]Level(nil), tiers[:i+1]...),
					BottomTierIncluded: i+1 == len(tiers),
				}
			}
		}
		sum += tierSize(tiers[i])
	}

	n := len(tiers) - opts.NumTiers + 2
	if n > len(tiers) {
		n = len(tiers)
	}
	if n < 1 {
		n = 1
	}
	return &TieredCompactionTask{
		Tiers:              append([]Level(nil), tiers[:n]...),
		BottomTierIncluded: n == len(tiers),
	}
}

// applyTieredCompaction removes every tier task.Tiers names and prepends
// one new tier labeled by its first output SST id (spec §4.7 "Apply").
func applyTieredCompaction(state *LsmState, task *TieredCompactionTask, outputTables []*SortedTable) (*LsmState, []uint32) {
	next := state.snapshot()

	removedLabels := make(map[int]bool, len(task.Tiers))
	var removed []uint32
	for _, t := range task.Tiers {
		removedLabels[t.Label] = true
		removed = append(removed, t.SSTs...)
	}

	var kept []Level
	for _, lvl := range next.Levels {
		if !removedLabels[lvl.Label] {
			kept = append(kept, lvl)
		}
	}

	outputIDs := make([]uint32, len(outputTables))
	for i, t := range outputTables {
		outputIDs[i] = t.ID
		next.SST[t.ID] = t
	}
	for _, id := range removed {
		delete(next.SST, id)
	}

	label := 0
	if len(outputIDs) > 0 {
		label = int(outputIDs[0])
	}
	next.Levels = append([]Level{{Label: label, SSTs: outputIDs}}, kept...)

	return next, removed
}
