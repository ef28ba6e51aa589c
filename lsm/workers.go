package lsm

import "time"

const tickInterval = 50 * time.Millisecond

// flushWorker forces the oldest frozen memtable out whenever the frozen
// count reaches NumMemtableLimit (spec §4.6, §5: "periodic tick, not an
// event channel").
func (e *Engine) flushWorker() {
	defer e.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdown:
			return
		case <-ticker.C:
			for len(e.state.Load().ImmMemtables) >= e.opts.NumMemtableLimit {
				e.stateLock.Lock()
				err := e.forceFlushNextImmMemtableLocked()
				e.stateLock.Unlock()
				if err != nil {
					e.log.WithError(err).Error("flush worker: force flush failed")
					break
				}
			}
		}
	}
}

// compactionWorker periodically asks the configured controller for a task
// and, if one is selected, runs it (spec §4.7, §5).
func (e *Engine) compactionWorker() {
	defer e.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdown:
			return
		case <-ticker.C:
			if err := e.runOneCompactionCycle(); err != nil {
				e.log.WithError(err).Error("compaction worker: cycle failed")
			}
		}
	}
}

func (e *Engine) runOneCompactionCycle() error {
	switch e.opts.CompactionOptions.Mode {
	case Simple:
		return e.runSimpleLeveledCycle()
	case Tiered:
		return e.runTieredCycle()
	default:
		return nil
	}
}

func (e *Engine) runSimpleLeveledCycle() error {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	cur := e.state.Load()
	task := selectSimpleLeveledTask(e.opts.CompactionOptions.Simple, cur.L0SSTables, cur.Levels)
	if task == nil {
		return nil
	}

	isL0 := task.UpperLevel == nil
	upperTables := levelTables(task.UpperLevelSSTIDs, cur.SST)
	lowerTables := levelTables(task.LowerLevelSSTIDs, cur.SST)

	upperIter, err := buildUpperIterator(isL0, upperTables)
	if err != nil {
		return err
	}
	lowerIter, err := NewConcatIteratorAndSeekToFirst(lowerTables)
	if err != nil {
		return err
	}
	merged, err := NewTwoMergeIterator(upperIter, lowerIter)
	if err != nil {
		return err
	}

	outputs, err := runCompactionMerge(merged, task.IsLowerLevelBottomLevel, e.snapshotFilters(), e.opts.BlockSize, e.opts.TargetSstSize, e.blockCache, e.dir, func() uint32 { return e.nextSSTID.Add(1) - 1 })
	if err != nil {
		return err
	}

	next, removed := applySimpleLeveledCompaction(cur, task, outputs)
	sortLevelByFirstKey(levelByLabel(next.Levels, task.LowerLevel).SSTs, next.SST)
	e.state.Publish(next)
	e.compactCount.Add(1)

	outputIDs := make([]uint32, len(outputs))
	for i, t := range outputs {
		outputIDs[i] = t.ID
	}
	taskCopy := *task
	if err := e.manifest.Append(ManifestRecord{Kind: RecordCompaction, Task: CompactionTask{Kind: TaskSimple, Simple: &taskCopy}, OutputIDs: outputIDs}); err != nil {
		return err
	}
	if err := syncDir(manifestPath(e.dir)); err != nil {
		return err
	}

	e.closeRemovedTables(cur, removed)
	e.log.WithField("lower_level", task.LowerLevel).WithField("outputs", len(outputs)).Debug("simple-leveled compaction")
	return nil
}

func (e *Engine) runTieredCycle() error {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	cur := e.state.Load()
	task := selectTieredTask(e.opts.CompactionOptions.Tiered, cur.Levels)
	if task == nil {
		return nil
	}

	var iters []StorageIterator
	for _, tier := range task.Tiers {
		it, err := NewConcatIteratorAndSeekToFirst(levelTables(tier.SSTs, cur.SST))
		if err != nil {
			return err
		}
		iters = append(iters, it)
	}
	merged, err := NewMergeIterator(iters)
	if err != nil {
		return err
	}

	outputs, err := runCompactionMerge(merged, task.BottomTierIncluded, e.snapshotFilters(), e.opts.BlockSize, e.opts.TargetSstSize, e.blockCache, e.dir, func() uint32 { return e.nextSSTID.Add(1) - 1 })
	if err != nil {
		return err
	}

	next, removed := applyTieredCompaction(cur, task, outputs)
	e.state.Publish(next)
	e.compactCount.Add(1)

	outputIDs := make([]uint32, len(outputs))
	for i, t := range outputs {
		outputIDs[i] = t.ID
	}
	taskCopy := *task
	if err := e.manifest.Append(ManifestRecord{Kind: RecordCompaction, Task: CompactionTask{Kind: TaskTiered, Tiered: &taskCopy}, OutputIDs: outputIDs}); err != nil {
		return err
	}
	if err := syncDir(manifestPath(e.dir)); err != nil {
		return err
	}

	e.closeRemovedTables(cur, removed)
	e.log.WithField("tiers", len(task.Tiers)).WithField("outputs", len(outputs)).Debug("tiered compaction")
	return nil
}

// closeRemovedTables drops the state snapshot's pin on every SST a
// compaction removed, looked up against the pre-compaction snapshot since
// next no longer references them. release only actually closes the file
// once no concurrent Get or Scan still holds its own pin, so a reader
// working off the prior snapshot is never surprised by a closed fd.
func (e *Engine) closeRemovedTables(prev *LsmState, removed []uint32) {
	for _, id := range removed {
		if t := prev.SST[id]; t != nil {
			if err := t.release(); err != nil {
				e.log.WithError(err).WithField("id", id).Warn("failed to close compacted sst")
			}
		}
	}
}
