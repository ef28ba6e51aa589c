package lsm

// CompactionMode selects which compaction controller governs the level
// layout.
type CompactionMode int

const (
	// NoCompaction never compacts; flushes accumulate as new L0 files
	// forever.
	NoCompaction CompactionMode = iota
	// Simple is the simple-leveled controller (spec §4.7).
	Simple
	// Tiered is the tiered controller (spec §4.7).
	Tiered
	// Leveled is declared but not implemented in this core; selecting it
	// behaves like NoCompaction and is logged as such at open time.
	Leveled
)

// SimpleLeveledOptions parameterizes the simple-leveled controller.
type SimpleLeveledOptions struct {
	SizeRatioPercent               int
	Level0FileNumCompactionTrigger int
	MaxLevels                      int
}

// TieredOptions parameterizes the tiered controller.
type TieredOptions struct {
	NumTiers                   int
	MaxSizeAmplificationPercent int
	SizeRatio                  int
	MinMergeWidth              int
}

// CompactionOptions is a tagged union so a single value travels through
// Options without one field per controller leaking into call sites that
// don't use it. It is not written to the manifest.
type CompactionOptions struct {
	Mode   CompactionMode
	Simple SimpleLeveledOptions
	Tiered TieredOptions
}

// Options configures a StorageEngine instance.
type Options struct {
	// BlockSize is the target number of bytes per data block.
	BlockSize int
	// TargetSstSize is the approximate cap for a memtable and for a
	// compaction output SST.
	TargetSstSize int
	// NumMemtableLimit is the maximum number of frozen memtables before the
	// flush worker forces one out.
	NumMemtableLimit int
	// CompactionOptions selects and parameterizes the compaction
	// controller.
	CompactionOptions CompactionOptions
	// EnableWAL appends every memtable insert to its WAL before the write
	// returns.
	EnableWAL bool
	// Serializable is reserved; not exercised by this core.
	Serializable bool
	// BlockCacheSize bounds the number of decoded blocks kept in the
	// process-wide LRU, keyed by (sst id, block idx).
	BlockCacheSize int
}

// DefaultOptions returns sane defaults for a NoCompaction engine, matching
// the teacher's DefaultConfig(dataDir) pattern: single top-level factory
// producing ready-to-use values rather than requiring every field be set.
func DefaultOptions() Options {
	return Options{
		BlockSize:        4096,
		TargetSstSize:    2 << 20, // 2 MiB
		NumMemtableLimit: 2,
		CompactionOptions: CompactionOptions{
			Mode: NoCompaction,
		},
		EnableWAL:      true,
		BlockCacheSize: 1 << 12, // 4096 blocks
	}
}

// DefaultSimpleLeveledOptions returns an engine configured for the
// simple-leveled controller (spec §4.7, scenario 5).
func DefaultSimpleLeveledOptions() Options {
	o := DefaultOptions()
	o.CompactionOptions = CompactionOptions{
		Mode: Simple,
		Simple: SimpleLeveledOptions{
			SizeRatioPercent:               200,
			Level0FileNumCompactionTrigger: 4,
			MaxLevels:                      4,
		},
	}
	return o
}

// DefaultTieredOptions returns an engine configured for the tiered
// controller (spec §4.7, scenario 6).
func DefaultTieredOptions() Options {
	o := DefaultOptions()
	o.CompactionOptions = CompactionOptions{
		Mode: Tiered,
		Tiered: TieredOptions{
			NumTiers:                    3,
			MaxSizeAmplificationPercent: 200,
			SizeRatio:                   100,
			MinMergeWidth:               2,
		},
	}
	return o
}
