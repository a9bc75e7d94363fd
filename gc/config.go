package gc

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ---------------------------------------------------------------------------
// Layout constants shared with the code generator
// ---------------------------------------------------------------------------

// These values are part of the runtime/codegen contract. The code generator
// bakes them into emitted modules; changing one without rebuilding every Fen
// module breaks the ABI.
const (
	// OffloadBase is the address of the offloading region: a fixed 8 KiB
	// block at the start of linear memory.
	OffloadBase = 0

	// OffloadSize is the capacity of the offloading region. It is a
	// worst-case budget for one cycle's non-heap stack state, not a soft
	// limit, and is never grown.
	OffloadSize = 8 * 1024

	// HeapBase is the address of the first semispace. The two spaces are
	// adjacent: [HeapBase, HeapBase+capacity) and
	// [HeapBase+capacity, HeapBase+2*capacity).
	HeapBase = OffloadBase + OffloadSize

	// WatermarkPercent is the from-space occupancy (percent of capacity)
	// at which a deferred collection is requested.
	WatermarkPercent = 50

	// DefaultHeapCapacity is the per-space capacity used when no
	// configuration is supplied.
	DefaultHeapCapacity = 1 << 20

	// MaxHeapCapacity bounds a semispace so the whole layout (region plus
	// two spaces) stays addressable in 32-bit linear memory and offset
	// arithmetic inside a space cannot wrap.
	MaxHeapCapacity = (1<<32 - HeapBase) / 2
)

// ---------------------------------------------------------------------------
// Runtime configuration
// ---------------------------------------------------------------------------

// Config carries the tunable parts of the runtime. The layout constants
// above are deliberately not configurable; capacity is, because it is agreed
// per project between the code generator and the runtime.
type Config struct {
	// HeapCapacity is the capacity in bytes of each semispace.
	HeapCapacity uint32 `toml:"heap-capacity"`

	// Telemetry is an optional path to a sqlite database receiving one
	// row per completed collection cycle. Empty disables telemetry.
	Telemetry string `toml:"telemetry"`
}

// fileConfig is the on-disk shape of fen.toml's runtime section.
type fileConfig struct {
	Runtime Config `toml:"runtime"`
}

// DefaultConfig returns the configuration used when no fen.toml is present.
func DefaultConfig() Config {
	return Config{HeapCapacity: DefaultHeapCapacity}
}

// LoadConfig parses the [runtime] section of a fen.toml file and applies
// defaults for anything left unset.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg := fc.Runtime
	if cfg.HeapCapacity == 0 {
		cfg.HeapCapacity = DefaultHeapCapacity
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot honor.
func (c Config) Validate() error {
	if c.HeapCapacity == 0 {
		return fmt.Errorf("heap capacity must be nonzero")
	}
	if c.HeapCapacity%objectAlign != 0 {
		return fmt.Errorf("heap capacity %d is not a multiple of %d", c.HeapCapacity, objectAlign)
	}
	if c.HeapCapacity > MaxHeapCapacity {
		return fmt.Errorf("heap capacity %d exceeds the addressable maximum %d", c.HeapCapacity, uint32(MaxHeapCapacity))
	}
	return nil
}

// MemorySize returns the linear-memory footprint the runtime needs: the
// offloading region followed by the two semispaces.
func (c Config) MemorySize() uint32 {
	return HeapBase + 2*c.HeapCapacity
}
