package c1log

import (
	"io"

	"github.com/pelletier/go-toml"
)

// Tunables are the deployment constants of spec §6 ("Consumed constants").
// This core does not load app configuration (an excluded collaborator
// concern); Tunables is just a struct of compiled-in defaults an embedder
// may override, the way the teacher's execution_context.go pulls execution
// tunables out of a TOML fragment rather than a full config file.
type Tunables struct {
	// UsableCapacityFraction is the fixed fraction of a log's declared
	// capacity available for payload; the remainder is headroom for mlog
	// metadata overhead.
	UsableCapacityFraction float64

	// ScratchGrowthUnit is the increment (bytes) the scratch buffer grows
	// by, rounded up to a multiple of this unit.
	ScratchGrowthUnit uint64

	// ScratchSoftCeiling is the size above which a bundle's scratch buffer
	// is freed again after the call that needed it, instead of being kept
	// around for the steady state.
	ScratchSoftCeiling uint64
}

// DefaultTunables matches the spec's stated constants: 128 KiB growth unit,
// 256 KiB soft ceiling. The usable-capacity fraction is not pinned by the
// spec to a specific value; 0.9 is the source's HSE_C1_LOG_USEABLE_CAPACITY
// convention (roughly 90%, reserving the remainder for mlog/mdc overhead).
func DefaultTunables() Tunables {
	return Tunables{
		UsableCapacityFraction: 0.9,
		ScratchGrowthUnit:      128 * 1024,
		ScratchSoftCeiling:     256 * 1024,
	}
}

// UsableCapacity applies the fraction to a declared capacity.
func (t Tunables) UsableCapacity(capacity uint64) uint64 {
	return uint64(float64(capacity) * t.UsableCapacityFraction)
}

// roundUp rounds size up to the next multiple of unit (unit > 0).
func roundUp(size, unit uint64) uint64 {
	if size == 0 {
		return 0
	}
	return ((size + unit - 1) / unit) * unit
}

// LoadTOML overrides t's fields from a TOML fragment; only fields present in
// r are changed. Unknown keys are ignored.
func (t *Tunables) LoadTOML(r io.Reader) error {
	tree, err := toml.LoadReader(r)
	if err != nil {
		return err
	}
	if v, ok := tree.Get("usable_capacity_fraction").(float64); ok {
		t.UsableCapacityFraction = v
	}
	if v, ok := toInt64(tree.Get("scratch_growth_unit")); ok {
		t.ScratchGrowthUnit = uint64(v)
	}
	if v, ok := toInt64(tree.Get("scratch_soft_ceiling")); ok {
		t.ScratchSoftCeiling = uint64(v)
	}
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	i, ok := v.(int64)
	return i, ok
}
