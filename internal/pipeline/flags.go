package pipeline

import "sync/atomic"

// Flag identifies one bit in the pipeline flag register.
type Flag uint32

const (
	// FlagCenter is a one-shot center request, cleared at the end of
	// the cycle that honours it.
	FlagCenter Flag = 1 << iota
	// FlagHeldCenter keeps re-centering every cycle while set.
	FlagHeldCenter
	// FlagEnabledSoft and FlagEnabledHard together gate output: the
	// pipeline delivers fresh poses only while both agree. Toggling
	// either one freezes the output at the last good pose.
	FlagEnabledSoft
	FlagEnabledHard
	// FlagZero forces all six output components to zero.
	FlagZero
)

// Flags is a lock-free register of independent boolean flags, mutated
// from any thread. Each flag's transitions are individually
// linearizable; there is no atomicity across distinct flags, so callers
// must not assume two flags change together.
type Flags struct {
	bits atomic.Uint32
}

// NewFlags returns a register with both enable flags set.
func NewFlags() *Flags {
	f := &Flags{}
	f.Set(FlagEnabledSoft, true)
	f.Set(FlagEnabledHard, true)
	return f
}

// Set stores v into every bit covered by flag using a compare-and-retry
// loop, so concurrent writers to other flags never lose updates.
func (f *Flags) Set(flag Flag, v bool) {
	for {
		old := f.bits.Load()
		next := old &^ uint32(flag)
		if v {
			next = old | uint32(flag)
		}
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Negate toggles every bit covered by flag.
func (f *Flags) Negate(flag Flag) {
	for {
		old := f.bits.Load()
		if f.bits.CompareAndSwap(old, old^uint32(flag)) {
			return
		}
	}
}

// Get reports whether any bit covered by flag is set. Flag values may
// be OR-ed to test several flags at once.
func (f *Flags) Get(flag Flag) bool {
	return f.bits.Load()&uint32(flag) != 0
}
