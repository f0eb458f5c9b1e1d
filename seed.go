package genlab

import "math/rand/v2"

const (
	// randomSeedCeiling bounds seeds drawn when no base seed was supplied.
	randomSeedCeiling = 10_000_000
	// seedJitterRange bounds the per-job jitter added to an explicit base
	// seed so a batch never submits identical seeds for every slot.
	seedJitterRange = 1000
)

// Seed expresses the caller's seeding intent. The zero value means "choose
// randomly per job"; use ExplicitSeed to pin a reproducible base.
type Seed struct {
	value    int64
	explicit bool
}

// ExplicitSeed pins the batch to a reproducible base seed.
func ExplicitSeed(value int64) Seed {
	return Seed{value: value, explicit: true}
}

// RandomSeed requests an independent random seed per job.
func RandomSeed() Seed {
	return Seed{}
}

// SeedFromInt maps the historical wire convention where -1 means "random"
// onto the Seed type. Any other value is treated as an explicit base.
func SeedFromInt(value int64) Seed {
	if value == -1 {
		return RandomSeed()
	}
	return ExplicitSeed(value)
}

// Base returns the explicit base seed and whether one was set.
func (s Seed) Base() (int64, bool) {
	return s.value, s.explicit
}

// Derive produces the seed for one job slot. Explicit bases receive a fresh
// jitter in [0, seedJitterRange) per call; unspecified seeds are drawn
// uniformly in [0, randomSeedCeiling) per call. Collisions between jobs are
// acceptable and not an error.
func (s Seed) Derive() int64 {
	if !s.explicit {
		return rand.Int64N(randomSeedCeiling)
	}
	return s.value + rand.Int64N(seedJitterRange)
}
