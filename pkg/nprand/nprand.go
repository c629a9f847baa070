// This package reproduces the Python/Numpy random number generator, which itself is based on the
// C library RandomKit, which is based on the original Mersenne Twister code, albeit with many
// modifications. Streams produced here match numpy.random.RandomState for the operations the
// trainer relies on, so a run seeded here shuffles and initializes exactly like the Python
// pipelines that produced the datasets.

package nprand

import "math"

const (
	stateLen  int    = 624
	maxUint32 uint32 = 0xffffffff
	// Magic Mersenne Twister constants
	mtN       int    = 624
	mtM       int    = 397
	matrixA   uint32 = 0x9908b0df
	upperMask uint32 = 0x80000000
	lowerMask uint32 = 0x7fffffff
)

// State is the state of the random number generator. It serializes to JSON so a
// training snapshot can carry the generator position across restarts.
type State struct {
	Key [stateLen]uint32 `json:"key"`
	Pos int              `json:"pos"`

	// Cached second output of the polar Gaussian transform, as in numpy's state tuple.
	HasGauss    bool    `json:"has_gauss"`
	CachedGauss float64 `json:"cached_gauss"`
}

// New creates a new seeded RNG state.
func New(seed uint32) *State {
	state := State{}
	state.Seed(seed)
	return &state
}

// Seed initializes the RNG state.
func (state *State) Seed(seed uint32) {
	for pos := 0; pos < stateLen; pos++ {
		state.Key[pos] = seed
		seed = (uint32(1812433253)*(seed^(seed>>uint32(30))) + uint32(pos) + 1)
	}
	state.Pos = stateLen
	state.HasGauss = false
	state.CachedGauss = 0
}

// Bits32 generates 32 bits of randomness.
func (state *State) Bits32() uint32 {
	var y uint32
	if state.Pos == stateLen {
		i := 0
		for ; i < mtN-mtM; i++ {
			y = (state.Key[i] & upperMask) | (state.Key[i+1] & lowerMask)
			state.Key[i] = state.Key[i+mtM] ^ (y >> 1) ^ (-(y & 1) & matrixA)
		}
		for ; i < mtN-1; i++ {
			y = (state.Key[i] & upperMask) | (state.Key[i+1] & lowerMask)
			state.Key[i] = state.Key[i+(mtM-mtN)] ^ (y >> 1) ^ (-(y & 1) & matrixA)
		}
		y = (state.Key[mtN-1] & upperMask) | (state.Key[0] & lowerMask)
		state.Key[mtN-1] = state.Key[mtM-1] ^ (y >> 1) ^ (-(y & 1) & matrixA)

		state.Pos = 0
	}
	y = state.Key[state.Pos]
	state.Pos++

	// Tempering
	y ^= y >> 11
	y ^= (y << 7) & uint32(0x9d2c5680)
	y ^= (y << 15) & uint32(0xefc60000)
	y ^= y >> 18

	return y
}

// Bits64 generates 64 bits of randomness.
func (state *State) Bits64() uint64 {
	upper := uint64(state.Bits32()) << 32
	lower := uint64(state.Bits32())
	return upper | lower
}

// bitsLimit is an internal utility function to generate bits of randomness in [0, limit].
func (state *State) bitsLimit(limit uint64) uint64 {
	if limit == 0 {
		return 0
	}

	// Generate random bits, zero out bits above the limit using a mask, and repeat
	// until the result lands at or below the limit.

	// Compute the smallest bit mask >= limit.
	mask := limit
	mask |= mask >> 1
	mask |= mask >> 2
	mask |= mask >> 4
	mask |= mask >> 8
	mask |= mask >> 16
	mask |= mask >> 32

	// If we only need 32 bits or less, only generate 32 bits of randomness.
	if limit <= uint64(maxUint32) {
		for {
			if val := uint64(state.Bits32()) & mask; val <= limit {
				return val
			}
		}
	}
	for {
		if val := state.Bits64() & mask; val <= limit {
			return val
		}
	}
}

// UnitInterval generates a random float64 in [0,1).
func (state *State) UnitInterval() float64 {
	a := float64(state.Bits32() >> 5)
	b := float64(state.Bits32() >> 6)
	return (a*(1<<26) + b) / (1 << 53)
}

// Gauss generates a standard normal variate using the polar method, matching
// numpy.random.RandomState.standard_normal draw for draw.
func (state *State) Gauss() float64 {
	if state.HasGauss {
		tmp := state.CachedGauss
		state.CachedGauss = 0
		state.HasGauss = false
		return tmp
	}

	var f, x1, x2, r2 float64
	for {
		x1 = 2.0*state.UnitInterval() - 1.0
		x2 = 2.0*state.UnitInterval() - 1.0
		r2 = x1*x1 + x2*x2
		if r2 < 1.0 && r2 != 0.0 {
			break
		}
	}
	f = math.Sqrt(-2.0 * math.Log(r2) / r2)
	state.CachedGauss = f * x1
	state.HasGauss = true
	return f * x2
}

// Shuffle permutes n elements through the provided swap callback, visiting indexes
// from the back exactly like numpy's Fisher-Yates.
func (state *State) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := int(state.bitsLimit(uint64(i)))
		swap(i, j)
	}
}

// Perm returns a permutation of [0, n), matching numpy.random.RandomState.permutation.
func (state *State) Perm(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	state.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})
	return perm
}
