package retry

import (
	"hash/fnv"
	"time"
)

// SeedFor derives a jitter seed from a name (usually the input path) and a
// run seed. The same pair always yields the same seed, so a retry sequence
// can be reproduced by pinning the run seed.
func SeedFor(name string, runSeed int64) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ runSeed
}

// TimeSeed returns a run seed from the wall clock.
func TimeSeed() int64 {
	return time.Now().UnixNano()
}
