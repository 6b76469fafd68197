package shared

import (
	"hash/fnv"
	"strings"
)

// AdvisoryLockKey derives a stable pg_advisory lock key from the given parts.
func AdvisoryLockKey(parts ...string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(parts, ":")))
	return int64(h.Sum64())
}
