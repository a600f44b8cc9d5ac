package config

import "hash/fnv"

// hashBytes fingerprints config content so redundant file events (editors
// often fire several) don't trigger redundant publishes.
func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
