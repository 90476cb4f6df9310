package utils

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// U64 returns the FNV-64a hash of s.
func U64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Mix64 combines two hashes into one; the order matters.
func Mix64(a, b uint64) uint64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], a)
	binary.BigEndian.PutUint64(buf[8:], b)
	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

// Hex renders a hash as a fixed-width lowercase hex string.
func Hex(u uint64) string {
	return fmt.Sprintf("%016x", u)
}
