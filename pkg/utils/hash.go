package utils

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Checksum returns the xxhash64 of data as a fixed-width hex string.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// VerifyChecksum reports whether data hashes to expected.
func VerifyChecksum(data []byte, expected string) bool {
	return Checksum(data) == expected
}
