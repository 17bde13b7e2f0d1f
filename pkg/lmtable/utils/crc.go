package utils

import (
	"hash"
	"hash/crc32"
)

// CRC32C uses the Castagnoli polynomial for better error detection.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputeCRC32C computes CRC32C checksum for the given data.
func ComputeCRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// NewCRC32C returns a streaming CRC32C hash.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crcTable)
}

// VerifyCRC32C verifies that the given CRC matches the data.
func VerifyCRC32C(data []byte, expected uint32) bool {
	return ComputeCRC32C(data) == expected
}
