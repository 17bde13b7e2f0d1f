package common

import (
	"errors"
)

// File format magic numbers (little-endian)
const (
	MagicModel uint32 = 0x42544D4C // "LMTB" in little-endian
)

// File format versions
const (
	VersionModel uint16 = 0x0100
)

// Table geometry limits.
const (
	MaxLevel         = 11 // hard cap on n-gram order
	DefaultWordWidth = 3  // bytes per word id
	ProbWidth        = 4  // float32 bit pattern
	QProbWidth       = 1  // quantization class
	BoundWidth       = 4
	MaxCenters       = 256 // classes addressable by a 1-byte field
)

// LogProbFloor replaces -inf log10 probabilities.
const LogProbFloor = -99.0

// Default configuration values
const (
	DefaultBigramCacheEntries = 1 << 20
	DefaultDiskBufferRecords  = 1 << 16
	DefaultCodebookCenters    = 256
)

// Common errors
var (
	// Format errors.
	ErrInvalidMagic       = errors.New("invalid file magic number")
	ErrUnsupportedVersion = errors.New("unsupported file version")
	ErrCorrupt            = errors.New("data corruption detected")
	ErrCRCMismatch        = errors.New("CRC checksum mismatch")
	ErrChecksum           = errors.New("BLAKE3 checksum mismatch")
	ErrCountMismatch      = errors.New("record count mismatch")
	ErrBadClass           = errors.New("quantization class out of range")

	// Capacity errors.
	ErrCapacity  = errors.New("level capacity exceeded")
	ErrCacheFull = errors.New("bigram cache is full")

	// Contract violations.
	ErrShortBuffer   = errors.New("buffer too small for field")
	ErrBadWidth      = errors.New("unsupported field width")
	ErrLookback      = errors.New("disk table lookback beyond one record")
	ErrOutOfRange    = errors.New("record position out of range")
	ErrDuplicateKey  = errors.New("duplicate cache key")
	ErrOutOfOrder    = errors.New("n-gram inserted out of order")
	ErrLevelSealed   = errors.New("level already sealed")
	ErrFinalized     = errors.New("table is finalized")
	ErrNotFinalized  = errors.New("table is not finalized")
	ErrMissingParent = errors.New("parent n-gram not found")
	ErrNoCodebook    = errors.New("codebook not loaded for level")
	ErrBadNgram      = errors.New("invalid n-gram")
	ErrClosed        = errors.New("table is closed")
)

// File names within a model directory.
const (
	FileModel    = "model.lmt"
	FileVocab    = "vocab.txt"
	FileMetadata = "model.json"
)

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)
