// Package format defines the on-disk header of binary n-gram models and the
// model.json metadata sidecar.
package format

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/CVDpl/go-lmtable/internal/common"
)

// Header flag bits.
const (
	FlagQuantized uint8 = 1 << 0
)

// CommonHeaderSize is magic + version.
const CommonHeaderSize = 6

// CommonHeader is the common header for all model files.
type CommonHeader struct {
	Magic   uint32
	Version uint16
}

// Header describes a binary model. Record widths of every level follow from
// MaxLevel, Quantized and WordWidth alone.
type Header struct {
	CommonHeader
	MaxLevel  int
	Quantized bool
	WordWidth int
	Counts    []uint64 // Counts[i] is the record count of level i+1
}

// Size returns the encoded size of the header in bytes.
func (h *Header) Size() int {
	return CommonHeaderSize + 4 + 8*h.MaxLevel
}

// WriteCommonHeader writes a common header to a writer.
func WriteCommonHeader(w io.Writer, magic uint32, version uint16) error {
	var buf [CommonHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], version)
	_, err := w.Write(buf[:])
	return err
}

// ReadCommonHeader reads a common header from a reader.
func ReadCommonHeader(r io.Reader) (*CommonHeader, error) {
	var buf [CommonHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("%w: read common header: %v", common.ErrCorrupt, err)
	}
	return &CommonHeader{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		Version: binary.LittleEndian.Uint16(buf[4:6]),
	}, nil
}

// ValidateHeader validates a common header.
func ValidateHeader(h *CommonHeader, expectedMagic uint32, expectedVersion uint16) error {
	if h.Magic != expectedMagic {
		return fmt.Errorf("%w: got 0x%08x, expected 0x%08x",
			common.ErrInvalidMagic, h.Magic, expectedMagic)
	}

	if h.Version != expectedVersion {
		return fmt.Errorf("%w: got 0x%04x, expected 0x%04x",
			common.ErrUnsupportedVersion, h.Version, expectedVersion)
	}

	return nil
}

// WriteHeader writes a model header.
func WriteHeader(w io.Writer, h *Header) error {
	if err := h.validate(); err != nil {
		return err
	}
	if err := WriteCommonHeader(w, common.MagicModel, common.VersionModel); err != nil {
		return err
	}

	var flags uint8
	if h.Quantized {
		flags |= FlagQuantized
	}
	buf := make([]byte, 4+8*h.MaxLevel)
	buf[0] = uint8(h.MaxLevel)
	buf[1] = flags
	buf[2] = uint8(h.WordWidth)
	for i, c := range h.Counts {
		binary.LittleEndian.PutUint64(buf[4+8*i:], c)
	}
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a model header.
func ReadHeader(r io.Reader) (*Header, error) {
	ch, err := ReadCommonHeader(r)
	if err != nil {
		return nil, err
	}
	if err := ValidateHeader(ch, common.MagicModel, common.VersionModel); err != nil {
		return nil, err
	}

	var fixed [4]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", common.ErrCorrupt, err)
	}
	h := &Header{
		CommonHeader: *ch,
		MaxLevel:     int(fixed[0]),
		Quantized:    fixed[1]&FlagQuantized != 0,
		WordWidth:    int(fixed[2]),
	}
	if fixed[1]&^FlagQuantized != 0 {
		return nil, fmt.Errorf("%w: unknown header flags 0x%02x", common.ErrCorrupt, fixed[1])
	}
	if h.MaxLevel < 1 || h.MaxLevel > common.MaxLevel {
		return nil, fmt.Errorf("%w: max level %d outside 1..%d", common.ErrCorrupt, h.MaxLevel, common.MaxLevel)
	}

	counts := make([]byte, 8*h.MaxLevel)
	if _, err := io.ReadFull(r, counts); err != nil {
		return nil, fmt.Errorf("%w: read level counts: %v", common.ErrCorrupt, err)
	}
	h.Counts = make([]uint64, h.MaxLevel)
	for i := range h.Counts {
		h.Counts[i] = binary.LittleEndian.Uint64(counts[8*i:])
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) validate() error {
	if h.MaxLevel < 1 || h.MaxLevel > common.MaxLevel {
		return fmt.Errorf("%w: max level %d outside 1..%d", common.ErrCorrupt, h.MaxLevel, common.MaxLevel)
	}
	if h.WordWidth < 1 || h.WordWidth > 4 {
		return fmt.Errorf("%w: word width %d", common.ErrCorrupt, h.WordWidth)
	}
	if len(h.Counts) != h.MaxLevel {
		return fmt.Errorf("%w: %d level counts for %d levels", common.ErrCountMismatch, len(h.Counts), h.MaxLevel)
	}
	for i, c := range h.Counts {
		// positions and bounds are 32-bit
		if c > math.MaxUint32 {
			return fmt.Errorf("%w: level %d count %d exceeds 32-bit positions", common.ErrCorrupt, i+1, c)
		}
	}
	return nil
}

// WriteCenters writes a count-prefixed float32 array.
func WriteCenters(w io.Writer, centers []float32) error {
	buf := make([]byte, 4+4*len(centers))
	binary.LittleEndian.PutUint32(buf, uint32(len(centers)))
	for i, c := range centers {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(c))
	}
	_, err := w.Write(buf)
	return err
}

// ReadCenters reads a count-prefixed float32 array of at most max entries.
func ReadCenters(r io.Reader, max int) ([]float32, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, fmt.Errorf("%w: read codebook size: %v", common.ErrCorrupt, err)
	}
	count := binary.LittleEndian.Uint32(n[:])
	if int64(count) > int64(max) {
		return nil, fmt.Errorf("%w: codebook of %d centers exceeds %d", common.ErrCorrupt, count, max)
	}
	buf := make([]byte, 4*count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: read codebook: %v", common.ErrCorrupt, err)
	}
	centers := make([]float32, count)
	for i := range centers {
		centers[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return centers, nil
}

// CentersSize returns the encoded size of a codebook array of n centers.
func CentersSize(n int) int { return 4 + 4*n }

// TrailerSize is the CRC32C trailer following the level arrays.
const TrailerSize = 4
