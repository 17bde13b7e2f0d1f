package encoding

import (
	"fmt"

	"github.com/CVDpl/go-lmtable/internal/common"
)

// MaxFieldWidth is the widest packed field in bytes.
const MaxFieldWidth = 4

// Field locates a fixed-width little-endian unsigned integer inside a record.
type Field struct {
	Offset int
	Width  int
}

// End returns the first byte past the field.
func (f Field) End() int { return f.Offset + f.Width }

// Get reads the field from rec. The caller guarantees len(rec) >= f.End().
func (f Field) Get(rec []byte) uint32 { return GetUint(rec[f.Offset:f.End()], f.Width) }

// Put writes v into the field of rec, truncating to the field width.
func (f Field) Put(rec []byte, v uint32) { PutUint(rec[f.Offset:f.End()], f.Width, v) }

// ReadField reads a width-byte little-endian value at offset.
func ReadField(buf []byte, offset, width int) (uint32, error) {
	if err := checkField(len(buf), offset, width); err != nil {
		return 0, err
	}
	return GetUint(buf[offset:offset+width], width), nil
}

// WriteField writes the low width bytes of value at offset.
// Values that do not fit in width bytes are rejected.
func WriteField(buf []byte, offset, width int, value uint32) error {
	if err := checkField(len(buf), offset, width); err != nil {
		return err
	}
	if width < 4 && value>>(8*uint(width)) != 0 {
		return fmt.Errorf("%w: value %d does not fit in %d bytes", common.ErrBadWidth, value, width)
	}
	PutUint(buf[offset:offset+width], width, value)
	return nil
}

// GetUint decodes a little-endian value from the first width bytes of b.
func GetUint(b []byte, width int) uint32 {
	switch width {
	case 1:
		return uint32(b[0])
	case 2:
		_ = b[1]
		return uint32(b[0]) | uint32(b[1])<<8
	case 3:
		_ = b[2]
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	default:
		_ = b[3]
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	}
}

// PutUint encodes the low width bytes of v into b.
func PutUint(b []byte, width int, v uint32) {
	_ = b[width-1]
	for i := 0; i < width; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

// MaxValue returns the largest value a field of width bytes can hold.
func MaxValue(width int) uint32 {
	if width >= 4 {
		return ^uint32(0)
	}
	return 1<<(8*uint(width)) - 1
}

func checkField(size, offset, width int) error {
	if width < 1 || width > MaxFieldWidth {
		return fmt.Errorf("%w: %d", common.ErrBadWidth, width)
	}
	if offset < 0 || offset+width > size {
		return fmt.Errorf("%w: offset %d width %d buffer %d", common.ErrShortBuffer, offset, width, size)
	}
	return nil
}
