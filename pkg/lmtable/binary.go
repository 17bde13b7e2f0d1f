package lmtable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/format"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/utils"
)

// header returns the binary header describing t.
func (t *Table) header() *format.Header {
	return &format.Header{
		CommonHeader: format.CommonHeader{Magic: common.MagicModel, Version: common.VersionModel},
		MaxLevel:     t.maxlev,
		Quantized:    t.quantized,
		WordWidth:    t.wordWidth,
		Counts:       t.Counts(),
	}
}

// WriteTo writes the finalized table in binary format: header, codebooks
// when quantized, the level arrays and a CRC32C trailer.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	if !t.finalized {
		return 0, common.ErrNotFinalized
	}
	cw := &countingWriter{w: w}
	crc := utils.NewCRC32C()
	mw := io.MultiWriter(cw, crc)

	if err := format.WriteHeader(mw, t.header()); err != nil {
		return cw.n, fmt.Errorf("write header: %w", err)
	}
	if err := t.writeCodebooks(mw); err != nil {
		return cw.n, err
	}
	for l := 1; l <= t.maxlev; l++ {
		if _, err := mw.Write(t.levels[l].data); err != nil {
			return cw.n, fmt.Errorf("write level %d: %w", l, err)
		}
	}
	var trailer [format.TrailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], crc.Sum32())
	_, err := cw.Write(trailer[:])
	return cw.n, err
}

func (t *Table) writeCodebooks(w io.Writer) error {
	if !t.quantized {
		return nil
	}
	for l := 1; l <= t.maxlev; l++ {
		cb := t.levels[l].codebook
		if err := format.WriteCenters(w, cb.Prob); err != nil {
			return fmt.Errorf("write level %d codebook: %w", l, err)
		}
		if err := format.WriteCenters(w, cb.Backoff); err != nil {
			return fmt.Errorf("write level %d codebook: %w", l, err)
		}
	}
	return nil
}

// SaveBinary atomically writes the table to path.
func (t *Table) SaveBinary(path string) error {
	start := time.Now()
	err := utils.WriteFileAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriterSize(w, 1<<20)
		if _, err := t.WriteTo(bw); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	LogLatency(t.logger, "save binary", start, "path", path, "counts", t.Counts())
	return nil
}

// ReadTable reads a binary model into memory.
func ReadTable(r io.Reader, opts *Options) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return tableFromBytes(data, opts)
}

// LoadFile loads a binary model from path, memory-mapping it when
// opts.UseMmap is set.
func LoadFile(path string, opts *Options) (*Table, error) {
	o := opts.normalize()
	start := time.Now()

	var (
		t   *Table
		err error
	)
	if o.UseMmap {
		var mm *utils.MemoryMap
		mm, err = utils.MapFile(path, unix.MADV_RANDOM)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", path, err)
		}
		t, err = tableFromBytes(mm.Data(), o)
		if err != nil {
			if cerr := mm.Close(); cerr != nil {
				LogError(o.Logger, "unmap after failed load", cerr, "path", path)
			}
		} else {
			t.mmap = mm
		}
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		t, err = tableFromBytes(data, o)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	LogLatency(t.logger, "load binary", start, "path", path, "counts", t.Counts(), "mmap", o.UseMmap)
	return t, nil
}

// tableFromBytes builds a finalized table whose level arrays alias data.
func tableFromBytes(data []byte, opts *Options) (*Table, error) {
	r := bytes.NewReader(data)
	h, err := format.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	o := opts.normalize()
	o.WordWidth = h.WordWidth
	t, err := newTable(h.MaxLevel, h.Quantized, o)
	if err != nil {
		return nil, err
	}

	if h.Quantized {
		for l := 1; l <= t.maxlev; l++ {
			cb := &Codebook{}
			if cb.Prob, err = format.ReadCenters(r, common.MaxCenters); err != nil {
				return nil, fmt.Errorf("level %d: %w", l, err)
			}
			if cb.Backoff, err = format.ReadCenters(r, common.MaxCenters); err != nil {
				return nil, fmt.Errorf("level %d: %w", l, err)
			}
			if len(cb.Backoff) == 0 {
				cb.Backoff = nil
			}
			if err := cb.validate(l, t.levels[l].layout.Type); err != nil {
				return nil, err
			}
			t.levels[l].codebook = cb
		}
	}

	off := len(data) - r.Len()
	expected := int64(off) + format.TrailerSize
	for l := 1; l <= t.maxlev; l++ {
		expected += int64(h.Counts[l-1]) * int64(t.levels[l].layout.Size)
	}
	if expected != int64(len(data)) {
		return nil, fmt.Errorf("%w: file has %d bytes, header and counts %v require %d",
			common.ErrCountMismatch, len(data), h.Counts, expected)
	}

	for l := 1; l <= t.maxlev; l++ {
		lv := t.levels[l]
		n := int(h.Counts[l-1])
		size := n * lv.layout.Size
		lv.data = data[off : off+size : off+size]
		lv.count, lv.capacity = n, n
		lv.nextBound = n
		off += size
	}

	if o.VerifyOnLoad {
		want := binary.LittleEndian.Uint32(data[off:])
		if !utils.VerifyCRC32C(data[:off], want) {
			return nil, fmt.Errorf("%w: stored 0x%08x", common.ErrCRCMismatch, want)
		}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	t.building = t.maxlev
	t.finalized = true
	t.buildBloom()
	return t, nil
}

// validate checks every record of a loaded table: quantization classes are
// inside their codebooks, bounds are non-decreasing and end at the child
// level's count, and words are strictly increasing within each child range.
func (t *Table) validate() error {
	for l := 1; l <= t.maxlev; l++ {
		lv := t.levels[l]
		if cb := lv.codebook; cb != nil {
			for i := 0; i < lv.count; i++ {
				rec := lv.rec(i)
				if c := lv.layout.Prob.Get(rec); int(c) >= len(cb.Prob) {
					return fmt.Errorf("%w: level %d position %d probability class %d of %d",
						common.ErrBadClass, l, i, c, len(cb.Prob))
				}
				if lv.layout.HasChildren() {
					if c := lv.layout.Bow.Get(rec); int(c) >= len(cb.Backoff) {
						return fmt.Errorf("%w: level %d position %d back-off class %d of %d",
							common.ErrBadClass, l, i, c, len(cb.Backoff))
					}
				}
			}
		}
		if l == 1 {
			if err := checkSorted(lv, 1, 0, lv.count); err != nil {
				return err
			}
		}
		if !lv.layout.HasChildren() {
			continue
		}

		next := t.levels[l+1]
		prev := 0
		for i := 0; i < lv.count; i++ {
			b := lv.bound(i)
			if b < prev || b > next.count {
				return fmt.Errorf("%w: level %d position %d bound %d after %d (child level holds %d)",
					common.ErrCorrupt, l, i, b, prev, next.count)
			}
			if err := checkSorted(next, l+1, prev, b); err != nil {
				return err
			}
			prev = b
		}
		if prev != next.count {
			return fmt.Errorf("%w: level %d bounds end at %d, level %d holds %d",
				common.ErrCountMismatch, l, prev, l+1, next.count)
		}
	}
	return nil
}

func checkSorted(lv *level, l, lo, hi int) error {
	for i := lo + 1; i < hi; i++ {
		if lv.word(i) <= lv.word(i-1) {
			return fmt.Errorf("%w: level %d position %d word %d not above %d",
				common.ErrCorrupt, l, i, lv.word(i), lv.word(i-1))
		}
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
