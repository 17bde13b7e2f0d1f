package lmtable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/format"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/utils"
)

// Filter returns a new finalized table holding only the n-grams whose words
// are all in vocab. Records keep their order; bounds are remapped so the
// result equals a table built directly from the kept n-grams.
func (t *Table) Filter(vocab *roaring.Bitmap) (*Table, error) {
	if !t.finalized {
		return nil, common.ErrNotFinalized
	}
	start := time.Now()
	kept := t.keptPositions(vocab)

	out, err := newTable(t.maxlev, t.quantized, t.opts)
	if err != nil {
		return nil, err
	}
	for l := 1; l <= t.maxlev; l++ {
		src, dst := t.levels[l], out.levels[l]
		n := int(kept[l].GetCardinality())
		dst.data = make([]byte, n*dst.layout.Size)
		dst.count, dst.capacity, dst.nextBound = n, n, n
		dst.codebook = src.codebook

		i := 0
		it := kept[l].Iterator()
		for it.HasNext() {
			rec := dst.rec(i)
			copy(rec, src.rec(int(it.Next())))
			if dst.layout.HasChildren() {
				remapBound(dst.layout, rec, kept[l+1])
			}
			i++
		}
	}
	if err := out.validate(); err != nil {
		return nil, fmt.Errorf("filtered table: %w", err)
	}
	out.building = out.maxlev
	out.finalized = true
	out.buildBloom()

	LogLatency(t.logger, "filter", start, "vocab", vocab.GetCardinality(), "before", t.Counts(), "after", out.Counts())
	return out, nil
}

// keptPositions returns, per level, the positions of n-grams whose words are
// all in vocab. A kept n-gram always has a kept parent.
func (t *Table) keptPositions(vocab *roaring.Bitmap) []*roaring.Bitmap {
	kept := make([]*roaring.Bitmap, t.maxlev+2)
	for l := range kept {
		kept[l] = roaring.New()
	}
	lv1 := t.levels[1]
	for i := 0; i < lv1.count; i++ {
		if vocab.Contains(lv1.word(i)) {
			kept[1].Add(uint32(i))
		}
	}
	for l := 1; l < t.maxlev; l++ {
		next := t.levels[l+1]
		it := kept[l].Iterator()
		for it.HasNext() {
			lo, hi := t.ChildRange(Node{Level: l, Pos: int(it.Next())})
			for j := lo; j < hi; j++ {
				if vocab.Contains(next.word(j)) {
					kept[l+1].Add(uint32(j))
				}
			}
		}
	}
	return kept
}

// remapBound rewrites the bound of rec to count only kept children.
func remapBound(lay Layout, rec []byte, keptChildren *roaring.Bitmap) {
	b := lay.Bound.Get(rec)
	var nb uint32
	if b > 0 {
		nb = uint32(keptChildren.Rank(b - 1))
	}
	lay.Bound.Put(rec, nb)
}

// FilterFile filters the binary model at inPath to vocab and writes the
// result to outPath without loading the level arrays. Each level is paged
// through a DiskTable: one pass selects the kept records, a second pass
// after Rewind copies them. The output is byte-identical to saving
// Filter's result.
func FilterFile(inPath string, vocab *roaring.Bitmap, outPath string, opts *Options) error {
	o := opts.normalize()
	start := time.Now()

	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	in, err := openDiskModel(f, o)
	if err != nil {
		return fmt.Errorf("filter %s: %w", inPath, err)
	}
	if o.VerifyOnLoad {
		if err := in.verifyCRC(f); err != nil {
			return fmt.Errorf("filter %s: %w", inPath, err)
		}
	}

	kept, err := in.selectKept(vocab)
	if err != nil {
		return fmt.Errorf("filter %s: %w", inPath, err)
	}
	for l := 1; l <= in.h.MaxLevel; l++ {
		if err := in.tables[l].Rewind(); err != nil {
			return err
		}
	}

	err = utils.WriteFileAtomic(outPath, func(w io.Writer) error {
		bw := bufio.NewWriterSize(w, 1<<20)
		if err := in.writeKept(bw, kept); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return fmt.Errorf("filter %s: %w", inPath, err)
	}

	counts := make([]uint64, in.h.MaxLevel)
	for l := range counts {
		counts[l] = kept[l+1].GetCardinality()
	}
	LogLatency(o.Logger, "filter file", start, "in", inPath, "out", outPath, "before", in.h.Counts, "after", counts)
	return nil
}

// diskModel is a binary model whose level arrays stay on disk.
type diskModel struct {
	h         *format.Header
	codebooks []*Codebook
	layouts   []Layout
	tables    []*DiskTable
	dataEnd   int64
}

func openDiskModel(f *os.File, o *Options) (*diskModel, error) {
	h, err := format.ReadHeader(f)
	if err != nil {
		return nil, err
	}
	m := &diskModel{
		h:         h,
		codebooks: make([]*Codebook, h.MaxLevel+1),
		layouts:   make([]Layout, h.MaxLevel+1),
		tables:    make([]*DiskTable, h.MaxLevel+2),
	}
	types := levelTypes(h.MaxLevel, h.Quantized)
	for l := 1; l <= h.MaxLevel; l++ {
		m.layouts[l] = NewLayout(types[l], h.WordWidth)
		if !h.Quantized {
			continue
		}
		cb := &Codebook{}
		if cb.Prob, err = format.ReadCenters(f, common.MaxCenters); err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}
		if cb.Backoff, err = format.ReadCenters(f, common.MaxCenters); err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}
		if len(cb.Backoff) == 0 {
			cb.Backoff = nil
		}
		if err := cb.validate(l, types[l]); err != nil {
			return nil, err
		}
		m.codebooks[l] = cb
	}

	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	for l := 1; l <= h.MaxLevel; l++ {
		size := m.layouts[l].Size
		n := int64(h.Counts[l-1])
		sr := io.NewSectionReader(f, off, n*int64(size))
		if m.tables[l], err = NewDiskTable(sr, o.DiskBufferRecords, size, n); err != nil {
			return nil, err
		}
		off += n * int64(size)
	}
	m.dataEnd = off

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() != off+format.TrailerSize {
		return nil, fmt.Errorf("%w: file has %d bytes, header and counts %v require %d",
			common.ErrCountMismatch, st.Size(), h.Counts, off+format.TrailerSize)
	}
	return m, nil
}

func (m *diskModel) verifyCRC(f *os.File) error {
	crc := utils.NewCRC32C()
	if _, err := io.Copy(crc, io.NewSectionReader(f, 0, m.dataEnd)); err != nil {
		return err
	}
	var trailer [format.TrailerSize]byte
	if _, err := f.ReadAt(trailer[:], m.dataEnd); err != nil {
		return fmt.Errorf("%w: read trailer: %v", common.ErrCorrupt, err)
	}
	if want := binary.LittleEndian.Uint32(trailer[:]); crc.Sum32() != want {
		return fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", common.ErrCRCMismatch, want, crc.Sum32())
	}
	return nil
}

// selectKept computes the kept positions of every level in one ascending
// pass per level. A parent's child range starts at the bound of the record
// before it, read through the disk table's lookback slot.
func (m *diskModel) selectKept(vocab *roaring.Bitmap) ([]*roaring.Bitmap, error) {
	kept := make([]*roaring.Bitmap, m.h.MaxLevel+2)
	for l := range kept {
		kept[l] = roaring.New()
	}

	t1, lay1 := m.tables[1], m.layouts[1]
	for i := int64(0); i < t1.Len(); i++ {
		rec, err := t1.Get(i)
		if err != nil {
			return nil, err
		}
		if vocab.Contains(lay1.Word.Get(rec)) {
			kept[1].Add(uint32(i))
		}
	}

	for l := 1; l < m.h.MaxLevel; l++ {
		parents, children := m.tables[l], m.tables[l+1]
		if err := parents.Rewind(); err != nil {
			return nil, err
		}
		pl, cl := m.layouts[l], m.layouts[l+1]
		it := kept[l].Iterator()
		for it.HasNext() {
			p := int64(it.Next())
			rec, err := parents.Get(p)
			if err != nil {
				return nil, err
			}
			hi := int64(pl.Bound.Get(rec))
			lo := int64(0)
			if p > 0 {
				prev, err := parents.Get(p - 1)
				if err != nil {
					return nil, err
				}
				lo = int64(pl.Bound.Get(prev))
			}
			if lo > hi || hi > children.Len() {
				return nil, fmt.Errorf("%w: level %d position %d child range [%d, %d) of %d",
					common.ErrCorrupt, l, p, lo, hi, children.Len())
			}
			for j := lo; j < hi; j++ {
				crec, err := children.Get(j)
				if err != nil {
					return nil, err
				}
				if vocab.Contains(cl.Word.Get(crec)) {
					kept[l+1].Add(uint32(j))
				}
			}
		}
	}
	return kept, nil
}

// writeKept writes the filtered model in binary format.
func (m *diskModel) writeKept(w io.Writer, kept []*roaring.Bitmap) error {
	crc := utils.NewCRC32C()
	mw := io.MultiWriter(w, crc)

	h := *m.h
	h.Counts = make([]uint64, h.MaxLevel)
	for l := 1; l <= h.MaxLevel; l++ {
		h.Counts[l-1] = kept[l].GetCardinality()
	}
	if err := format.WriteHeader(mw, &h); err != nil {
		return err
	}
	for l := 1; h.Quantized && l <= h.MaxLevel; l++ {
		if err := format.WriteCenters(mw, m.codebooks[l].Prob); err != nil {
			return err
		}
		if err := format.WriteCenters(mw, m.codebooks[l].Backoff); err != nil {
			return err
		}
	}

	for l := 1; l <= h.MaxLevel; l++ {
		lay := m.layouts[l]
		rec := make([]byte, lay.Size)
		it := kept[l].Iterator()
		for it.HasNext() {
			src, err := m.tables[l].Get(int64(it.Next()))
			if err != nil {
				return err
			}
			copy(rec, src)
			if lay.HasChildren() {
				remapBound(lay, rec, kept[l+1])
			}
			if _, err := mw.Write(rec); err != nil {
				return err
			}
		}
	}

	var trailer [format.TrailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], crc.Sum32())
	_, err := w.Write(trailer[:])
	return err
}
