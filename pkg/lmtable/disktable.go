package lmtable

import (
	"fmt"
	"io"

	"github.com/CVDpl/go-lmtable/internal/common"
)

// DiskTable pages a fixed-size record array from a stream through a window of
// records. Reads move forward; only the record just before the current window
// stays available. The stream is borrowed: DiskTable never closes it and must
// not outlive it.
type DiskTable struct {
	r         io.ReadSeeker
	start     int64 // stream offset of record 0
	entrySize int
	records   int64
	window    int

	// buf holds the lookback record followed by the window.
	buf         []byte
	windowStart int64
	windowEnd   int64
	hasLookback bool
}

// NewDiskTable pages records entries of entrySize bytes starting at the
// current offset of r, bufferRecords at a time.
func NewDiskTable(r io.ReadSeeker, bufferRecords, entrySize int, records int64) (*DiskTable, error) {
	if bufferRecords <= 0 {
		bufferRecords = common.DefaultDiskBufferRecords
	}
	if entrySize <= 0 {
		return nil, fmt.Errorf("%w: entry size %d", common.ErrBadWidth, entrySize)
	}
	if records < 0 {
		return nil, fmt.Errorf("%w: %d records", common.ErrCountMismatch, records)
	}
	if int64(bufferRecords) > records && records > 0 {
		bufferRecords = int(records)
	}
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("disk table offset: %w", err)
	}
	return &DiskTable{
		r:         r,
		start:     start,
		entrySize: entrySize,
		records:   records,
		window:    bufferRecords,
		buf:       make([]byte, (bufferRecords+1)*entrySize),
	}, nil
}

// Len returns the number of records.
func (d *DiskTable) Len() int64 { return d.records }

// EntrySize returns the record size in bytes.
func (d *DiskTable) EntrySize() int { return d.entrySize }

// Get returns record pos. Positions at or past the window end page the
// window forward; pos may be at most one record before the window.
// The returned slice is valid until the next Get or Rewind.
func (d *DiskTable) Get(pos int64) ([]byte, error) {
	if pos < 0 || pos >= d.records {
		return nil, fmt.Errorf("%w: position %d of %d records", common.ErrOutOfRange, pos, d.records)
	}
	if pos < d.windowStart {
		if pos == d.windowStart-1 && d.hasLookback {
			return d.buf[:d.entrySize:d.entrySize], nil
		}
		return nil, fmt.Errorf("%w: position %d requested, window starts at %d", common.ErrLookback, pos, d.windowStart)
	}
	for pos >= d.windowEnd {
		if err := d.advance(); err != nil {
			return nil, err
		}
	}
	off := int(pos-d.windowStart+1) * d.entrySize
	return d.buf[off : off+d.entrySize : off+d.entrySize], nil
}

// advance reads the next window, keeping the last record of the current one.
func (d *DiskTable) advance() error {
	if d.windowEnd > d.windowStart {
		last := int(d.windowEnd-d.windowStart) * d.entrySize
		copy(d.buf[:d.entrySize], d.buf[last:last+d.entrySize])
		d.hasLookback = true
	}
	n := d.records - d.windowEnd
	if n > int64(d.window) {
		n = int64(d.window)
	}
	w := d.buf[d.entrySize : d.entrySize+int(n)*d.entrySize]
	if _, err := io.ReadFull(d.r, w); err != nil {
		return fmt.Errorf("%w: read records %d..%d: %v", common.ErrCorrupt, d.windowEnd, d.windowEnd+n, err)
	}
	d.windowStart = d.windowEnd
	d.windowEnd += n
	return nil
}

// Rewind moves back to record 0 for another pass.
func (d *DiskTable) Rewind() error {
	if _, err := d.r.Seek(d.start, io.SeekStart); err != nil {
		return fmt.Errorf("disk table rewind: %w", err)
	}
	d.windowStart, d.windowEnd = 0, 0
	d.hasLookback = false
	return nil
}
