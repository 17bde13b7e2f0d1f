// Package lmtable implements a disk-backed multi-level trie for n-gram
// language models: packed per-level record arrays, optional per-level
// quantization codebooks, a bigram lookup cache, binary and ARPA
// serialization, and vocabulary filtering.
//
// A Table is built single-threaded (Insert, level by level, then Finalize)
// or loaded finalized from disk. After finalization Find, Score and cursors
// are safe for concurrent use.
package lmtable

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/internal/encoding"
	"github.com/CVDpl/go-lmtable/internal/filters"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/utils"
)

// Re-exported errors.
var (
	ErrInvalidMagic       = common.ErrInvalidMagic
	ErrUnsupportedVersion = common.ErrUnsupportedVersion
	ErrCorrupt            = common.ErrCorrupt
	ErrCRCMismatch        = common.ErrCRCMismatch
	ErrChecksum           = common.ErrChecksum
	ErrCountMismatch      = common.ErrCountMismatch
	ErrBadClass           = common.ErrBadClass
	ErrCapacity           = common.ErrCapacity
	ErrCacheFull          = common.ErrCacheFull
	ErrLookback           = common.ErrLookback
	ErrOutOfRange         = common.ErrOutOfRange
	ErrDuplicateKey       = common.ErrDuplicateKey
	ErrOutOfOrder         = common.ErrOutOfOrder
	ErrLevelSealed        = common.ErrLevelSealed
	ErrFinalized          = common.ErrFinalized
	ErrNotFinalized       = common.ErrNotFinalized
	ErrMissingParent      = common.ErrMissingParent
	ErrNoCodebook         = common.ErrNoCodebook
	ErrBadNgram           = common.ErrBadNgram
	ErrClosed             = common.ErrClosed
)

// MaxLevel is the highest supported n-gram order.
const MaxLevel = common.MaxLevel

// LogProbFloor is returned in place of -inf log10 probabilities.
const LogProbFloor = common.LogProbFloor

// Options configures table behavior.
type Options struct {
	// WordWidth is the byte width of word ids (1..4).
	WordWidth int `yaml:"word_width"`

	// BigramCacheEntries bounds the bigram cache; 0 disables it.
	BigramCacheEntries int `yaml:"bigram_cache_entries"`

	// BigramBloomFPR builds a Bloom filter over stored bigrams at Finalize
	// with this false positive rate; 0 disables it.
	BigramBloomFPR float64 `yaml:"bigram_bloom_fpr"`

	// VerifyOnLoad checks the CRC32C trailer of binary models.
	// Structural checks (classes, bounds, ordering) always run.
	VerifyOnLoad bool `yaml:"verify_on_load"`

	// VerifyChecksums checks BLAKE3 sums from model.json when opening a model directory.
	VerifyChecksums bool `yaml:"verify_checksums"`

	// UseMmap maps binary models instead of reading them onto the heap.
	UseMmap bool `yaml:"use_mmap"`

	// DiskBufferRecords is the window size of disk tables used by FilterFile.
	DiskBufferRecords int `yaml:"disk_buffer_records"`

	// CodebookCenters is the number of centers trained per codebook when
	// quantizing an ARPA model.
	CodebookCenters int `yaml:"codebook_centers"`

	// Logger provides structured logging.
	Logger common.Logger `yaml:"-"`
}

// DefaultOptions returns default table options.
func DefaultOptions() *Options {
	return &Options{
		WordWidth:          common.DefaultWordWidth,
		BigramCacheEntries: common.DefaultBigramCacheEntries,
		BigramBloomFPR:     0,
		VerifyOnLoad:       true,
		VerifyChecksums:    false,
		UseMmap:            true,
		DiskBufferRecords:  common.DefaultDiskBufferRecords,
		CodebookCenters:    common.DefaultCodebookCenters,
		Logger:             NewNullLogger(),
	}
}

func (o *Options) normalize() *Options {
	out := DefaultOptions()
	if o != nil {
		*out = *o
	}
	if out.WordWidth == 0 {
		out.WordWidth = common.DefaultWordWidth
	}
	if out.DiskBufferRecords <= 0 {
		out.DiskBufferRecords = common.DefaultDiskBufferRecords
	}
	if out.CodebookCenters <= 0 || out.CodebookCenters > common.MaxCenters {
		out.CodebookCenters = common.DefaultCodebookCenters
	}
	if out.Logger == nil {
		out.Logger = NewNullLogger()
	}
	return out
}

// Config holds the construction-time parameters of a table.
type Config struct {
	// MaxLevel is the model order (1..MaxLevel).
	MaxLevel int
	// Quantized stores probabilities and back-offs as codebook classes.
	Quantized bool
	// Capacities[i] is the number of records preallocated for level i+1.
	Capacities []int
	// Options may be nil for defaults.
	Options *Options
}

// Node addresses one record: its level (1-based) and position in that level.
// The zero Node is the root above level 1.
type Node struct {
	Level int
	Pos   int
}

// IsRoot reports whether n is the virtual root.
func (n Node) IsRoot() bool { return n.Level == 0 }

// Match is the result of Find: the deepest matched node for a query of
// length Order. A miss is not an error; Level() tells how far the match got.
type Match struct {
	Node  Node
	Order int
}

// Level returns the deepest matched level (0 when even the first word is absent).
func (m Match) Level() int { return m.Node.Level }

// Complete reports whether the whole query matched.
func (m Match) Complete() bool { return m.Order > 0 && m.Node.Level == m.Order }

type level struct {
	layout   Layout
	data     []byte
	count    int
	capacity int
	codebook *Codebook

	// build state
	lastParent int
	nextBound  int // first parent whose bound may still change
}

func (lv *level) rec(pos int) []byte {
	s := lv.layout.Size
	return lv.data[pos*s : (pos+1)*s : (pos+1)*s]
}

func (lv *level) word(pos int) uint32 { return lv.layout.Word.Get(lv.rec(pos)) }

func (lv *level) bound(pos int) int { return int(lv.layout.Bound.Get(lv.rec(pos))) }

// Table is a multi-level n-gram trie.
type Table struct {
	maxlev    int
	quantized bool
	wordWidth int
	levels    []*level // index 1..maxlev

	opts   *Options
	logger common.Logger

	building  int // level currently accepting inserts
	finalized bool
	closed    atomic.Bool

	cacheMu sync.Mutex
	cache   *BigramCache
	bloom   *filters.BloomFilter

	stats *statsCollector

	mmap *utils.MemoryMap
}

// New creates an empty table ready for Insert.
func New(cfg Config) (*Table, error) {
	if len(cfg.Capacities) != cfg.MaxLevel {
		return nil, fmt.Errorf("%w: %d capacities for %d levels", common.ErrCountMismatch, len(cfg.Capacities), cfg.MaxLevel)
	}
	t, err := newTable(cfg.MaxLevel, cfg.Quantized, cfg.Options)
	if err != nil {
		return nil, err
	}
	for l := 1; l <= t.maxlev; l++ {
		c := cfg.Capacities[l-1]
		if c < 0 {
			return nil, fmt.Errorf("%w: negative capacity %d for level %d", common.ErrCapacity, c, l)
		}
		lv := t.levels[l]
		lv.capacity = c
		lv.data = make([]byte, 0, c*lv.layout.Size)
	}
	t.logger.Debug("table created", "order", t.maxlev, "quantized", t.quantized, "capacities", cfg.Capacities)
	return t, nil
}

func newTable(maxlev int, quantized bool, opts *Options) (*Table, error) {
	if maxlev < 1 || maxlev > common.MaxLevel {
		return nil, fmt.Errorf("%w: order %d outside 1..%d", common.ErrBadNgram, maxlev, common.MaxLevel)
	}
	o := opts.normalize()
	if o.WordWidth < 1 || o.WordWidth > encoding.MaxFieldWidth {
		return nil, fmt.Errorf("%w: word width %d", common.ErrBadWidth, o.WordWidth)
	}

	t := &Table{
		maxlev:    maxlev,
		quantized: quantized,
		wordWidth: o.WordWidth,
		levels:    make([]*level, maxlev+1),
		opts:      o,
		logger:    o.Logger,
		building:  1,
		stats:     newStatsCollector(),
	}
	for l, typ := range levelTypes(maxlev, quantized) {
		if l == 0 {
			continue
		}
		t.levels[l] = &level{layout: NewLayout(typ, o.WordWidth)}
	}
	if o.BigramCacheEntries > 0 && maxlev >= 2 {
		t.cache = NewBigramCache(o.BigramCacheEntries, WithContext(o.Logger, map[string]interface{}{"component": "bigram_cache"}))
	}
	return t, nil
}

// MaxLevel returns the model order.
func (t *Table) MaxLevel() int { return t.maxlev }

// Quantized reports whether the table stores codebook classes.
func (t *Table) Quantized() bool { return t.quantized }

// WordWidth returns the byte width of word ids.
func (t *Table) WordWidth() int { return t.wordWidth }

// Finalized reports whether the table is read-only.
func (t *Table) Finalized() bool { return t.finalized }

// Count returns the number of records at level l.
func (t *Table) Count(l int) int {
	if l < 1 || l > t.maxlev {
		return 0
	}
	return t.levels[l].count
}

// Counts returns the record count of every level, index 0 = level 1.
func (t *Table) Counts() []uint64 {
	out := make([]uint64, t.maxlev)
	for l := 1; l <= t.maxlev; l++ {
		out[l-1] = uint64(t.levels[l].count)
	}
	return out
}

// Layout returns the record layout of level l.
func (t *Table) Layout(l int) Layout { return t.levels[l].layout }

// Codebook returns the codebook of level l, nil for unquantized tables.
func (t *Table) Codebook(l int) *Codebook { return t.levels[l].codebook }

// Word returns the word id stored at n.
func (t *Table) Word(n Node) uint32 { return t.levels[n.Level].word(n.Pos) }

// LogProb returns the log10 probability stored at n, floored at LogProbFloor.
func (t *Table) LogProb(n Node) float64 {
	lv := t.levels[n.Level]
	raw := lv.layout.Prob.Get(lv.rec(n.Pos))
	var p float32
	if lv.layout.Type.Quantized() {
		p = lv.codebook.ResolveProb(uint8(raw))
	} else {
		p = math32frombits(raw)
	}
	return floorLogProb(p)
}

// Backoff returns the log10 back-off weight stored at n (0 for leaf records).
func (t *Table) Backoff(n Node) float64 {
	lv := t.levels[n.Level]
	if lv.layout.Type.IsLeaf() {
		return 0
	}
	raw := lv.layout.Bow.Get(lv.rec(n.Pos))
	if lv.layout.Type.Quantized() {
		return float64(lv.codebook.ResolveBackoff(uint8(raw)))
	}
	return float64(math32frombits(raw))
}

// ChildRange returns the [start, end) positions of n's children in level n.Level+1.
func (t *Table) ChildRange(n Node) (int, int) {
	if n.IsRoot() {
		return 0, t.levels[1].count
	}
	lv := t.levels[n.Level]
	if !lv.layout.HasChildren() {
		return 0, 0
	}
	end := lv.bound(n.Pos)
	start := 0
	if n.Pos > 0 {
		start = lv.bound(n.Pos - 1)
	}
	return start, end
}

// Close releases the memory mapping of a loaded table. Records of a closed
// mmap-backed table must not be accessed.
func (t *Table) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.logger.Debug("table closed", "order", t.maxlev)
	if t.mmap != nil {
		return t.mmap.Close()
	}
	return nil
}
