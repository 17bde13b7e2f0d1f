package lmtable

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/dict"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/utils"
)

type arpaEntry struct {
	ids    []uint32
	parent int
	prob   float32
	bow    float32
}

// LoadARPA reads an ARPA text model, assigning word ids through d. Gzip
// input is detected from its magic bytes. Quantized tables get per-level
// codebooks of opts.CodebookCenters centers trained on the file's values.
func LoadARPA(r io.Reader, d *dict.Dictionary, quantized bool, opts *Options) (*Table, error) {
	o := opts.normalize()
	start := time.Now()

	br := bufio.NewReaderSize(r, 1<<16)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("arpa gzip: %w", err)
		}
		defer zr.Close()
		br = bufio.NewReaderSize(zr, 1<<16)
	}

	p := &arpaParser{sc: bufio.NewScanner(br), dict: d}
	p.sc.Buffer(make([]byte, 0, 1<<16), 1<<24)
	levels, err := p.parse()
	if err != nil {
		return nil, err
	}

	caps := make([]int, len(levels))
	for i, es := range levels {
		caps[i] = len(es)
	}
	t, err := New(Config{MaxLevel: len(levels), Quantized: quantized, Capacities: caps, Options: o})
	if err != nil {
		return nil, err
	}
	if quantized {
		if err := t.trainCodebooks(levels); err != nil {
			return nil, err
		}
	}

	for l := 1; l <= t.maxlev; l++ {
		es := levels[l-1]
		if err := t.enterLevel(l); err != nil {
			return nil, err
		}
		for i := 0; l > 1 && i < len(es); i++ {
			m := t.find(es[i].ids[:l-1], false)
			if !m.Complete() {
				return nil, fmt.Errorf("%w: arpa %d-gram %v has no stored context", common.ErrMissingParent, l, es[i].ids)
			}
			es[i].parent = m.Node.Pos
		}
		slices.SortFunc(es, func(a, b arpaEntry) int {
			if a.parent != b.parent {
				return a.parent - b.parent
			}
			return int(a.ids[l-1]) - int(b.ids[l-1])
		})
		for _, e := range es {
			if _, err := t.insertAt(l, e.parent, e.ids[l-1], e.prob, e.bow); err != nil {
				return nil, fmt.Errorf("arpa %d-gram %v: %w", l, e.ids, err)
			}
		}
	}
	if err := t.Finalize(); err != nil {
		return nil, err
	}
	LogLatency(t.logger, "load arpa", start, "counts", t.Counts(), "quantized", quantized)
	return t, nil
}

// LoadARPAFile opens path and calls LoadARPA.
func LoadARPAFile(path string, d *dict.Dictionary, quantized bool, opts *Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := LoadARPA(f, d, quantized, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

func (t *Table) trainCodebooks(levels [][]arpaEntry) error {
	for l := 1; l <= t.maxlev; l++ {
		es := levels[l-1]
		probs := make([]float32, len(es))
		for i, e := range es {
			probs[i] = e.prob
		}
		cb := &Codebook{Prob: TrainCodebook(probs, t.opts.CodebookCenters)}
		if !t.levels[l].layout.Type.IsLeaf() {
			bows := make([]float32, len(es))
			for i, e := range es {
				bows[i] = e.bow
			}
			cb.Backoff = TrainCodebook(bows, t.opts.CodebookCenters)
		}
		if err := t.SetCodebook(l, cb); err != nil {
			return err
		}
	}
	return nil
}

type arpaParser struct {
	sc   *bufio.Scanner
	dict *dict.Dictionary
	line int
}

func (p *arpaParser) next() (string, bool) {
	for p.sc.Scan() {
		p.line++
		s := strings.TrimSpace(p.sc.Text())
		if s != "" {
			return s, true
		}
	}
	return "", false
}

func (p *arpaParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: arpa line %d: %s", common.ErrCorrupt, p.line, fmt.Sprintf(format, args...))
}

func (p *arpaParser) parse() ([][]arpaEntry, error) {
	var s string
	var ok bool
	for {
		if s, ok = p.next(); !ok {
			return nil, p.errorf("missing \\data\\ section")
		}
		if s == `\data\` {
			break
		}
	}

	var counts []int
	for {
		if s, ok = p.next(); !ok {
			return nil, p.errorf("unexpected end of file in \\data\\")
		}
		if !strings.HasPrefix(s, "ngram ") {
			break
		}
		var n, c int
		if _, err := fmt.Sscanf(s, "ngram %d=%d", &n, &c); err != nil {
			return nil, p.errorf("bad count line %q", s)
		}
		if n != len(counts)+1 || c < 0 {
			return nil, p.errorf("count line %q out of sequence", s)
		}
		counts = append(counts, c)
	}
	if len(counts) == 0 || len(counts) > common.MaxLevel {
		return nil, p.errorf("%d orders declared", len(counts))
	}

	levels := make([][]arpaEntry, len(counts))
	for n := 1; n <= len(counts); n++ {
		if s != fmt.Sprintf(`\%d-grams:`, n) {
			return nil, p.errorf("expected \\%d-grams:, got %q", n, s)
		}
		es := make([]arpaEntry, 0, counts[n-1])
		for {
			if s, ok = p.next(); !ok {
				return nil, p.errorf("unexpected end of file in \\%d-grams:", n)
			}
			if strings.HasPrefix(s, `\`) {
				break
			}
			e, err := p.entry(s, n)
			if err != nil {
				return nil, err
			}
			es = append(es, e)
		}
		if len(es) != counts[n-1] {
			return nil, fmt.Errorf("%w: arpa declares %d %d-grams, found %d", common.ErrCountMismatch, counts[n-1], n, len(es))
		}
		levels[n-1] = es
	}
	if s != `\end\` {
		return nil, p.errorf("expected \\end\\, got %q", s)
	}
	return levels, nil
}

// entry parses "prob<TAB>w1 .. wn[<TAB>bow]"; whitespace-only separation is
// accepted as well.
func (p *arpaParser) entry(s string, n int) (arpaEntry, error) {
	var probField, bowField string
	var words []string
	if parts := strings.Split(s, "\t"); len(parts) >= 2 {
		probField, words = parts[0], strings.Fields(parts[1])
		if len(parts) > 2 {
			bowField = strings.TrimSpace(parts[2])
		}
	} else {
		f := strings.Fields(s)
		if len(f) < n+1 {
			return arpaEntry{}, p.errorf("%d-gram line %q", n, s)
		}
		probField, words = f[0], f[1:n+1]
		if len(f) > n+1 {
			bowField = f[n+1]
		}
	}
	if len(words) != n {
		return arpaEntry{}, p.errorf("%d-gram line has %d words", n, len(words))
	}

	e := arpaEntry{ids: make([]uint32, n)}
	prob, err := parseLogProb(probField)
	if err != nil {
		return arpaEntry{}, p.errorf("probability %q", probField)
	}
	e.prob = prob
	if bowField != "" {
		bow, err := strconv.ParseFloat(bowField, 32)
		if err != nil {
			return arpaEntry{}, p.errorf("back-off %q", bowField)
		}
		e.bow = float32(bow)
	}
	for i, w := range words {
		e.ids[i] = p.dict.Add(w)
	}
	return e, nil
}

func parseLogProb(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	if v < LogProbFloor {
		v = LogProbFloor
	}
	return float32(v), nil
}

// SaveARPA writes the finalized table as ARPA text, decoding word ids
// through d.
func (t *Table) SaveARPA(w io.Writer, d *dict.Dictionary) error {
	if !t.finalized {
		return common.ErrNotFinalized
	}
	bw := bufio.NewWriterSize(w, 1<<16)
	fmt.Fprintln(bw, `\data\`)
	for l := 1; l <= t.maxlev; l++ {
		fmt.Fprintf(bw, "ngram %d=%d\n", l, t.levels[l].count)
	}
	for l := 1; l <= t.maxlev; l++ {
		fmt.Fprintf(bw, "\n\\%d-grams:\n", l)
		words := make([]string, 0, l)
		if err := t.writeARPALevel(bw, d, Node{}, l, words); err != nil {
			return err
		}
	}
	fmt.Fprintln(bw, "\n\\end\\")
	return bw.Flush()
}

func (t *Table) writeARPALevel(w *bufio.Writer, d *dict.Dictionary, parent Node, target int, words []string) error {
	for c := t.Children(parent); c.Next(); {
		word, ok := d.Decode(c.Word())
		if !ok {
			return fmt.Errorf("%w: level %d position %d word id %d not in dictionary", common.ErrCorrupt, c.Level(), c.Node().Pos, c.Word())
		}
		ws := append(words, word)
		if c.Level() < target {
			if err := t.writeARPALevel(w, d, c.Node(), target, ws); err != nil {
				return err
			}
			continue
		}
		w.WriteString(strconv.FormatFloat(c.LogProb(), 'g', -1, 32))
		w.WriteByte('\t')
		w.WriteString(strings.Join(ws, " "))
		if target < t.maxlev {
			w.WriteByte('\t')
			w.WriteString(strconv.FormatFloat(c.Backoff(), 'g', -1, 32))
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// SaveARPAFile atomically writes the table as ARPA text to path, gzip
// compressed when path ends in .gz.
func (t *Table) SaveARPAFile(path string, d *dict.Dictionary) error {
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		if !strings.HasSuffix(path, ".gz") {
			return t.SaveARPA(w, d)
		}
		zw := gzip.NewWriter(w)
		if err := t.SaveARPA(zw, d); err != nil {
			return err
		}
		return zw.Close()
	})
}
