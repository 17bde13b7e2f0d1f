// Package dict maps word strings to the integer ids stored in n-gram tables.
//
// Words are NFC-normalized before lookup so that canonically equivalent
// spellings share one id. Ids are dense and assigned in insertion order.
package dict

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/text/unicode/norm"

	"github.com/CVDpl/go-lmtable/pkg/lmtable/utils"
)

// Well-known tokens.
const (
	SentenceStart = "<s>"
	SentenceEnd   = "</s>"
	Unknown       = "<unk>"
)

// Dictionary is a bidirectional word <-> id map. It is not safe for
// concurrent mutation; concurrent reads after construction are safe.
type Dictionary struct {
	words []string
	ids   map[string]uint32
}

// New creates an empty dictionary.
func New() *Dictionary {
	return &Dictionary{ids: make(map[string]uint32)}
}

// Add returns the id of word, assigning the next free id if it is new.
func (d *Dictionary) Add(word string) uint32 {
	w := norm.NFC.String(word)
	if id, ok := d.ids[w]; ok {
		return id
	}
	id := uint32(len(d.words))
	d.words = append(d.words, w)
	d.ids[w] = id
	return id
}

// Encode returns the id of word.
func (d *Dictionary) Encode(word string) (uint32, bool) {
	id, ok := d.ids[norm.NFC.String(word)]
	return id, ok
}

// EncodeAll maps words to ids. Unknown words map to the id of <unk> when the
// dictionary has one; otherwise the second result is false.
func (d *Dictionary) EncodeAll(words []string) ([]uint32, bool) {
	unk, hasUnk := d.ids[Unknown]
	out := make([]uint32, len(words))
	all := true
	for i, w := range words {
		id, ok := d.Encode(w)
		if !ok {
			if !hasUnk {
				all = false
				continue
			}
			id = unk
		}
		out[i] = id
	}
	return out, all
}

// Decode returns the word with the given id.
func (d *Dictionary) Decode(id uint32) (string, bool) {
	if int(id) >= len(d.words) {
		return "", false
	}
	return d.words[id], true
}

// Len returns the number of words.
func (d *Dictionary) Len() int { return len(d.words) }

// Words returns the words in id order.
func (d *Dictionary) Words() []string {
	out := make([]string, len(d.words))
	copy(out, d.words)
	return out
}

// Subset returns the ids of the given words that are present in d.
func (d *Dictionary) Subset(words []string) *roaring.Bitmap {
	bm := roaring.New()
	for _, w := range words {
		if id, ok := d.Encode(w); ok {
			bm.Add(id)
		}
	}
	return bm
}

// WriteTo writes one word per line in id order.
func (d *Dictionary) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, word := range d.words {
		m, err := bw.WriteString(word)
		n += int64(m)
		if err != nil {
			return n, err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}

// Read parses a dictionary written by WriteTo.
func Read(r io.Reader) (*Dictionary, error) {
	d := New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		w := strings.TrimRight(sc.Text(), "\r")
		if w == "" {
			return nil, fmt.Errorf("vocabulary line %d: empty word", line)
		}
		if id := d.Add(w); int(id) != line-1 {
			return nil, fmt.Errorf("vocabulary line %d: duplicate word %q", line, w)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadFile reads a dictionary file.
func LoadFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// SaveFile atomically writes the dictionary to path.
func (d *Dictionary) SaveFile(path string) error {
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := d.WriteTo(w)
		return err
	})
}
