package lmtable

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/dict"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/format"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/utils"
)

// Model is an opened model directory: the table, its vocabulary and the
// model.json metadata.
type Model struct {
	Table *Table
	Dict  *dict.Dictionary
	Meta  *format.Metadata
}

// SaveDir writes t and d to dir as model.lmt, vocab.txt and a sealed
// model.json.
func SaveDir(dir string, t *Table, d *dict.Dictionary) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := t.SaveBinary(filepath.Join(dir, common.FileModel)); err != nil {
		return err
	}
	if err := d.SaveFile(filepath.Join(dir, common.FileVocab)); err != nil {
		return err
	}
	meta := format.NewMetadata(t.header(), d.Len())
	return sealMetadata(dir, meta)
}

func sealMetadata(dir string, meta *format.Metadata) error {
	if err := meta.Seal(dir); err != nil {
		return fmt.Errorf("seal model dir: %w", err)
	}
	if err := meta.SaveToFile(filepath.Join(dir, common.FileMetadata)); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return utils.SyncDir(dir)
}

// OpenDir opens a model directory. With opts.VerifyChecksums the BLAKE3
// sums in model.json are checked before loading.
func OpenDir(dir string, opts *Options) (*Model, error) {
	o := opts.normalize()
	meta, err := format.LoadFromFile(filepath.Join(dir, common.FileMetadata))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	if o.VerifyChecksums {
		if err := meta.Verify(dir); err != nil {
			return nil, fmt.Errorf("open %s: %w", dir, err)
		}
	}
	d, err := dict.LoadFile(filepath.Join(dir, meta.Files.Vocab))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	t, err := LoadFile(filepath.Join(dir, meta.Files.Model), o)
	if err != nil {
		return nil, err
	}
	if t.maxlev != meta.Order || t.quantized != meta.Quantized {
		t.Close()
		return nil, fmt.Errorf("%w: model.json describes order %d quantized=%v, model has order %d quantized=%v",
			common.ErrCorrupt, meta.Order, meta.Quantized, t.maxlev, t.quantized)
	}
	o.Logger.Info("model opened", "dir", dir, "order", t.maxlev, "counts", t.Counts(), "vocab", d.Len())
	return &Model{Table: t, Dict: d, Meta: meta}, nil
}

// Close closes the table.
func (m *Model) Close() error { return m.Table.Close() }

// Encode maps words to ids. Words missing from the vocabulary map to <unk>
// when present, otherwise to an id no n-gram uses.
func (m *Model) Encode(words []string) []uint32 {
	ids, all := m.Dict.EncodeAll(words)
	if all {
		return ids
	}
	oov := uint32(m.Dict.Len())
	for i, w := range words {
		if _, ok := m.Dict.Encode(w); !ok {
			ids[i] = oov
		}
	}
	return ids
}

// ScoreText scores a whitespace-separated sentence wrapped in <s> and </s>.
func (m *Model) ScoreText(sentence string) float64 {
	words := append([]string{dict.SentenceStart}, strings.Fields(sentence)...)
	words = append(words, dict.SentenceEnd)
	return m.Table.ScoreSentence(m.Encode(words))
}

// FilterDir filters the model directory inDir to the given words and writes
// the result to outDir. Word ids are unchanged, so the vocabulary file is
// copied as is. The filtered model.json names the source model checksum as
// its parent.
func FilterDir(inDir, outDir string, words []string, opts *Options) error {
	o := opts.normalize()
	meta, err := format.LoadFromFile(filepath.Join(inDir, common.FileMetadata))
	if err != nil {
		return fmt.Errorf("filter %s: %w", inDir, err)
	}
	if o.VerifyChecksums {
		if err := meta.Verify(inDir); err != nil {
			return fmt.Errorf("filter %s: %w", inDir, err)
		}
	}
	d, err := dict.LoadFile(filepath.Join(inDir, meta.Files.Vocab))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	vocab := d.Subset(words)
	modelOut := filepath.Join(outDir, common.FileModel)
	if err := FilterFile(filepath.Join(inDir, meta.Files.Model), vocab, modelOut, o); err != nil {
		return err
	}
	if err := d.SaveFile(filepath.Join(outDir, common.FileVocab)); err != nil {
		return err
	}

	f, err := os.Open(modelOut)
	if err != nil {
		return err
	}
	h, err := format.ReadHeader(f)
	f.Close()
	if err != nil {
		return err
	}
	out := format.NewMetadata(h, d.Len())
	out.Parent = meta.Blake3[meta.Files.Model]
	if out.Parent == "" {
		if out.Parent, err = utils.ComputeBLAKE3File(filepath.Join(inDir, meta.Files.Model)); err != nil {
			return err
		}
	}
	return sealMetadata(outDir, out)
}
