package format

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/utils"
)

// Metadata represents model metadata stored in model.json.
type Metadata struct {
	Format        string            `json:"format"`
	Version       string            `json:"version"`
	Order         int               `json:"order"`
	Quantized     bool              `json:"quantized"`
	WordWidth     int               `json:"wordWidth"`
	Counts        []uint64          `json:"counts"`
	VocabSize     int               `json:"vocabSize"`
	Files         Files             `json:"files"`
	CreatedAtUnix int64             `json:"createdAtUnix"`
	Parent        string            `json:"parent,omitempty"`
	Blake3        map[string]string `json:"blake3,omitempty"`
}

// Files lists the files of a model directory.
type Files struct {
	Model string `json:"model"`
	Vocab string `json:"vocab"`
}

// NewMetadata creates metadata for a model described by h.
func NewMetadata(h *Header, vocabSize int) *Metadata {
	counts := make([]uint64, len(h.Counts))
	copy(counts, h.Counts)
	return &Metadata{
		Format:        "lmtable",
		Version:       "1.0.0",
		Order:         h.MaxLevel,
		Quantized:     h.Quantized,
		WordWidth:     h.WordWidth,
		Counts:        counts,
		VocabSize:     vocabSize,
		CreatedAtUnix: time.Now().Unix(),
		Files: Files{
			Model: common.FileModel,
			Vocab: common.FileVocab,
		},
	}
}

// Seal records BLAKE3 checksums of the model and vocabulary files in dir.
func (m *Metadata) Seal(dir string) error {
	sums, err := utils.ComputeBLAKE3Files(dir, m.Files.Model, m.Files.Vocab)
	if err != nil {
		return err
	}
	m.Blake3 = sums
	return nil
}

// Verify recomputes the recorded checksums.
func (m *Metadata) Verify(dir string) error {
	for rel, want := range m.Blake3 {
		got, err := utils.ComputeBLAKE3File(filepath.Join(dir, rel))
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}
		if got != want {
			return fmt.Errorf("%w: %s want=%s got=%s", common.ErrChecksum, rel, want, got)
		}
	}
	return nil
}

// SaveToFile saves metadata to a JSON file.
func (m *Metadata) SaveToFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	af, err := utils.NewAtomicFile(path)
	if err != nil {
		return err
	}
	defer af.Close()
	if _, err := af.Write(data); err != nil {
		return err
	}
	return af.Commit()
}

// LoadFromFile loads metadata from a JSON file.
func LoadFromFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", common.ErrCorrupt, path, err)
	}
	if m.Files.Model == "" {
		m.Files.Model = common.FileModel
	}
	if m.Files.Vocab == "" {
		m.Files.Vocab = common.FileVocab
	}
	return &m, nil
}
