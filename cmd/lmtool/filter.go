package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/pkg/lmtable"
)

var (
	vocabPath string
	bufferArg string
	inMemory  bool
	filterOut string
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Restrict a model directory to the words of a vocabulary file",
	RunE: func(cmd *cobra.Command, args []string) error {
		words, err := readWords(vocabPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("buffer") {
			var size datasize.ByteSize
			if err := size.UnmarshalText([]byte(bufferArg)); err != nil {
				return fmt.Errorf("--buffer: %w", err)
			}
			// widest record of the default layout
			rec := lmtable.RecordSize(lmtable.Internal, common.DefaultWordWidth)
			opts.DiskBufferRecords = max(1, int(size.Bytes()/uint64(rec)))
			logger.Debug("disk filter window", "buffer", size.HumanReadable(), "records", opts.DiskBufferRecords)
		}
		if inMemory {
			return filterInMemory(words)
		}
		return lmtable.FilterDir(modelDir, filterOut, words, opts)
	},
}

func filterInMemory(words []string) error {
	m, err := lmtable.OpenDir(modelDir, opts)
	if err != nil {
		return err
	}
	defer m.Close()
	f, err := m.Table.Filter(m.Dict.Subset(words))
	if err != nil {
		return err
	}
	return lmtable.SaveDir(filterOut, f, m.Dict)
}

// readWords returns the whitespace-separated words of path.
func readWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		words = append(words, strings.Fields(sc.Text())...)
	}
	return words, sc.Err()
}

func init() {
	withModel(filterCmd)
	withOut(filterCmd, &filterOut, "output model directory", true)
	filterCmd.Flags().StringVar(&vocabPath, "vocab", "", "file of words to keep")
	must(filterCmd.MarkFlagRequired("vocab"))
	filterCmd.Flags().StringVar(&bufferArg, "buffer", "1MB", "disk window per level, e.g. 64MB")
	filterCmd.Flags().BoolVar(&inMemory, "in-memory", false, "load the model instead of paging it from disk")
}
