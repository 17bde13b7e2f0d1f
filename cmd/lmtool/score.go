package main

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CVDpl/go-lmtable/pkg/lmtable"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/dict"
)

var workers int

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Print the log10 probability of each input line",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		m, err := lmtable.OpenDir(modelDir, opts)
		if err != nil {
			return err
		}
		defer m.Close()

		var lines []string
		var sentences [][]uint32
		words := 0
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			toks := strings.Fields(sc.Text())
			lines = append(lines, sc.Text())
			ids := m.Encode(append(append([]string{dict.SentenceStart}, toks...), dict.SentenceEnd))
			sentences = append(sentences, ids)
			words += len(toks) + 1
		}
		if err := sc.Err(); err != nil {
			return err
		}

		scores, err := m.Table.ScoreBatch(cmd.Context(), sentences, workers)
		if err != nil {
			return err
		}
		out := bufio.NewWriter(cmd.OutOrStdout())
		var total float64
		for i, s := range scores {
			total += s
			fmt.Fprintf(out, "%.4f\t%s\n", s, lines[i])
		}
		if words > 0 {
			fmt.Fprintf(out, "# total=%.4f words=%d ppl=%.2f\n", total, words, math.Pow(10, -total/float64(words)))
		}
		m.Table.LogStats()
		return out.Flush()
	},
}

func init() {
	withModel(scoreCmd)
	scoreCmd.Flags().IntVar(&workers, "workers", runtime.GOMAXPROCS(0), "concurrent scoring goroutines")
}
