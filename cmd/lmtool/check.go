package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CVDpl/go-lmtable/pkg/lmtable"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify checksums and structure of a model directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts.VerifyChecksums = true
		opts.VerifyOnLoad = true
		m, err := lmtable.OpenDir(modelDir, opts)
		if err != nil {
			return err
		}
		defer m.Close()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "order=%d quantized=%v vocab=%d\n", m.Table.MaxLevel(), m.Table.Quantized(), m.Dict.Len())
		for l := 1; l <= m.Table.MaxLevel(); l++ {
			lay := m.Table.Layout(l)
			fmt.Fprintf(w, "level %d: %s records=%d record_bytes=%d\n", l, lay.Type, m.Table.Count(l), lay.Size)
		}
		if m.Meta.Parent != "" {
			fmt.Fprintf(w, "filtered from %s\n", m.Meta.Parent)
		}
		fmt.Fprintln(w, "OK")
		return nil
	},
}

func init() {
	withModel(checkCmd)
}
