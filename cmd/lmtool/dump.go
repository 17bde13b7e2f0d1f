package main

import (
	"github.com/spf13/cobra"

	"github.com/CVDpl/go-lmtable/pkg/lmtable"
)

var dumpOut string

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write a model directory as ARPA text",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := lmtable.OpenDir(modelDir, opts)
		if err != nil {
			return err
		}
		defer m.Close()
		if dumpOut == "" {
			return m.Table.SaveARPA(cmd.OutOrStdout(), m.Dict)
		}
		return m.Table.SaveARPAFile(dumpOut, m.Dict)
	},
}

func init() {
	withModel(dumpCmd)
	withOut(dumpCmd, &dumpOut, "output ARPA file, gzipped when it ends in .gz (default stdout)", false)
}
