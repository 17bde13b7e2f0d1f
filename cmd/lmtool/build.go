package main

import (
	"github.com/spf13/cobra"

	"github.com/CVDpl/go-lmtable/pkg/lmtable"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/dict"
)

var (
	arpaPath string
	quantize bool
	centers  int
	buildOut string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a model directory from an ARPA file (optionally gzipped)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("centers") {
			opts.CodebookCenters = centers
		}
		d := dict.New()
		t, err := lmtable.LoadARPAFile(arpaPath, d, quantize, opts)
		if err != nil {
			return err
		}
		defer t.Close()
		if err := lmtable.SaveDir(buildOut, t, d); err != nil {
			return err
		}
		logger.Info("model built", "arpa", arpaPath, "dir", buildOut, "counts", t.Counts(), "vocab", d.Len(), "quantized", quantize)
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVar(&arpaPath, "arpa", "", "ARPA model file")
	must(buildCmd.MarkFlagRequired("arpa"))
	buildCmd.Flags().BoolVar(&quantize, "quantize", false, "store probabilities and back-offs as 1-byte codebook classes")
	buildCmd.Flags().IntVar(&centers, "centers", 256, "codebook centers per level when quantizing")
	withOut(buildCmd, &buildOut, "output model directory", true)
}
