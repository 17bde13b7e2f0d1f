package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/pkg/lmtable"
)

var (
	configPath string
	logLevel   string
	pprofAddr  string
	modelDir   string

	opts      *lmtable.Options
	logger    common.Logger
	stopPprof func()
)

var rootCmd = &cobra.Command{
	Use:           "lmtool",
	Short:         "lmtool manages packed n-gram language model tables",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := lmtable.ParseLogLevel(logLevel)
		if err != nil {
			return err
		}
		logger = lmtable.NewDefaultLoggerWithLevel(level)
		opts, err = loadOptions(configPath)
		if err != nil {
			return err
		}
		opts.Logger = logger
		if pprofAddr != "" {
			stopPprof, err = startPprof(pprofAddr, logger)
			if err != nil {
				return fmt.Errorf("pprof: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stopPprof != nil {
			stopPprof()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file with table options")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&pprofAddr, "pprof", "", "serve pprof on this address while the command runs, e.g. 127.0.0.1:6060")
	rootCmd.AddCommand(buildCmd, dumpCmd, filterCmd, scoreCmd, checkCmd, versionCmd)
}

// loadOptions returns the default options overlaid with the YAML file at path.
func loadOptions(path string) (*lmtable.Options, error) {
	o := lmtable.DefaultOptions()
	if path == "" {
		return o, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return o, nil
}

func withModel(cmd *cobra.Command) {
	cmd.Flags().StringVar(&modelDir, "model", "", "model directory")
	must(cmd.MarkFlagRequired("model"))
	must(cmd.MarkFlagDirname("model"))
}

func withOut(cmd *cobra.Command, p *string, usage string, required bool) {
	cmd.Flags().StringVar(p, "out", "", usage)
	if required {
		must(cmd.MarkFlagRequired("out"))
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the lmtable version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), lmtable.Version)
	},
}
