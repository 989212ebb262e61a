package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/vibe-varseq/internal/genome"
	"github.com/inodb/vibe-varseq/internal/model"
)

const configName = ".vibe-varseq.yaml"

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vibe-varseq",
		Short: "Variant effect prediction with a sequence-to-function model",
		Long: `vibe-varseq retrieves reference windows around variants, substitutes the
effect and non-effect alleles, and runs both sequences through a sequence
model. Model outputs are cached by sequence content, so repeated and
interrupted runs only compute what is missing.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			l, err := newLogger(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/"+configName+")")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log per-variant diagnostics")
	cmd.PersistentFlags().String("cache-dir", "", "Cache directory (default: ~/.vibe-varseq/cache)")
	cmd.PersistentFlags().String("genome", "", "Genome identifier (default: hg19)")
	viper.BindPFlag("cache.dir", cmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("genome", cmd.PersistentFlags().Lookup("genome"))

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newCompareCmd())
	cmd.AddCommand(newLookupCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

func initConfig() error {
	home, _ := os.UserHomeDir()

	viper.SetDefault("genome", "hg19")
	viper.SetDefault("genomes.hg19", genome.UCSCPrefix+"hg19")
	viper.SetDefault("genomes.hg38", genome.UCSCPrefix+"hg38")
	viper.SetDefault("cache.dir", filepath.Join(home, ".vibe-varseq", "cache"))
	viper.SetDefault("window", genome.DefaultWindow)
	viper.SetDefault("model.timeout", model.DefaultTimeout)
	viper.SetDefault("ucsc.url", genome.DefaultUCSCBaseURL)

	viper.SetEnvPrefix("VARSEQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	path := cfgFile
	if path == "" {
		path = filepath.Join(home, configName)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	cfg.DisableCaller = !verbose
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	return cfg.Build()
}

func syncLogger() {
	_ = logger.Sync()
}

// cacheDirs returns the DNA window and model result cache directories.
func cacheDirs() (dna, results string) {
	dir := viper.GetString("cache.dir")
	return filepath.Join(dir, "dna"), filepath.Join(dir, "model")
}

// openGenomes builds the genome store from the genomes.* config keys.
func openGenomes() *genome.Store {
	store := genome.NewStore(viper.GetStringMapString("genomes"))
	store.SetLogger(logger)
	store.SetUCSCBaseURL(viper.GetString("ucsc.url"))
	return store
}
