package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coreman2200/relive/internal/config"
	"github.com/coreman2200/relive/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relive:", err)
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags and what they resolve to.
type rootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	LogFile    string
	Records    string
	Audio      string

	cfg    *config.Config
	log    zerolog.Logger
	closer io.Closer
}

// quietAnnotation on a command drops console logging.
const quietAnnotation = "relive/quiet"

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "relive",
		Short: "Replay pinned memories in the order they happened",
		Long: `relive flies a map camera through a set of dated, geotagged records,
drawing the path between them, with an optional ambient soundtrack.

Configuration comes from the YAML file given by --config (defaults when it is
missing), then RELIVE_* environment variables (a .env file is read first),
then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.closer != nil {
				_ = opts.closer.Close()
			}
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "relive.yaml", "path to the YAML config")
	f.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with RELIVE_* overrides")
	f.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	f.StringVar(&opts.LogFile, "log-file", "", "also write JSON logs to this file, rotated")
	f.StringVarP(&opts.Records, "records", "r", "", "records file (YAML or JSON)")
	f.StringVar(&opts.Audio, "audio", "", "audio backend (none|null|ebiten)")

	cmd.AddCommand(newPlayCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newTimelineCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	return cmd
}

// resolve loads config with flags overriding env overriding file, then
// builds the logger.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(o.EnvFile); err != nil {
		return fmt.Errorf("env file: %w", err)
	}

	cfg, loadErr := config.Load(o.ConfigPath)
	if loadErr != nil {
		if !os.IsNotExist(loadErr) {
			return loadErr
		}
		cfg = config.Default()
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if f.Changed("log-file") {
		cfg.Log.File = o.LogFile
	}
	if f.Changed("records") {
		cfg.Records.Path = o.Records
	}
	if f.Changed("audio") {
		cfg.Audio.Backend = o.Audio
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lo := logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Console:    cmd.ErrOrStderr(),
	}
	if cmd.Annotations[quietAnnotation] == "true" {
		lo.Console = io.Discard
	}
	log, closer, err := logging.New(lo)
	if err != nil {
		return err
	}
	if loadErr != nil {
		log.Warn().Str("path", o.ConfigPath).Msg("config not found; using defaults")
	}
	o.cfg, o.log, o.closer = cfg, log, closer
	return nil
}
