package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gyeh/pricepanel/internal/config"
	"github.com/gyeh/pricepanel/internal/exitcode"
	"github.com/gyeh/pricepanel/internal/logging"
	"github.com/gyeh/pricepanel/internal/pipeline"
	"github.com/gyeh/pricepanel/internal/progress"
)

var (
	v       = config.NewViper()
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "pricepanel",
	Short: "Hospital price transparency panel builder",
	Long: "Extracts target-code charge rows from a partitioned Parquet lake or a paginated remote source,\n" +
		"then unpivots, cleans, classifies and assembles them into a hospital × service × payer panel.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file (flags and PRICEPANEL_* env override it)")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("targets-file", "", "YAML target code list (default: embedded list)")
	pf.String("work-dir", "work", "Directory for intermediate extract files")
	pf.String("out-dir", "out", "Directory for CSV outputs")
	pf.Bool("no-progress", false, "Disable progress bars even on a terminal")
	pf.String("pushgateway-url", "", "Prometheus Pushgateway URL for run metrics")
}

// setup merges flags, env and the config file, and builds the logger and
// progress manager for a command.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger) {
	if err := bindFlags(v, cmd); err != nil {
		fatal(zerolog.New(os.Stderr), "flag binding failed", err, exitcode.UsageError)
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		fatal(logging.Setup("text", "info"), "config validation failed", err, exitcode.UsageError)
	}
	return cfg, logging.Setup(cfg.LogFormat, cfg.LogLevel)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return v.BindPFlags(cmd.InheritedFlags())
}

func newRunner(cfg *config.Config, log zerolog.Logger) *pipeline.Runner {
	interactive := !cfg.NoProgress && isatty.IsTerminal(os.Stderr.Fd())
	return pipeline.NewRunner(log, cfg, progress.New(log, interactive))
}

// signalContext is cancelled on SIGINT/SIGTERM so loops stop between units.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitFor maps a pipeline failure to its process exit code.
func exitFor(err error) int {
	var pe *pipeline.PipelineError
	if !errors.As(err, &pe) {
		return exitcode.BuildError
	}
	switch pe.Phase {
	case pipeline.PhasePrecondition:
		return exitcode.PreconditionError
	case pipeline.PhaseConnect:
		return exitcode.SourceConnError
	case pipeline.PhaseExtract:
		return exitcode.ExtractError
	case pipeline.PhasePublish:
		return exitcode.PublishError
	default:
		return exitcode.BuildError
	}
}

func fail(log zerolog.Logger, msg string, err error) {
	code := exitFor(err)
	ev := log.Error()
	var pe *pipeline.PipelineError
	if errors.As(err, &pe) {
		ev = ev.Str("phase", pe.Phase)
		err = pe.Err
	}
	ev.Err(err).Msg(msg)
	os.Exit(code)
}

func fatal(log zerolog.Logger, msg string, err error, code int) {
	log.Error().Err(err).Msg(msg)
	os.Exit(code)
}
