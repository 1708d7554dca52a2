package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"whatsbot/internal/backend"
	"whatsbot/internal/config"
	"whatsbot/internal/constants"
	"whatsbot/internal/metrics"
	"whatsbot/internal/models"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/format"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries the state shared by every command.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	envFile    string
	offline    bool
	jsonOutput bool
	verbose    bool
	timeout    time.Duration

	logger   *logrus.Logger
	cfg      *models.Config
	backend  botapi.Backend
	format   *format.Formatter
	registry *metrics.Registry
}

// NewRootCmd builds the botctl command tree writing to out and errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	return newRootCmd(&app{out: out, errOut: errOut})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "botctl",
		Short:         "Operator CLI for the WhatsApp bot backend",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&a.envFile, "env-file", ".env", "Optional .env file loaded before configuration")
	flags.BoolVar(&a.offline, "offline", false, "Use the built-in demo data instead of the backend")
	flags.BoolVar(&a.jsonOutput, "json", false, "Print raw JSON instead of formatted output")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.DurationVar(&a.timeout, "timeout", constants.DefaultHTTPTimeoutSec*time.Second, "Timeout for each command")

	root.AddCommand(
		newContactsCmd(a),
		newAIConfigCmd(a),
		newTrainingCmd(a),
		newAnalyticsCmd(a),
		newDashboardCmd(a),
		newBroadcastCmd(a),
		newTestAICmd(a),
		newHealthCmd(a),
	)
	return root
}

// setup loads configuration and builds the backend. Anything already set,
// as tests do, is kept.
func (a *app) setup() error {
	if a.logger == nil {
		a.logger = logrus.New()
		a.logger.SetOutput(a.errOut)
		a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if a.cfg == nil {
		if err := config.LoadDotEnv(a.envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		a.cfg = cfg
	}
	if a.offline {
		a.cfg.Mode = models.ModeOffline
	}

	if a.verbose {
		a.logger.SetLevel(logrus.DebugLevel)
	} else if level, err := logrus.ParseLevel(a.cfg.LogLevel); err == nil {
		// Routine request logs stay out of the way of command output.
		if level > logrus.WarnLevel {
			level = logrus.WarnLevel
		}
		a.logger.SetLevel(level)
	}

	if a.registry == nil {
		a.registry = metrics.NewRegistry()
	}
	if a.format == nil {
		a.format = format.New(format.WithLocale(format.ParseLocale(a.cfg.Locale)))
	}
	if a.backend == nil {
		bot, err := backend.New(a.cfg, a.logger, a.registry, a.verbose)
		if err != nil {
			return err
		}
		a.backend = bot
	}

	a.logger.WithField("mode", a.cfg.Mode).Debug("botctl ready")
	return nil
}

// context bounds one command by the configured timeout.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}
