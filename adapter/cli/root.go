package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/felixgeelhaar/icesync/internal/app"
	"github.com/felixgeelhaar/icesync/pkg/config"
	"github.com/felixgeelhaar/icesync/pkg/observability"
	"github.com/spf13/cobra"
)

var (
	envFile string
	verbose bool
	logger  *slog.Logger
)

// ContainerFactory builds the application container for commands that talk
// to Todoist.
type ContainerFactory func(ctx context.Context) (*app.Container, error)

var newContainer ContainerFactory = defaultContainer

type commandContext struct {
	startedAt time.Time
}

type commandContextKey struct{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "icesync",
	Short: "icesync - ICE scores for Todoist tasks",
	Long: `icesync reads Impact, Confidence and Ease labels on Todoist tasks,
derives an ICE score and writes it into the task title and priority.

Run "icesync serve" to react to Todoist webhooks or "icesync sync" for a
single pass.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		if logger == nil {
			SetLogger(newLogger())
		}

		ctx := observability.WithCorrelationID(cmd.Context(), "")
		cmd.SetContext(context.WithValue(ctx, commandContextKey{}, commandContext{startedAt: time.Now()}))
		getLogger().DebugContext(cmd.Context(), "command start", "command", cmd.CommandPath())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		getLogger().DebugContext(cmd.Context(), "command end",
			"command", cmd.CommandPath(),
			"duration_ms", time.Since(info.startedAt).Milliseconds(),
		)
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "config", "c", "", "env file to load before reading the environment (default .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// SetLogger sets the CLI logger and makes it the slog default.
func SetLogger(l *slog.Logger) {
	logger = l
	if l != nil {
		slog.SetDefault(l)
	}
}

func newLogger() *slog.Logger {
	level := os.Getenv("LOG_LEVEL")
	if verbose {
		level = string(observability.LogLevelDebug)
	}
	cfg := observability.LogConfigFor(os.Getenv("APP_ENV"), level, os.Getenv("LOG_FORMAT"))
	cfg.Version = Version
	return observability.NewLogger(cfg)
}

// SetContainerFactory replaces how commands build the container.
func SetContainerFactory(f ContainerFactory) {
	newContainer = f
}

func getLogger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func defaultContainer(ctx context.Context) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.NewContainer(ctx, cfg, getLogger())
}
