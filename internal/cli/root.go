// Package cli implements the annotate operator command line.
package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/freeeve/chessgraph/annotator/internal/app"
	"github.com/freeeve/chessgraph/annotator/internal/config"
	"github.com/freeeve/chessgraph/annotator/internal/logx"
)

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// RootOptions holds flags shared by every command.
type RootOptions struct {
	ConfigPath string
	Database   string
	Stockfish  string
	LogLevel   string
	Format     string
	User       string

	// newApp builds the component graph; tests replace it.
	newApp func(cfg *config.Config, log zerolog.Logger) (*app.App, error)
}

// NewRootCommand creates the annotate command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{newApp: app.New})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate recorded chess games with engine evaluations",
		Long: `annotate imports PGN games, evaluates every position with a UCI engine
and stores a per-move quality label for each game.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return usageError("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	pf.StringVar(&opts.Database, "db", "", "SQLite database path (overrides config)")
	pf.StringVar(&opts.Stockfish, "stockfish", "", "engine executable (overrides config)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (overrides config)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.User, "user", "u", os.Getenv("ANNOTATOR_USER"), "acting user id")

	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newAnnotateCommand(opts))
	cmd.AddCommand(newBatchCommand(opts))
	cmd.AddCommand(newAnnotationsCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// open loads configuration, applies flag overrides and builds the app.
// Logs go to stderr so command output stays parseable.
func (o *RootOptions) open(stderr io.Writer) (*app.App, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Database != "" {
		cfg.DBPath = o.Database
	}
	if o.Stockfish != "" {
		cfg.Engine.Path = o.Stockfish
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}

	log := logx.NewLogger(logx.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: stderr})
	return o.newApp(cfg, log)
}

func (o *RootOptions) requireUser() error {
	if o.User == "" {
		return usageError("a user id is required (--user or ANNOTATOR_USER)")
	}
	return nil
}
