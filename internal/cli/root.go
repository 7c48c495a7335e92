// Package cli implements the qa-validator command tree and interactive shell.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rcliao/qa-validator/internal/config"
	"github.com/rcliao/qa-validator/internal/logging"
	"github.com/rcliao/qa-validator/internal/pipeline"
	"github.com/rcliao/qa-validator/internal/project"
	"github.com/rcliao/qa-validator/internal/store"
)

// app is the state shared by every command of one process.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg     config.Config
	logger  *slog.Logger
	store   *store.SQLiteStore
	session *project.Session
}

// NewRootCmd builds the top-level command. The session is created lazily
// before the first subcommand runs and lives until the process exits.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "qa-validator",
		Short: "Requirements, test cases and traceability for uploaded project documents",
		Long: "Ingest document batches into named segments, then browse and edit the extracted " +
			"requirements, generated test cases and the traceability matrix. Data lives in memory " +
			"for the lifetime of the process; use the shell command for an interactive session.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: $"+config.EnvConfig+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text or json")

	addCommands(root, a)
	root.AddCommand(newShellCmd(a))
	return root
}

// addCommands registers every session command on parent. Commands are built
// by constructors rather than registered in init() on a package-level root,
// because the shell builds a fresh tree per line so flag values never leak
// between lines.
func addCommands(parent *cobra.Command, a *app) {
	parent.AddCommand(
		newIngestCmd(a),
		newImportCmd(a),
		newSegmentsCmd(a),
		newSelectCmd(a),
		newRequirementsCmd(a),
		newTestCasesCmd(a),
		newTraceCmd(a),
		newSummaryCmd(a),
		newEditReqCmd(a),
		newEditTCCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
		newResetCmd(a),
	)
}

func (a *app) setup(logOut io.Writer) error {
	if a.session != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logging.Init(cfg.Level(), cfg.LogFormat, logOut)

	template, err := cfg.LoadTemplate()
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}

	st, err := store.NewSQLiteStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	a.cfg = cfg
	a.logger = logging.New("cli")
	a.store = st
	a.session = project.New(st, pipeline.New(cfg.PipelineConfig(logging.New("pipeline"))), template, logging.New("project"))
	a.session.Subscribe(func(c project.Change) {
		a.logger.Debug("session changed", "kind", c.Kind, "segment", c.Segment, "id", c.ID)
	})
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store, a.session = nil, nil
	return err
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
