// Package cli wires the sayuctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"sayu-ops/internal/config"
	"sayu-ops/internal/utils"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ErrPartial marks a command that finished but left some records behind.
var ErrPartial = errors.New("completed with failures")

const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitPartial = 2
)

type app struct {
	configPath string
	envFile    string
	logLevel   string
	pretty     bool
	noLedger   bool

	cfg    *config.Config
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sayuctl",
		Short: "SAYU data operations: migrate, verify, probe, import and audit",
		Long: `sayuctl moves SAYU data from the legacy Railway database to Supabase and keeps
it healthy afterwards.

Connection settings come from the environment (optionally a .env file); what each
command does comes from the YAML plan (sayu-ops.yaml by default).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to the YAML plan (default sayu-ops.yaml when present)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.pretty, "pretty", false, "human readable log output")
	flags.BoolVar(&a.noLedger, "no-ledger", false, "do not record the run in ops_runs")

	root.AddCommand(
		newMigrateCommand(a),
		newVerifyCommand(a),
		newSchemaCommand(a),
		newCDNCommand(a),
		newMetCommand(a),
		newExhibitionsCommand(a),
		newAuditCommand(a),
		newServeCommand(a),
		newTokenCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Log.Pretty = a.pretty
	}
	a.cfg = cfg
	a.log = utils.NewLoggerTo(a.stderr, cfg.Log.Level, cfg.Log.Pretty || isTerminal(a.stderr))

	if problems := config.Validate(cfg); len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// Execute runs the command tree and maps the outcome to a process exit code.
func Execute(ctx context.Context, args []string) int {
	a := &app{stdout: os.Stdout, stderr: os.Stderr, log: zerolog.New(os.Stderr)}
	root := newRootCommand(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	code := ExitCode(err)
	switch code {
	case ExitPartial:
		a.log.Warn().Err(err).Msg("finished with failures")
	case ExitFailed:
		a.log.Error().Err(err).Msg("command failed")
	}
	return code
}

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPartial):
		return ExitPartial
	default:
		return ExitFailed
	}
}
