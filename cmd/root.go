package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/taskflow/internal/config"
	"github.com/marcus/taskflow/internal/output"
	"github.com/marcus/taskflow/internal/store"
	"github.com/marcus/taskflow/internal/workflow"
)

var (
	version string

	// Populated by the root PersistentPreRunE for every subcommand.
	cfg    *config.Config
	logger *slog.Logger

	// logLevel is shared by every handler so serve can change it on reload.
	logLevel = new(slog.LevelVar)
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "Multi-tenant issue tracker server and operator CLI",
	Long: `taskflow - a multi-tenant issue tracker.

Run the JSON API with "taskflow serve". The remaining commands operate on the
database directly as the operator, for bootstrapping users, admins and keys.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		output.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}

Use "{{.CommandPath}} [command] --help" for more information about a command.
`
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (yaml, toml or json)")
	pf.String("db-driver", "", "database driver: "+strings.Join(store.Drivers(), ", "))
	pf.String("db-dsn", "", "database DSN (file path for sqlite)")
	pf.String("log-format", "", "log format: json or text")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.StringP("output", "o", "short", "output mode: short, long or json")
}

// loadConfig resolves configuration for the command being run and installs
// the process logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}
	lvl, err := config.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logLevel.Set(lvl)
	l, err := newLogger(cmd.ErrOrStderr(), c.Log.Format, logLevel)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	slog.SetDefault(l)
	return nil
}

func newLogger(w io.Writer, format string, level slog.Leveler) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q (valid: json, text)", format)
}

func outputMode(cmd *cobra.Command) (output.Mode, error) {
	s, _ := cmd.Flags().GetString("output")
	return output.ParseMode(s)
}

func storeOptions() store.Options {
	return store.Options{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		MaxOpenConns:   cfg.Database.MaxOpenConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}
}

func openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, storeOptions())
}

// openService opens the configured database and returns a workflow service
// on top of it. Callers close the store.
func openService(ctx context.Context) (*store.Store, *workflow.Service, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := workflow.New(st,
		workflow.WithLogger(logger),
		workflow.WithDeletePolicy(cfg.DeletePolicy()),
	)
	return st, svc, nil
}
