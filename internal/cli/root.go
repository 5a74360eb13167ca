// Package cli implements the suricare command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/suricare/suricare/internal/config"
)

// globalFlags are shared by every subcommand. Empty values leave the loaded configuration alone.
type globalFlags struct {
	configPath string
	logLevel   string
	stateDir   string
	dbDSN      string
	apiAddr    string
}

// NewRootCmd builds the top-level command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "suricare",
		Short:         "Child health tracking backend with an AI assistant",
		Long:          "SuriCare records child health events, summarises trends, raises weekly alerts and answers carer questions through a guarded AI assistant.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "TOML config file (default: $SURICARE_CONFIG)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides $SURICARE_LOG_LEVEL)")
	pf.StringVar(&g.stateDir, "state-dir", "", "state directory (overrides $SURICARE_STATE_DIR)")
	pf.StringVarP(&g.dbDSN, "db", "d", "", "database DSN or SQLite path (overrides $DATABASE_URL)")
	pf.StringVar(&g.apiAddr, "api-addr", "", "API listen address (overrides $API_ADDR)")

	root.AddCommand(
		newServeCmd(g),
		newAnalyzeCmd(g),
		newCheckCmd(g),
		newRulesCmd(),
	)
	return root
}

// load reads the configuration, applies flag overrides, validates it and installs the
// default logger at the configured level.
func (g *globalFlags) load(logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.stateDir != "" {
		cfg.StateDir = g.stateDir
	}
	if g.dbDSN != "" {
		cfg.DatabaseURL = g.dbDSN
	}
	if g.apiAddr != "" {
		cfg.APIAddr = g.apiAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))
	slog.Debug("globalFlags.load: configuration ready", "state_dir", cfg.StateDir, "dsn_type", dsnType(cfg),
		"api_addr", cfg.APIAddr, "alerts", cfg.Alerts.Enabled, "openai_key_set", cfg.OpenAI.APIKey != "")
	return cfg, nil
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
