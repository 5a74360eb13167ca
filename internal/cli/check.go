package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/suricare/suricare/internal/scheduler"
)

// checkReport summarises a dry start of the service.
type checkReport struct {
	DSNType         string `json:"dsn_type"`
	Children        int    `json:"children"`
	KnowledgeChunks int    `json:"knowledge_chunks"`
	GuardrailRules  int    `json:"guardrail_prohibited_rules"`
	Online          bool   `json:"online"`
	SearchCache     bool   `json:"search_cache"`
	AlertsEnabled   bool   `json:"alerts_enabled"`
	NextAnalysis    string `json:"next_analysis,omitempty"`
}

func newCheckCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and wire every component without serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			children, err := a.st.ListAllChildren(ctx)
			if err != nil {
				return err
			}
			rep := checkReport{
				DSNType:         dsnType(cfg),
				Children:        len(children),
				KnowledgeChunks: a.index.Len(),
				GuardrailRules:  len(a.guard.Rules().Prohibited),
				Online:          a.online,
				SearchCache:     a.cached,
				AlertsEnabled:   cfg.Alerts.Enabled,
			}
			if cfg.Alerts.Enabled {
				loc, _ := cfg.Location()
				next, err := scheduler.NextRun(cfg.Alerts.Schedule, time.Now().In(loc))
				if err != nil {
					return err
				}
				rep.NextAnalysis = next.Format(time.RFC3339)
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
}
