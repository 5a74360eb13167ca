package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suricare/suricare/internal/guardrail"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect guardrail rule sets",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate <file>",
			Short: "Check a guardrail rule file against the schema and compile its patterns",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rs, err := guardrail.LoadRules(args[0])
				if err != nil {
					return err
				}
				if _, err := guardrail.New(rs); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d prohibited patterns, %d diagnostic terms, %d emergency keywords\n",
					len(rs.Prohibited), len(rs.DiagnosticTerms.Terms), len(rs.Emergency.Keywords))
				return err
			},
		},
		&cobra.Command{
			Use:   "default",
			Short: "Print the built-in rule set",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := cmd.OutOrStdout().Write(guardrail.DefaultRulesYAML())
				return err
			},
		},
	)
	return cmd
}
