package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/suricare/suricare/internal/models"
)

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var patternsOnly bool
	cmd := &cobra.Command{
		Use:   "analyze [child-id]",
		Short: "Run the alert analysis now",
		Long:  "Runs the weekly alert analysis immediately, for one child or for every child when no id is given. With --patterns the trend report is printed and no alerts are stored.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var childID int64
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid child id %q", args[0])
				}
				childID = id
			} else if patternsOnly {
				return errors.New("--patterns needs a child id")
			}

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

			out := cmd.OutOrStdout()
			if childID == 0 {
				res, err := a.alerts.RunAll(ctx)
				if err != nil {
					return fmt.Errorf("analyze children: %w", err)
				}
				return printJSON(out, res)
			}
			if _, err := a.st.GetChild(ctx, childID); err != nil {
				return fmt.Errorf("child %d: %w", childID, err)
			}
			if patternsOnly {
				return printJSON(out, a.analyzer.AnalyzeAll(ctx, childID))
			}
			list, err := a.alerts.RunChild(ctx, childID)
			if err != nil {
				return fmt.Errorf("analyze child %d: %w", childID, err)
			}
			if list == nil {
				list = []models.HealthAlert{}
			}
			return printJSON(out, list)
		},
	}
	cmd.Flags().BoolVar(&patternsOnly, "patterns", false, "print the trend report instead of generating alerts")
	return cmd
}
