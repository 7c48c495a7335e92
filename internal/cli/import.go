package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/qa-validator/internal/fixture"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import --segment NAME FILE",
		Short: "Merge a fragment file into a new segment",
		Long: "Read a YAML or JSON fragment (requirements, testCases, links) and merge it under a " +
			"new segment without running the pipeline. Identifiers are namespaced like an ingest.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segment, _ := cmd.Flags().GetString("segment")

			f, err := fixture.LoadTemplate(args[0])
			if err != nil {
				return err
			}
			nf, err := a.session.Import(cmd.Context(), segment, f)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"imported":     args[0],
				"requirements": len(nf.Requirements),
				"test_cases":   len(nf.TestCases),
				"links":        len(nf.Links),
			})
		},
	}

	cmd.Flags().StringP("segment", "s", "", "Segment name (required)")
	cmd.MarkFlagRequired("segment")

	return cmd
}
