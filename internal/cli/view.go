package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/qa-validator/internal/coverage"
	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/store"
)

func newSegmentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "List registered segments and the active selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			segs, err := a.session.Store().Segments(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Selected string          `json:"selected"`
				Segments []model.Segment `json:"segments"`
			}{a.session.Selected(), segs})
		},
	}
}

func newSelectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "select [NAME]",
		Short: "Choose the segment later commands show (default: All)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := model.AllSegments
			if len(args) == 1 {
				name = args[0]
			}
			a.session.Select(name)
			return printJSON(cmd.OutOrStdout(), map[string]string{"selected": a.session.Selected()})
		},
	}
}

// view returns the projection for the --segment flag, or for the session's
// active selection when the flag is unset.
func (a *app) view(cmd *cobra.Command) (*store.View, error) {
	if seg, _ := cmd.Flags().GetString("segment"); seg != "" {
		return a.session.Store().Filter(cmd.Context(), seg)
	}
	return a.session.View(cmd.Context())
}

func segmentFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().StringP("segment", "s", "", "Segment to show instead of the active selection")
	return cmd
}

type requirementRow struct {
	model.Requirement
	Tests int `json:"tests"`
}

func newRequirementsCmd(a *app) *cobra.Command {
	return segmentFlag(&cobra.Command{
		Use:     "requirements",
		Aliases: []string{"reqs"},
		Short:   "List requirements with the number of linked test cases",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.view(cmd)
			if err != nil {
				return err
			}
			counts := coverage.TestCounts(v.TestCases)
			rows := make([]requirementRow, len(v.Requirements))
			for i, r := range v.Requirements {
				rows[i] = requirementRow{Requirement: r, Tests: counts[r.ID]}
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	})
}

func newTestCasesCmd(a *app) *cobra.Command {
	return segmentFlag(&cobra.Command{
		Use:     "testcases",
		Aliases: []string{"tcs"},
		Short:   "List generated test cases",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.view(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v.TestCases)
		},
	})
}

func newTraceCmd(a *app) *cobra.Command {
	cmd := segmentFlag(&cobra.Command{
		Use:   "trace",
		Short: "Show the traceability matrix",
		Long:  "Show traceability links with the coverage summary, or with --graph the requirement to test case edges.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.view(cmd)
			if err != nil {
				return err
			}
			if graph, _ := cmd.Flags().GetBool("graph"); graph {
				return printJSON(cmd.OutOrStdout(), coverage.Connections(v.Traceability.Links))
			}
			return printJSON(cmd.OutOrStdout(), v.Traceability)
		},
	})
	cmd.Flags().Bool("graph", false, "Print requirement to test case edges")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	return segmentFlag(&cobra.Command{
		Use:   "summary",
		Short: "Show entity counts and coverage for the selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.view(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Segment      string                 `json:"segment"`
				Requirements int                    `json:"requirements"`
				TestCases    int                    `json:"testCases"`
				Summary      model.CoverageSummary  `json:"summary"`
				ByCoverage   map[model.Coverage]int `json:"byCoverage"`
			}{
				Segment:      v.Segment,
				Requirements: len(v.Requirements),
				TestCases:    len(v.TestCases),
				Summary:      v.Traceability.Summary,
				ByCoverage:   coverage.ByClass(v.Traceability.Links),
			})
		},
	})
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-segment statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.session.Store().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Dump the complete project data as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.session.Store().ExportAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard all segments and project data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Reset(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"status": "reset"})
		},
	}
}
