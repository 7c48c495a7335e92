package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/pipeline"
	"github.com/rcliao/qa-validator/internal/project"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest --segment NAME FILE...",
		Short: "Process a document batch into a new segment",
		Long: "Run the processing pipeline over the given documents and merge the extracted " +
			"requirements, test cases and traceability links under a new segment. " +
			"Progress is written to stderr; Ctrl-C cancels the run and leaves the data untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			segment, _ := cmd.Flags().GetString("segment")
			quiet, _ := cmd.Flags().GetBool("quiet")
			return a.runIngest(cmd, segment, args, quiet)
		},
	}

	cmd.Flags().StringP("segment", "s", "", "Segment name (required)")
	cmd.Flags().BoolP("quiet", "q", false, "Do not print progress")
	cmd.MarkFlagRequired("segment")

	return cmd
}

type ingestResult struct {
	RunID    string          `json:"run_id"`
	Segment  string          `json:"segment"`
	State    pipeline.State  `json:"state"`
	Counts   *ingestCounts   `json:"counts,omitempty"`
	Coverage *coverageCounts `json:"coverage,omitempty"`
}

type ingestCounts struct {
	Requirements int `json:"requirements"`
	TestCases    int `json:"test_cases"`
	Links        int `json:"links"`
}

type coverageCounts struct {
	Total      int `json:"total"`
	Covered    int `json:"covered"`
	Percentage int `json:"percentage"`
}

func (a *app) runIngest(cmd *cobra.Command, segment string, files []string, quiet bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var obs pipeline.Observer
	if !quiet {
		obs = progressPrinter(cmd.ErrOrStderr())
	}

	h, err := a.session.Upload(ctx, project.UploadRequest{Segment: segment, Files: files}, obs)
	if err != nil {
		return err
	}

	var state pipeline.State
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		state, err = h.Wait(context.WithoutCancel(gctx))
		return err
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			h.Cancel()
			a.logger.Info("ingest interrupted", "run_id", h.ID())
		case <-h.Done():
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	res := ingestResult{RunID: h.ID(), Segment: strings.TrimSpace(segment), State: state}
	if state == pipeline.StateCompleted {
		if err := a.session.LastError(); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		v, err := a.session.Store().Filter(cmd.Context(), strings.TrimSpace(segment))
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		res.Counts = &ingestCounts{
			Requirements: len(v.Requirements),
			TestCases:    len(v.TestCases),
			Links:        len(v.Traceability.Links),
		}
		sum := v.Traceability.Summary
		res.Coverage = &coverageCounts{
			Total:      sum.TotalRequirements,
			Covered:    sum.CoveredRequirements,
			Percentage: sum.CoveragePercentage,
		}
	}
	return printJSON(cmd.OutOrStdout(), res)
}

// progressPrinter reports each newly active stage and every ten percent of
// progress as plain text lines.
func progressPrinter(w io.Writer) pipeline.Observer {
	active := -1
	decile := -1
	return pipeline.Callbacks{
		OnStages: func(stages []pipeline.StageState) {
			for i, s := range stages {
				if s.Status == pipeline.StageActive && i != active {
					active = i
					fmt.Fprintf(w, "[%d/%d] %s\n", i+1, len(stages), s.Name)
				}
			}
		},
		OnProgress: func(p float64) {
			if d := int(p) / 10; d > decile {
				decile = d
				fmt.Fprintf(w, "progress %3.0f%%\n", p)
			}
		},
		OnComplete: func(f model.Fragment) {
			fmt.Fprintf(w, "done: %d requirements, %d test cases, %d links\n",
				len(f.Requirements), len(f.TestCases), len(f.Links))
		},
	}
}
