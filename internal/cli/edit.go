package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/store"
)

type editResult struct {
	ID      string `json:"id"`
	Updated bool   `json:"updated"`
}

func newEditReqCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit-req ID",
		Short: "Edit a requirement's title, type or statement",
		Long:  "Edit a requirement. A new title is also applied to its traceability link. Unknown ids are reported as not updated.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e store.RequirementEdit
			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				e.Title = &v
			}
			if cmd.Flags().Changed("type") {
				v, _ := cmd.Flags().GetString("type")
				e.Type = &v
			}
			if cmd.Flags().Changed("statement") {
				v, _ := cmd.Flags().GetString("statement")
				e.Statement = &v
			}

			found, err := a.session.EditRequirement(cmd.Context(), args[0], e)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), editResult{ID: args[0], Updated: found})
		},
	}

	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("type", "", "New type: Functional or Non-Functional")
	cmd.Flags().String("statement", "", "New requirement statement")

	return cmd
}

func newEditTCCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit-tc ID",
		Short: "Edit a test case's title or steps",
		Long: "Edit a test case. Each --step N:action|expected replaces step N or appends it when " +
			"no step has that number; the rest of the sequence is kept unless --clear-steps is given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var e store.TestCaseEdit
			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				e.Title = &v
			}

			stepArgs, _ := cmd.Flags().GetStringArray("step")
			clearSteps, _ := cmd.Flags().GetBool("clear-steps")
			if len(stepArgs) > 0 || clearSteps {
				var base []model.TestStep
				if !clearSteps {
					current, err := a.currentSteps(cmd.Context(), id)
					if err != nil {
						return err
					}
					base = current
				}
				steps, err := applySteps(base, stepArgs)
				if err != nil {
					return err
				}
				e.Steps = steps
			}

			found, err := a.session.EditTestCase(cmd.Context(), id, e)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), editResult{ID: id, Updated: found})
		},
	}

	cmd.Flags().String("title", "", "New title")
	cmd.Flags().StringArray("step", nil, "Step as N:action|expected (repeatable)")
	cmd.Flags().Bool("clear-steps", false, "Start from an empty step list")

	return cmd
}

func (a *app) currentSteps(ctx context.Context, id string) ([]model.TestStep, error) {
	v, err := a.session.Store().Filter(ctx, model.AllSegments)
	if err != nil {
		return nil, err
	}
	for _, tc := range v.TestCases {
		if tc.ID == id {
			return tc.Steps, nil
		}
	}
	return nil, nil
}

// applySteps returns a new sequence with every step argument applied to base.
func applySteps(base []model.TestStep, args []string) ([]model.TestStep, error) {
	steps := make([]model.TestStep, len(base), len(base)+len(args))
	copy(steps, base)

	for _, arg := range args {
		step, err := parseStep(arg)
		if err != nil {
			return nil, err
		}
		replaced := false
		for i := range steps {
			if steps[i].Number == step.Number {
				steps[i] = step
				replaced = true
				break
			}
		}
		if !replaced {
			steps = append(steps, step)
		}
	}
	return steps, nil
}

// parseStep parses "N:action|expected".
func parseStep(arg string) (model.TestStep, error) {
	num, rest, ok := strings.Cut(arg, ":")
	if !ok {
		return model.TestStep{}, fmt.Errorf("step %q: expected N:action|expected", arg)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return model.TestStep{}, fmt.Errorf("step %q: bad number: %w", arg, err)
	}
	action, expected, ok := strings.Cut(rest, "|")
	if !ok {
		return model.TestStep{}, fmt.Errorf("step %q: missing |expected result", arg)
	}
	return model.TestStep{
		Number:         n,
		Action:         strings.TrimSpace(action),
		ExpectedResult: strings.TrimSpace(expected),
	}, nil
}
