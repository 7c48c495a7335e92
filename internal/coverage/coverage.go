// Package coverage derives traceability statistics from links and test cases.
// Everything here is a pure function of its input.
package coverage

import "github.com/rcliao/qa-validator/internal/model"

// Summarize counts links whose coverage is Covered or Partial and reports the
// percentage rounded half-up. An empty input yields the zero summary.
func Summarize(links []model.TraceabilityLink) model.CoverageSummary {
	total := len(links)
	if total == 0 {
		return model.CoverageSummary{}
	}

	covered := 0
	for _, l := range links {
		if IsCovered(l.Coverage) {
			covered++
		}
	}

	return model.CoverageSummary{
		TotalRequirements:   total,
		CoveredRequirements: covered,
		CoveragePercentage:  percent(covered, total),
	}
}

// IsCovered reports whether c counts toward the covered total.
func IsCovered(c model.Coverage) bool {
	return c == model.CoverageCovered || c == model.CoveragePartial
}

// percent returns round-half-up(part/total*100) without floating point.
func percent(part, total int) int {
	return (200*part + total) / (2 * total)
}

// ByClass counts links per coverage classification.
func ByClass(links []model.TraceabilityLink) map[model.Coverage]int {
	out := map[model.Coverage]int{
		model.CoverageCovered:   0,
		model.CoveragePartial:   0,
		model.CoverageUncovered: 0,
	}
	for _, l := range links {
		out[l.Coverage]++
	}
	return out
}

// TestCounts maps each requirement id to the number of test cases linking it.
func TestCounts(testCases []model.TestCase) map[string]int {
	out := make(map[string]int)
	for _, tc := range testCases {
		for _, rid := range tc.LinkedRequirements {
			out[rid]++
		}
	}
	return out
}

// Connection is one requirement-to-test-case edge of the traceability graph.
type Connection struct {
	RequirementID string         `json:"requirementId"`
	TestCaseID    string         `json:"testCaseId"`
	Coverage      model.Coverage `json:"coverage"`
}

// Connections flattens links into graph edges, in link order.
func Connections(links []model.TraceabilityLink) []Connection {
	var out []Connection
	for _, l := range links {
		for _, tcID := range l.LinkedTestCases {
			out = append(out, Connection{
				RequirementID: l.RequirementID,
				TestCaseID:    tcID,
				Coverage:      l.Coverage,
			})
		}
	}
	return out
}
