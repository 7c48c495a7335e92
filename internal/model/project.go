// Package model defines the core project data types.
package model

// AllSegments is the selector that matches every segment.
const AllSegments = "All"

// Requirement is a single extracted requirement.
type Requirement struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Statement string `json:"description" yaml:"description"`
	Type      string `json:"type" yaml:"type"`
	Priority  string `json:"priority" yaml:"priority"`
	Status    string `json:"status" yaml:"status"`
	Segment   string `json:"segment" yaml:"segment"`
}

// TestStep is one step of a test case. Number is stable and never renumbered.
type TestStep struct {
	Number         int    `json:"stepNumber" yaml:"stepNumber"`
	Action         string `json:"action" yaml:"action"`
	ExpectedResult string `json:"expectedResult" yaml:"expectedResult"`
}

// TestCase is a generated test case linked to one or more requirements.
type TestCase struct {
	ID                 string     `json:"id" yaml:"id"`
	Title              string     `json:"title" yaml:"title"`
	Description        string     `json:"description" yaml:"description"`
	Type               string     `json:"type" yaml:"type"`
	Priority           string     `json:"priority" yaml:"priority"`
	Status             string     `json:"status" yaml:"status"`
	Steps              []TestStep `json:"steps" yaml:"steps"`
	LinkedRequirements []string   `json:"linkedRequirements" yaml:"linkedRequirements"`
	Segment            string     `json:"segment" yaml:"segment"`
}

// Coverage classifies how fully a requirement is exercised by its test cases.
type Coverage string

const (
	CoverageCovered   Coverage = "Covered"
	CoveragePartial   Coverage = "Partial"
	CoverageUncovered Coverage = "Uncovered"
)

// TraceabilityLink maps a requirement to its test cases. Coverage is fixed at
// ingestion time; only RequirementTitle follows later requirement edits.
type TraceabilityLink struct {
	RequirementID    string   `json:"requirementId" yaml:"requirementId"`
	RequirementTitle string   `json:"requirementTitle" yaml:"requirementTitle"`
	LinkedTestCases  []string `json:"linkedTestCases" yaml:"linkedTestCases"`
	Coverage         Coverage `json:"coverage" yaml:"coverage"`
	Segment          string   `json:"segment" yaml:"segment"`
}

// CoverageSummary is derived from a set of links and never stored.
type CoverageSummary struct {
	TotalRequirements   int `json:"totalRequirements"`
	CoveredRequirements int `json:"coveredRequirements"`
	CoveragePercentage  int `json:"coveragePercentage"`
}

// Fragment is the dataset produced by one ingestion run.
type Fragment struct {
	Requirements []Requirement      `json:"requirements" yaml:"requirements"`
	TestCases    []TestCase         `json:"testCases" yaml:"testCases"`
	Links        []TraceabilityLink `json:"links" yaml:"links"`
}

// Segment is an entry of the segment registry.
type Segment struct {
	Name    string `json:"name"`
	Ordinal int    `json:"ordinal"`
}

// ValidRequirementTypes are the allowed requirement types.
var ValidRequirementTypes = map[string]bool{
	"Functional":     true,
	"Non-Functional": true,
}

// ValidRequirementStatuses are the allowed requirement statuses.
var ValidRequirementStatuses = map[string]bool{
	"Approved":  true,
	"Draft":     true,
	"In Review": true,
}

// ValidTestCaseTypes are the allowed test case types.
var ValidTestCaseTypes = map[string]bool{
	"Positive": true,
	"Negative": true,
	"Boundary": true,
}

// ValidTestCaseStatuses are the allowed test case statuses.
var ValidTestCaseStatuses = map[string]bool{
	"Ready":     true,
	"Draft":     true,
	"In Review": true,
}

// ValidPriorities are the allowed priority levels.
var ValidPriorities = map[string]bool{
	"High":   true,
	"Medium": true,
	"Low":    true,
}

// ValidCoverages are the allowed coverage classifications.
var ValidCoverages = map[Coverage]bool{
	CoverageCovered:   true,
	CoveragePartial:   true,
	CoverageUncovered: true,
}
