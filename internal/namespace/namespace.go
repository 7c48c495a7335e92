// Package namespace prefixes fragment identifiers so that segments ingested
// into the same store never collide.
package namespace

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rcliao/qa-validator/internal/model"
)

// Prefix returns the identifier prefix for a segment and its upload ordinal:
// the uppercase initial of every whitespace-separated word, the ordinal, and
// an underscore. "Payment Module", 3 yields "PM3_".
func Prefix(name string, ordinal int) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
	}
	b.WriteString(strconv.Itoa(ordinal))
	b.WriteByte('_')
	return b.String()
}

// Apply returns a copy of f with every identifier and identifier reference
// prefixed and every entity tagged with segment. f itself is left untouched.
func Apply(f model.Fragment, prefix, segment string) model.Fragment {
	out := model.Fragment{
		Requirements: make([]model.Requirement, len(f.Requirements)),
		TestCases:    make([]model.TestCase, len(f.TestCases)),
		Links:        make([]model.TraceabilityLink, len(f.Links)),
	}

	for i, r := range f.Requirements {
		r.ID = prefix + r.ID
		r.Segment = segment
		out.Requirements[i] = r
	}

	for i, tc := range f.TestCases {
		tc.ID = prefix + tc.ID
		tc.LinkedRequirements = prefixAll(prefix, tc.LinkedRequirements)
		if tc.Steps != nil {
			steps := make([]model.TestStep, len(tc.Steps))
			copy(steps, tc.Steps)
			tc.Steps = steps
		}
		tc.Segment = segment
		out.TestCases[i] = tc
	}

	for i, l := range f.Links {
		l.RequirementID = prefix + l.RequirementID
		l.LinkedTestCases = prefixAll(prefix, l.LinkedTestCases)
		l.Segment = segment
		out.Links[i] = l
	}

	return out
}

func prefixAll(prefix string, ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = prefix + id
	}
	return out
}
