package project

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/qa-validator/internal/model"
	"github.com/rcliao/qa-validator/internal/store"
)

// Segment name length bounds, in runes, after trimming.
const (
	MinSegmentName = 2
	MaxSegmentName = 100
)

// AllowedExtensions lists the accepted document types, compared case-insensitively.
var AllowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
	".xlsx": true,
}

// ValidateSegmentName trims name and checks it against the length rules,
// the reserved selector and the already registered names.
func ValidateSegmentName(name string, registered []model.Segment) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return "", fmt.Errorf("%w: name is required", ErrInvalidSegment)
	case n < MinSegmentName:
		return "", fmt.Errorf("%w: must be at least %d characters", ErrInvalidSegment, MinSegmentName)
	case n > MaxSegmentName:
		return "", fmt.Errorf("%w: must be no more than %d characters", ErrInvalidSegment, MaxSegmentName)
	case name == model.AllSegments:
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidSegment, name)
	}
	for _, seg := range registered {
		if seg.Name == name {
			return "", fmt.Errorf("%w: %q", ErrDuplicateSegment, name)
		}
	}
	return name, nil
}

// ValidateFiles checks that at least one file is given and that every file
// has an allowed extension.
func ValidateFiles(files []string) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if !AllowedExtensions[ext] {
			return fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(f))
		}
	}
	return nil
}

func validateRequirementEdit(e store.RequirementEdit) error {
	if e.Title != nil && strings.TrimSpace(*e.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidEdit)
	}
	if e.Type != nil && !model.ValidRequirementTypes[*e.Type] {
		return fmt.Errorf("%w: unknown requirement type %q", ErrInvalidEdit, *e.Type)
	}
	if e.Statement != nil && strings.TrimSpace(*e.Statement) == "" {
		return fmt.Errorf("%w: statement must not be empty", ErrInvalidEdit)
	}
	return nil
}

func validateTestCaseEdit(e store.TestCaseEdit) error {
	if e.Title != nil && strings.TrimSpace(*e.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidEdit)
	}
	seen := make(map[int]bool, len(e.Steps))
	for _, s := range e.Steps {
		if s.Number < 1 {
			return fmt.Errorf("%w: step number %d must be positive", ErrInvalidEdit, s.Number)
		}
		if seen[s.Number] {
			return fmt.Errorf("%w: duplicate step number %d", ErrInvalidEdit, s.Number)
		}
		seen[s.Number] = true
		if strings.TrimSpace(s.Action) == "" || strings.TrimSpace(s.ExpectedResult) == "" {
			return fmt.Errorf("%w: step %d needs an action and an expected result", ErrInvalidEdit, s.Number)
		}
	}
	return nil
}
