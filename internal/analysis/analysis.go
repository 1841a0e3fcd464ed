// Package analysis maps a test failure category onto a canned diagnosis and
// a fixed block of suggested fixes.
package analysis

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

// Failure types with a dedicated diagnosis. Anything else gets the generic
// one, which quotes the error message.
const (
	FailureTimeout         = "timeout"
	FailureAssertion       = "assertion"
	FailureElementNotFound = "element_not_found"
)

// FailureTypes lists the failure types with a dedicated diagnosis
var FailureTypes = []string{FailureTimeout, FailureAssertion, FailureElementNotFound}

//go:embed templates/*.md
var templateFS embed.FS

var templates = template.Must(template.New("analysis").ParseFS(templateFS, "templates/*.md"))

// Report is the outcome of a failure analysis
type Report struct {
	TestFile    string
	FailureType string
	Analysis    string
	Suggestions string
}

// Markdown renders the report as returned to callers
func (r Report) Markdown() string {
	return fmt.Sprintf("## Failure Analysis for %s\n\n%s\n\n## Suggested Fixes\n\n%s",
		r.TestFile, r.Analysis, r.Suggestions)
}

// AnalyzeFailure builds the report for one failed test
func AnalyzeFailure(testFile, failureType, errorMessage string) (Report, error) {
	name := "generic.md"
	switch failureType {
	case FailureTimeout, FailureAssertion, FailureElementNotFound:
		name = failureType + ".md"
	}

	diagnosis, err := render(name, errorMessage)
	if err != nil {
		return Report{}, err
	}
	suggestions, err := render("suggestions.md", errorMessage)
	if err != nil {
		return Report{}, err
	}
	return Report{
		TestFile:    testFile,
		FailureType: failureType,
		Analysis:    diagnosis,
		Suggestions: suggestions,
	}, nil
}

func render(name, errorMessage string) (string, error) {
	var buf bytes.Buffer
	data := struct{ ErrorMessage string }{errorMessage}
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
