package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// IssueKind classifies a blocking problem.
type IssueKind string

const (
	IssueMissingOpening      IssueKind = "missing_opening"
	IssueMissingClosing      IssueKind = "missing_closing"
	IssueNegativeClosing     IssueKind = "negative_closing"
	IssueNoRecipe            IssueKind = "no_recipe"
	IssueMissingPrimary      IssueKind = "missing_primary"
	IssueNonPositiveQuantity IssueKind = "non_positive_quantity"
	IssueMultiplePrimary     IssueKind = "multiple_primary"
	IssueInactivePrimary     IssueKind = "inactive_primary"
	IssueUnknownIngredient   IssueKind = "unknown_ingredient"
	IssueDuplicateIngredient IssueKind = "duplicate_ingredient"
)

// Issue is one entry of an IncompleteDataError or ConfigurationError.
type Issue struct {
	Kind         IssueKind `json:"kind"`
	IngredientID int64     `json:"ingredient_id,omitempty"`
	VariantID    int64     `json:"variant_id,omitempty"`
	Name         string    `json:"name"`
	Detail       string    `json:"detail"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Name, i.Detail)
}

// IncompleteDataError lists recoverable gaps that block closing the day.
type IncompleteDataError struct {
	Issues []Issue
}

func (e *IncompleteDataError) Error() string {
	return "reconcile: incomplete data: " + joinStrings(e.Issues)
}

// ConfigurationError lists recipe misconfigurations. It is never retried.
type ConfigurationError struct {
	Issues []Issue
}

func (e *ConfigurationError) Error() string {
	return "reconcile: configuration error: " + joinStrings(e.Issues)
}

// Issues returns every issue carried by err, across joined errors.
func Issues(err error) []Issue {
	var out []Issue
	var incomplete *IncompleteDataError
	if errors.As(err, &incomplete) {
		out = append(out, incomplete.Issues...)
	}
	var config *ConfigurationError
	if errors.As(err, &config) {
		out = append(out, config.Issues...)
	}
	return out
}

func joinIssues(incomplete, configuration []Issue) error {
	var errs []error
	if len(configuration) > 0 {
		errs = append(errs, &ConfigurationError{Issues: configuration})
	}
	if len(incomplete) > 0 {
		errs = append(errs, &IncompleteDataError{Issues: incomplete})
	}
	return errors.Join(errs...)
}

func joinStrings(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.String())
	}
	return strings.Join(parts, "; ")
}
