package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ValidationError reports all problems found in a rulebook file. It is a
// configuration error, distinct from runtime evaluation failures.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rulebook %s: %s", e.Path, strings.Join(e.Issues, "; "))
}

// Load reads, parses and validates a rulebook. No partial result is returned
// on failure.
func Load(path string) (*Rulebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook: %w", err)
	}

	var rb Rulebook
	if err := json.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("parse rulebook %s: %w", path, err)
	}

	if issues := validate(&rb); len(issues) > 0 {
		return nil, &ValidationError{Path: path, Issues: issues}
	}
	return &rb, nil
}

func validate(rb *Rulebook) []string {
	var issues []string

	names := make(map[string]bool)
	for i := range rb.Abstractions {
		a := &rb.Abstractions[i]
		where := fmt.Sprintf("abstraction %q", a.Name)
		if a.Name == "" {
			where = fmt.Sprintf("abstraction #%d", i)
			issues = append(issues, where+": name is required")
		} else if names[a.Name] {
			issues = append(issues, where+": duplicate name")
		}
		names[a.Name] = true

		if a.ConceptCode == "" {
			issues = append(issues, where+": concept_code is required")
		}
		if a.Persistence.Std() <= 0 {
			issues = append(issues, where+": persistence must be positive")
		}
		if len(a.Variants) == 0 {
			issues = append(issues, where+": at least one variant is required")
		}
		for vi := range a.Variants {
			for bi, b := range a.Variants[vi].Bands {
				bandWhere := fmt.Sprintf("%s variant %d band %d", where, vi, bi)
				if b.Label == "" {
					issues = append(issues, bandWhere+": label is required")
				}
				if b.Equals != "" && (b.Min != nil || b.Max != nil) {
					issues = append(issues, bandWhere+": equals and min/max are mutually exclusive")
				}
				if b.Min != nil && b.Max != nil && *b.Min >= *b.Max {
					issues = append(issues, bandWhere+": min must be below max")
				}
				if b.Equals == "" && b.Min == nil && b.Max == nil {
					issues = append(issues, bandWhere+": band matches nothing")
				}
			}
		}
	}

	prios := make(map[string]bool)
	for i, r := range rb.CombinationRules {
		where := fmt.Sprintf("combination rule #%d (%s)", i, r.Category)
		if r.Category == "" {
			issues = append(issues, where+": category is required")
		}
		if r.State == "" {
			issues = append(issues, where+": state is required")
		}
		if len(r.When) == 0 {
			issues = append(issues, where+": condition references no facts")
		}
		key := fmt.Sprintf("%s/%d", r.Category, r.Priority)
		if prios[key] {
			issues = append(issues, where+fmt.Sprintf(": duplicate priority %d within category", r.Priority))
		}
		prios[key] = true
	}

	for i, r := range rb.ProceduralRules {
		where := fmt.Sprintf("procedural rule #%d (%s)", i, r.Name)
		if r.Name == "" {
			issues = append(issues, fmt.Sprintf("procedural rule #%d: name is required", i))
		}
		if len(r.When) == 0 {
			issues = append(issues, where+": condition references no facts")
		}
		if len(r.Actions) == 0 {
			issues = append(issues, where+": at least one action is required")
		}
	}

	return issues
}
