package rules

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from Go duration strings
// ("48h", "30m") in rulebook JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Band maps a value range (numeric, min inclusive and max exclusive) or an
// exact string to a qualitative label. Bands are tried in declared order.
type Band struct {
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Equals string   `json:"equals,omitempty"`
	Label  string   `json:"label"`
}

// Numeric reports whether the band matches by numeric range rather than
// exact string.
func (b *Band) Numeric() bool {
	return b.Equals == ""
}

// Variant is a demographic-specific band set. An empty Sex matches any
// patient and acts as the fallback.
type Variant struct {
	Sex   string `json:"sex,omitempty"`
	Bands []Band `json:"bands"`
}

// Abstraction classifies one concept's raw values into labeled states that
// persist for a bounded horizon after each reading.
type Abstraction struct {
	Name        string    `json:"name"`
	ConceptCode string    `json:"concept_code"`
	Persistence Duration  `json:"persistence"`
	// Default labels values no band matches; empty means such readings are
	// skipped.
	Default  string    `json:"default,omitempty"`
	Variants []Variant `json:"variants"`
}

// BandsFor picks the band set for a patient's sex, falling back to the
// unrestricted variant.
func (a *Abstraction) BandsFor(sex string) []Band {
	var fallback []Band
	for i := range a.Variants {
		v := &a.Variants[i]
		if v.Sex == sex {
			return v.Bands
		}
		if v.Sex == "" {
			fallback = v.Bands
		}
	}
	return fallback
}

// Condition is a conjunction of equality tests over the facts map.
type Condition map[string]string

// CombinationRule derives a category state from facts. Rules of one category
// are evaluated in ascending priority; the first whose condition holds wins.
type CombinationRule struct {
	Category string    `json:"category"`
	Priority int       `json:"priority"`
	State    string    `json:"state"`
	When     Condition `json:"when"`
}

// ProceduralRule recommends actions when its condition holds. Every matching
// rule fires.
type ProceduralRule struct {
	Name    string    `json:"name"`
	When    Condition `json:"when"`
	Actions []string  `json:"actions"`
}

// Rulebook is the full, validated rule configuration. It is immutable after
// loading.
type Rulebook struct {
	Abstractions     []Abstraction     `json:"abstractions"`
	CombinationRules []CombinationRule `json:"combination_rules"`
	ProceduralRules  []ProceduralRule  `json:"procedural_rules"`
}

// AbstractionByName returns the named abstraction, or nil.
func (rb *Rulebook) AbstractionByName(name string) *Abstraction {
	for i := range rb.Abstractions {
		if rb.Abstractions[i].Name == name {
			return &rb.Abstractions[i]
		}
	}
	return nil
}

// Categories returns the distinct combination-rule categories in first-seen
// declaration order.
func (rb *Rulebook) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rb.CombinationRules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}
