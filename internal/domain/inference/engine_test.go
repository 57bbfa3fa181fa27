package inference

import (
	"reflect"
	"testing"

	"github.com/cdss/cdss/internal/rules"
)

func hematologyRulebook() *rules.Rulebook {
	return &rules.Rulebook{
		CombinationRules: []rules.CombinationRule{
			{Category: "HEMATOLOGICAL_STATE", Priority: 1, State: "SEVERE",
				When: rules.Condition{"HEMOGLOBIN_STATE": "SEVERELY_LOW"}},
			{Category: "HEMATOLOGICAL_STATE", Priority: 2, State: "MODERATE",
				When: rules.Condition{"HEMOGLOBIN_STATE": "LOW", "WBC_STATE": "LOW"}},
			{Category: "HEMATOLOGICAL_STATE", Priority: 3, State: "MILD",
				When: rules.Condition{"HEMOGLOBIN_STATE": "LOW"}},
			{Category: "HEMATOLOGICAL_STATE", Priority: 4, State: "NORMAL",
				When: rules.Condition{"HEMOGLOBIN_STATE": "NORMAL"}},

			// Second tier: depends on the first tier's derived state.
			{Category: "TREATMENT_STATE", Priority: 1, State: "HOLD_CHEMO",
				When: rules.Condition{"HEMATOLOGICAL_STATE": "SEVERE"}},
			{Category: "TREATMENT_STATE", Priority: 2, State: "CONTINUE",
				When: rules.Condition{"HEMATOLOGICAL_STATE": "NORMAL"}},
			{Category: "TREATMENT_STATE", Priority: 3, State: "INSUFFICIENT_DATA",
				When: rules.Condition{"HEMATOLOGICAL_STATE": "Undetermined"}},
		},
		ProceduralRules: []rules.ProceduralRule{
			{Name: "transfusion", When: rules.Condition{"HEMATOLOGICAL_STATE": "SEVERE"},
				Actions: []string{"Order blood transfusion", "Repeat CBC in 6 hours"}},
			{Name: "chemo-hold", When: rules.Condition{"TREATMENT_STATE": "HOLD_CHEMO"},
				Actions: []string{"Suspend chemotherapy protocol"}},
			{Name: "partial-data", When: rules.Condition{"TREATMENT_STATE": "INSUFFICIENT_DATA"},
				Actions: []string{"Due to partial information, the state cannot be determined"}},
		},
	}
}

func TestEvaluate_FirstMatchByPriority(t *testing.T) {
	// Both the MODERATE and MILD guards hold; the lower priority wins.
	result := Evaluate(hematologyRulebook(), map[string]string{
		"sex":              "female",
		"HEMOGLOBIN_STATE": "LOW",
		"WBC_STATE":        "LOW",
	})
	if got := result.Facts["HEMATOLOGICAL_STATE"]; got != "MODERATE" {
		t.Errorf("expected MODERATE by priority, got %s", got)
	}
}

func TestEvaluate_PartialGuardFallsThrough(t *testing.T) {
	result := Evaluate(hematologyRulebook(), map[string]string{
		"sex":              "female",
		"HEMOGLOBIN_STATE": "LOW",
	})
	if got := result.Facts["HEMATOLOGICAL_STATE"]; got != "MILD" {
		t.Errorf("expected MILD when WBC is missing, got %s", got)
	}
}

func TestEvaluate_TieringFeedsLaterCategories(t *testing.T) {
	result := Evaluate(hematologyRulebook(), map[string]string{
		"sex":              "female",
		"HEMOGLOBIN_STATE": "SEVERELY_LOW",
	})
	if got := result.Facts["TREATMENT_STATE"]; got != "HOLD_CHEMO" {
		t.Errorf("expected HOLD_CHEMO derived from first tier, got %s", got)
	}
}

func TestEvaluate_UndeterminedIsExplicit(t *testing.T) {
	// No hemoglobin fact at all: the first tier is Undetermined, and only
	// the guard that names Undetermined explicitly matches it.
	result := Evaluate(hematologyRulebook(), map[string]string{"sex": "male"})

	if got := result.Facts["HEMATOLOGICAL_STATE"]; got != StateUndetermined {
		t.Fatalf("expected Undetermined, got %s", got)
	}
	if got := result.Facts["TREATMENT_STATE"]; got != "INSUFFICIENT_DATA" {
		t.Errorf("expected INSUFFICIENT_DATA via explicit Undetermined guard, got %s", got)
	}
	var names []string
	for _, r := range result.Recommendations {
		names = append(names, r.Rule)
	}
	if !reflect.DeepEqual(names, []string{"partial-data"}) {
		t.Errorf("expected only partial-data to fire, got %v", names)
	}
}

func TestEvaluate_AllMatchingProceduralRulesFire(t *testing.T) {
	result := Evaluate(hematologyRulebook(), map[string]string{
		"HEMOGLOBIN_STATE": "SEVERELY_LOW",
	})
	if len(result.Recommendations) != 2 {
		t.Fatalf("expected transfusion and chemo-hold to fire, got %+v", result.Recommendations)
	}
	// Declaration order is preserved.
	if result.Recommendations[0].Rule != "transfusion" || result.Recommendations[1].Rule != "chemo-hold" {
		t.Errorf("unexpected order %+v", result.Recommendations)
	}
}

func TestEvaluate_DoesNotMutateSeed(t *testing.T) {
	seed := map[string]string{"HEMOGLOBIN_STATE": "NORMAL"}
	Evaluate(hematologyRulebook(), seed)
	if len(seed) != 1 {
		t.Errorf("seed map must not be mutated, got %v", seed)
	}
}

func TestEvaluate_MaximalGradeLadder(t *testing.T) {
	// Toxicity grading: one rule per grade, most severe first. Several
	// guards can hold at once; first-match-wins picks the maximal grade.
	rb := &rules.Rulebook{
		CombinationRules: []rules.CombinationRule{
			{Category: "TOXICITY", Priority: 1, State: "GRADE_IV",
				When: rules.Condition{"FEVER_STATE": "HIGH"}},
			{Category: "TOXICITY", Priority: 2, State: "GRADE_III",
				When: rules.Condition{"CHILLS_STATE": "SHAKING"}},
			{Category: "TOXICITY", Priority: 3, State: "GRADE_II",
				When: rules.Condition{"FEVER_STATE": "LOW"}},
			{Category: "TOXICITY", Priority: 4, State: "GRADE_I",
				When: rules.Condition{"FEVER_STATE": "NONE"}},
		},
	}
	result := Evaluate(rb, map[string]string{
		"FEVER_STATE":  "HIGH",
		"CHILLS_STATE": "SHAKING",
	})
	if got := result.Facts["TOXICITY"]; got != "GRADE_IV" {
		t.Errorf("expected maximal grade, got %s", got)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	seed := map[string]string{"HEMOGLOBIN_STATE": "LOW", "WBC_STATE": "LOW"}
	a := Evaluate(hematologyRulebook(), seed)
	b := Evaluate(hematologyRulebook(), seed)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("evaluation must be repeatable")
	}
}
