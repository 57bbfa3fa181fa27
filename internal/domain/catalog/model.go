package catalog

// Concept is a catalog entry describing a measurable observation, keyed by
// its LOINC-style code. AllowedValues, when non-empty, restricts the values
// the ledger accepts for the concept.
type Concept struct {
	Code          string   `json:"code"`
	Component     string   `json:"component"`
	Property      string   `json:"property,omitempty"`
	TimeAspect    string   `json:"time_aspect,omitempty"`
	System        string   `json:"system,omitempty"`
	ScaleType     string   `json:"scale_type,omitempty"`
	MethodType    string   `json:"method_type,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Unit          string   `json:"unit,omitempty"`
}

// AllowsValue reports whether v is acceptable for the concept. An empty
// allowed-values list accepts any value.
func (c *Concept) AllowsValue(v string) bool {
	if len(c.AllowedValues) == 0 {
		return true
	}
	for _, allowed := range c.AllowedValues {
		if allowed == v {
			return true
		}
	}
	return false
}
