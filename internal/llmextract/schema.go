package llmextract

// BuildSchema returns the JSON-Schema (draft 2020-12 subset) constraining
// the sale-deed record, the way BuildReceiptJSONSchema does for the
// teacher's receipt domain. It is passed to the LLM as a structured
// output constraint and used locally to validate the response.
func BuildSchema() map[string]any {
	moneyOrArea := map[string]any{"type": "string"}
	party := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":             map[string]any{"type": "string", "minLength": 1},
			"gender":           map[string]any{"type": "string"},
			"address":          map[string]any{"type": "string"},
			"pincode":          map[string]any{"type": "string"},
			"state":            map[string]any{"type": "string"},
			"phone_numbers":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"email":            map[string]any{"type": "string"},
			"aadhaar_number":   map[string]any{"type": "string"},
			"pan_card_number":  map[string]any{"type": "string"},
			"property_share":   map[string]any{"type": "string"},
		},
		"required": []string{"name"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"document_id":         map[string]any{"type": "string", "minLength": 1},
			"transaction_date":    map[string]any{"type": "string"},
			"registration_office": map[string]any{"type": "string"},
			"property": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"schedule_b_area":              moneyOrArea,
					"schedule_c_property_name":     moneyOrArea,
					"schedule_c_property_address":  moneyOrArea,
					"schedule_c_property_area":     moneyOrArea,
					"sale_consideration":           moneyOrArea,
					"stamp_duty_fee":                moneyOrArea,
					"registration_fee":             moneyOrArea,
					"guidance_value":               moneyOrArea,
				},
			},
			"buyers":             map[string]any{"type": "array", "items": party},
			"sellers":            map[string]any{"type": "array", "items": party},
			"confirming_parties": map[string]any{"type": "array", "items": party},
		},
		"required": []string{"document_id", "property", "buyers", "sellers"},
	}
}
