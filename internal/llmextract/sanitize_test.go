package llmextract

import (
	"encoding/json"
	"testing"
)

func TestSanitizeOptionalFields_RenamesSynonyms(t *testing.T) {
	raw := []byte(`{
		"document_id": "doc-1",
		"property": {"registration_fees": "5000", "stamp_duty": "2000"},
		"buyers": [],
		"sellers": []
	}`)
	out, dropped, err := SanitizeOptionalFields(raw)
	if err != nil {
		t.Fatalf("SanitizeOptionalFields: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("unmarshal sanitized output: %v", err)
	}
	prop := m["property"].(map[string]any)
	if prop["registration_fee"] != "5000" {
		t.Fatalf("expected registration_fees renamed to registration_fee, got %v", prop)
	}
	if prop["stamp_duty_fee"] != "2000" {
		t.Fatalf("expected stamp_duty renamed to stamp_duty_fee, got %v", prop)
	}
	if _, ok := prop["registration_fees"]; ok {
		t.Fatalf("expected old key removed")
	}
	if len(dropped) == 0 {
		t.Fatalf("expected a non-empty dropped/renamed report")
	}
}

func TestSanitizeOptionalFields_DropsEmptyAndCoercesNumeric(t *testing.T) {
	raw := []byte(`{
		"document_id": "doc-1",
		"property": {"guidance_value": "", "sale_consideration": 1500000},
		"buyers": [{"name": "Ravi", "aadhaar_number": ""}],
		"sellers": []
	}`)
	out, _, err := SanitizeOptionalFields(raw)
	if err != nil {
		t.Fatalf("SanitizeOptionalFields: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	prop := m["property"].(map[string]any)
	if _, ok := prop["guidance_value"]; ok {
		t.Fatalf("expected empty guidance_value dropped")
	}
	if prop["sale_consideration"] != "1500000" {
		t.Fatalf("expected numeric sale_consideration coerced to string, got %v (%T)", prop["sale_consideration"], prop["sale_consideration"])
	}
	buyers := m["buyers"].([]any)
	buyer := buyers[0].(map[string]any)
	if _, ok := buyer["aadhaar_number"]; ok {
		t.Fatalf("expected empty aadhaar_number dropped from buyer")
	}
}
