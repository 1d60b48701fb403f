package llmextract

import (
	"testing"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
)

func TestValidateAgainstSchema_Valid(t *testing.T) {
	data := []byte(`{
		"document_id": "doc-1",
		"property": {"sale_consideration": "1000000"},
		"buyers": [{"name": "Ravi Kumar"}],
		"sellers": [{"name": "Geetha Rao"}]
	}`)
	if err := ValidateAgainstSchema(BuildSchema(), data); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
}

func TestValidateAgainstSchema_MissingRequiredField(t *testing.T) {
	data := []byte(`{
		"property": {},
		"buyers": [],
		"sellers": []
	}`)
	err := ValidateAgainstSchema(BuildSchema(), data)
	if !apperr.Is(err, apperr.LlmInvalidShape) {
		t.Fatalf("expected LlmInvalidShape, got %v", err)
	}
}

func TestValidateAgainstSchema_RejectsUnknownProperty(t *testing.T) {
	data := []byte(`{
		"document_id": "doc-1",
		"property": {},
		"buyers": [],
		"sellers": [],
		"unexpected_field": "nope"
	}`)
	err := ValidateAgainstSchema(BuildSchema(), data)
	if !apperr.Is(err, apperr.LlmInvalidShape) {
		t.Fatalf("expected LlmInvalidShape for additionalProperties violation, got %v", err)
	}
}

func TestValidateAgainstSchema_MalformedJSON(t *testing.T) {
	err := ValidateAgainstSchema(BuildSchema(), []byte("{not json"))
	if !apperr.Is(err, apperr.LlmParse) {
		t.Fatalf("expected LlmParse, got %v", err)
	}
}
