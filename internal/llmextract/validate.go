package llmextract

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
)

// ValidateAgainstSchema validates data against schemaMap, grounded on
// ValidateJSONAgainstSchema. It returns an apperr.LlmInvalidShape on
// mismatch so the caller can decide whether to attempt a sanitize pass.
func ValidateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return apperr.New(apperr.Internal, "marshal schema", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return apperr.New(apperr.Internal, "add schema resource", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return apperr.New(apperr.Internal, "compile schema", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return apperr.New(apperr.LlmParse, "unmarshal llm response", err)
	}
	if err := schema.Validate(v); err != nil {
		return apperr.New(apperr.LlmInvalidShape, "response does not match schema", err)
	}
	return nil
}
