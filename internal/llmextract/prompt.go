package llmextract

import "strings"

// BuildSystemPrompt composes the system message: strict JSON-only
// instruction, domain formatting rules, and hygiene rules against
// hallucinated fields.
func BuildSystemPrompt() string {
	parts := []string{
		"You are a parser for Indian property sale deed documents. The source text is OCR output " +
			"of a scanned deed, mixed English and Kannada script, and may contain noise.",
		"Return ONLY JSON that matches the provided JSON Schema. Do not include any commentary.",
		"Keep every monetary amount and area figure exactly as written in the source text, " +
			"as a string (do not recompute, reformat, or convert units).",
		"Party names may include relation markers such as S/O, D/O, W/O, or the Kannada ಮಗ, ಮಗಳು, ಪತ್ನಿ " +
			"followed by a father's or husband's name; keep the full name string as written, including the marker.",
		"aadhaar_number and pan_card_number must be copied exactly as printed; do not infer or guess them.",
		"If a field is not present in the text, omit it. Never invent a value.",
		"document_id must be copied from the filename hint if one is given, otherwise derive a short stable " +
			"identifier from the registration office and transaction date.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the OCR text, with a length cap larger than
// the teacher's ~3k-character receipt budget since deed OCR text runs
// considerably longer.
func BuildUserPrompt(text, documentIDHint string) string {
	var b strings.Builder
	if documentIDHint != "" {
		b.WriteString("Filename hint (use as document_id): ")
		b.WriteString(documentIDHint)
		b.WriteString("\n")
	}
	b.WriteString("\nOCR text:\n")
	const maxChars = 20000
	if len(text) > maxChars {
		b.WriteString(text[:maxChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}
