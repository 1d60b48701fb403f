package llmextract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
)

// synonyms renames field names the model sometimes emits despite the
// system prompt, grounded on NormalizeAndSanitizeJSON's rename table.
var synonyms = map[string]string{
	"registration_fees": "registration_fee",
	"stamp_duty":        "stamp_duty_fee",
	"sale_value":        "sale_consideration",
	"aadhar_number":     "aadhaar_number",
	"pan_number":        "pan_card_number",
}

// SanitizeOptionalFields is the lenient fallback pass, grounded on
// SanitizeOptionalFields: rename known synonyms (in property and in
// each party entry), drop empty/null property optionals, coerce
// obviously-numeric money fields back to their string form, and drop
// empty aadhaar_number/pan_card_number from party entries. It never
// touches document_id and never adds or removes buyer, seller, or
// confirming-party entries, since those are the shape-critical fields
// validation should reject rather than silently patch.
func SanitizeOptionalFields(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, apperr.New(apperr.LlmParse, "decode for sanitize", err)
	}

	var dropped []string
	if prop, ok := m["property"].(map[string]any); ok {
		for from, to := range synonyms {
			if v, exists := prop[from]; exists {
				if _, already := prop[to]; !already {
					prop[to] = v
				}
				delete(prop, from)
				dropped = append(dropped, from+"->"+to)
			}
		}
		for k, v := range prop {
			switch t := v.(type) {
			case nil:
				delete(prop, k)
				dropped = append(dropped, k+"(null)")
			case string:
				if strings.TrimSpace(t) == "" {
					delete(prop, k)
					dropped = append(dropped, k+"(empty)")
				}
			case float64:
				prop[k] = strconv.FormatFloat(t, 'f', -1, 64)
				dropped = append(dropped, k+"(coerced)")
			}
		}
	}

	for _, listKey := range []string{"buyers", "sellers", "confirming_parties"} {
		list, _ := m[listKey].([]any)
		for _, item := range list {
			party, _ := item.(map[string]any)
			for from, to := range synonyms {
				if v, exists := party[from]; exists {
					if _, already := party[to]; !already {
						party[to] = v
					}
					delete(party, from)
					dropped = append(dropped, listKey+"."+from+"->"+to)
				}
			}
		}
	}

	for _, key := range []string{"aadhaar_number", "pan_card_number"} {
		for _, listKey := range []string{"buyers", "sellers", "confirming_parties"} {
			if list, ok := m[listKey].([]any); ok {
				for _, item := range list {
					if party, ok := item.(map[string]any); ok {
						if v, exists := party[key]; exists {
							if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
								delete(party, key)
								dropped = append(dropped, listKey+"."+key+"(empty)")
							}
						}
					}
				}
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, apperr.New(apperr.Internal, "remarshal sanitized response", err)
	}
	return b, dropped, nil
}
