// Package validator implements the domain-specific field cleaning
// applied to a StructuredRecord before persistence (§4.D.4 step 3): it
// nulls malformed identity fields rather than rejecting the whole
// record, cross-checks the registration fee against a vision-extracted
// value, and extracts father_name/date_of_birth from relation markers
// in party names.
//
// This is distinct from llmextract's JSON schema validation: that
// package checks the LLM's response is well-shaped JSON; this package
// checks the resulting domain values are plausible.
package validator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
	"github.com/anandkaman/saledeedpipeline/internal/model"
)

var (
	reAadhaar = regexp.MustCompile(`^\d{12}$`)
	rePAN     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	reDigits  = regexp.MustCompile(`\d`)
)

// relationMarkers pairs each marker (English and Kannada) with the
// regex that captures the father's/husband's name following it.
var relationMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bS/O\.?\s+([^,\n]+)`),
	regexp.MustCompile(`(?i)\bD/O\.?\s+([^,\n]+)`),
	regexp.MustCompile(`(?i)\bW/O\.?\s+([^,\n]+)`),
	regexp.MustCompile(`ಮಗ\s+([^,\n]+)`),
	regexp.MustCompile(`ಮಗಳು\s+([^,\n]+)`),
	regexp.MustCompile(`ಪತ್ನಿ\s+([^,\n]+)`),
}

// reDOB matches a date of birth embedded in a name string, e.g.
// "DOB: 12/03/1975" or "D.O.B 1975-03-12".
var reDOB = regexp.MustCompile(`(?i)D\.?O\.?B\.?:?\s*([0-9]{1,4}[-/][0-9]{1,2}[-/][0-9]{1,4})`)

// Clean applies every §4.D.4 step-3 rule to a copy of rec and returns
// the cleaned copy; the caller's record is left unchanged. It returns
// a ValidationError only when a critical field (document_id) is missing; individual malformed identity fields are
// nulled, not treated as record-level failures.
func Clean(rec model.StructuredRecord) (model.StructuredRecord, error) {
	if strings.TrimSpace(rec.DocumentID) == "" {
		return rec, apperr.New(apperr.ValidationError, "document_id is required", nil)
	}

	rec.Property.RegistrationFee = crossCheckRegistrationFee(rec.Property.RegistrationFee, rec.VisionRegistrationFee)

	rec.Buyers = cleanParties(rec.Buyers)
	rec.Sellers = cleanParties(rec.Sellers)
	rec.ConfirmingParties = cleanParties(rec.ConfirmingParties)

	return rec, nil
}

func cleanParties(parties []model.Party) []model.Party {
	out := make([]model.Party, len(parties))
	for i, p := range parties {
		p.AadhaarNumber = cleanAadhaar(p.AadhaarNumber)
		p.PANCardNumber = cleanPAN(p.PANCardNumber)
		name, father, dob := extractRelation(p.Name)
		p.Name = name
		if p.FatherName == nil && father != "" {
			p.FatherName = &father
		}
		if p.DateOfBirth == nil && dob != "" {
			p.DateOfBirth = &dob
		}
		out[i] = p
	}
	return out
}

// cleanAadhaar nulls the field unless it is exactly 12 digits.
func cleanAadhaar(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if !reAadhaar.MatchString(s) {
		return nil
	}
	return &s
}

// cleanPAN nulls the field unless it matches the PAN shape.
func cleanPAN(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.ToUpper(strings.TrimSpace(*v))
	if !rePAN.MatchString(s) {
		return nil
	}
	return &s
}

// crossCheckRegistrationFee nulls registrationFee when it has fewer
// than 3 digits, or when a vision-extracted value is present and the
// ratio between the two is exactly 1.0 (the vision pass and the LLM
// reading the same printed total, not independent corroboration).
func crossCheckRegistrationFee(registrationFee, vision *string) *string {
	if registrationFee == nil {
		return nil
	}
	s := strings.TrimSpace(*registrationFee)
	if len(reDigits.FindAllString(s, -1)) < 3 {
		return nil
	}
	if vision == nil {
		return registrationFee
	}
	regVal, err1 := strconv.ParseFloat(stripNonNumeric(s), 64)
	visVal, err2 := strconv.ParseFloat(stripNonNumeric(*vision), 64)
	if err1 != nil || err2 != nil || visVal == 0 {
		return registrationFee
	}
	if regVal/visVal == 1.0 {
		return nil
	}
	return registrationFee
}

func stripNonNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// extractRelation finds the first S/O, D/O, W/O, or Kannada relation
// marker in name and returns the name with that marker clause removed,
// the captured father/husband name, and any date of birth found.
func extractRelation(name string) (cleanedName, father, dob string) {
	cleanedName = name
	for _, re := range relationMarkers {
		if m := re.FindStringSubmatchIndex(name); m != nil {
			father = strings.TrimSpace(name[m[2]:m[3]])
			cleanedName = strings.TrimSpace(name[:m[0]] + name[m[1]:])
			break
		}
	}
	if m := reDOB.FindStringSubmatch(name); m != nil {
		dob = m[1]
		cleanedName = strings.TrimSpace(strings.Replace(cleanedName, m[0], "", 1))
	}
	cleanedName = strings.Trim(cleanedName, " ,")
	return cleanedName, father, dob
}
