// Package llmextract implements the StructuredExtractor contract Stage
// 2 calls: a remote chat-completions LLM that turns OCR text into a
// schema-validated sale-deed record.
package llmextract

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
	"github.com/anandkaman/saledeedpipeline/internal/model"
)

// Extractor is the StructuredExtractor contract from §6.
type Extractor interface {
	Parse(ctx context.Context, text string) (model.StructuredRecord, error)
}

// wireParty is the JSON shape the LLM is asked to emit for a buyer,
// seller, or confirming party. Money/date fields stay strings on the
// wire; Validator.Clean is what decides whether they survive.
type wireParty struct {
	Name          string   `json:"name"`
	Gender        string   `json:"gender,omitempty"`
	Address       string   `json:"address,omitempty"`
	Pincode       string   `json:"pincode,omitempty"`
	State         string   `json:"state,omitempty"`
	PhoneNumbers  []string `json:"phone_numbers,omitempty"`
	Email         string   `json:"email,omitempty"`
	AadhaarNumber string   `json:"aadhaar_number,omitempty"`
	PANCardNumber string   `json:"pan_card_number,omitempty"`
	PropertyShare string   `json:"property_share,omitempty"`
}

// wireRecord is the JSON shape the LLM is asked to emit for one document.
// father_name/date_of_birth are deliberately absent here: they are not
// asked of the model, they are extracted from wireParty.Name locally by
// Validator.Clean per §4.D.4 step 3.
type wireRecord struct {
	DocumentID         string      `json:"document_id"`
	TransactionDate    string      `json:"transaction_date,omitempty"`
	RegistrationOffice string      `json:"registration_office,omitempty"`
	Property           wireProperty `json:"property"`
	Buyers             []wireParty `json:"buyers"`
	Sellers            []wireParty `json:"sellers"`
	ConfirmingParties  []wireParty `json:"confirming_parties,omitempty"`
}

type wireProperty struct {
	ScheduleBArea             string `json:"schedule_b_area,omitempty"`
	ScheduleCPropertyName     string `json:"schedule_c_property_name,omitempty"`
	ScheduleCPropertyAddress  string `json:"schedule_c_property_address,omitempty"`
	ScheduleCPropertyArea     string `json:"schedule_c_property_area,omitempty"`
	SaleConsideration         string `json:"sale_consideration,omitempty"`
	StampDutyFee              string `json:"stamp_duty_fee,omitempty"`
	RegistrationFee           string `json:"registration_fee,omitempty"`
	GuidanceValue             string `json:"guidance_value,omitempty"`
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	v := s
	return &v
}

func parseAreaFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func toModelParties(in []wireParty) []model.Party {
	out := make([]model.Party, 0, len(in))
	for _, p := range in {
		out = append(out, model.Party{
			Name:          p.Name,
			Gender:        nilIfEmpty(p.Gender),
			Address:       nilIfEmpty(p.Address),
			Pincode:       nilIfEmpty(p.Pincode),
			State:         nilIfEmpty(p.State),
			PhoneNumbers:  p.PhoneNumbers,
			Email:         nilIfEmpty(p.Email),
			AadhaarNumber: nilIfEmpty(p.AadhaarNumber),
			PANCardNumber: nilIfEmpty(p.PANCardNumber),
			PropertyShare: nilIfEmpty(p.PropertyShare),
		})
	}
	return out
}

// DecodeRecord unmarshals schema-validated LLM output into a
// model.StructuredRecord. Extractor implementations call this after a
// successful ValidateAgainstSchema/SanitizeOptionalFields pass.
func DecodeRecord(raw []byte) (model.StructuredRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.StructuredRecord{}, apperr.New(apperr.LlmParse, "decode structured record", err)
	}
	return toModelRecord(w), nil
}

func toModelRecord(w wireRecord) model.StructuredRecord {
	return model.StructuredRecord{
		DocumentID:         w.DocumentID,
		TransactionDate:    nilIfEmpty(w.TransactionDate),
		RegistrationOffice: nilIfEmpty(w.RegistrationOffice),
		Property: model.Property{
			ScheduleBArea:            parseAreaFloat(w.Property.ScheduleBArea),
			ScheduleCPropertyName:    nilIfEmpty(w.Property.ScheduleCPropertyName),
			ScheduleCPropertyAddress: nilIfEmpty(w.Property.ScheduleCPropertyAddress),
			ScheduleCPropertyArea:    parseAreaFloat(w.Property.ScheduleCPropertyArea),
			SaleConsideration:        nilIfEmpty(w.Property.SaleConsideration),
			StampDutyFee:             nilIfEmpty(w.Property.StampDutyFee),
			RegistrationFee:          nilIfEmpty(w.Property.RegistrationFee),
			GuidanceValue:            nilIfEmpty(w.Property.GuidanceValue),
		},
		Buyers:            toModelParties(w.Buyers),
		Sellers:           toModelParties(w.Sellers),
		ConfirmingParties: toModelParties(w.ConfirmingParties),
	}
}
