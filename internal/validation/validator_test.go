// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package validation

import (
	"strings"
	"testing"
)

type ingestPayload struct {
	Type       string  `validate:"required"`
	SourceID   string  `validate:"required"`
	Lat        float64 `validate:"latitude"`
	Lon        float64 `validate:"longitude"`
	Confidence float64 `validate:"gte=0,lte=1"`
	Timestamp  string  `validate:"required"`
}

func validPayload() ingestPayload {
	return ingestPayload{
		Type:       "fallen_pm",
		SourceID:   "bus-1",
		Lat:        37.5665,
		Lon:        126.978,
		Confidence: 0.8,
		Timestamp:  "2026-05-02T10:00:00Z",
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	payload := validPayload()
	if err := ValidateStruct(&payload); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
}

func TestValidateStruct_FieldFailures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ingestPayload)
		wantField string
	}{
		{"missing type", func(p *ingestPayload) { p.Type = "" }, "Type"},
		{"missing source id", func(p *ingestPayload) { p.SourceID = "" }, "SourceID"},
		{"latitude too high", func(p *ingestPayload) { p.Lat = 91 }, "Lat"},
		{"latitude too low", func(p *ingestPayload) { p.Lat = -90.5 }, "Lat"},
		{"longitude out of range", func(p *ingestPayload) { p.Lon = 181 }, "Lon"},
		{"confidence above one", func(p *ingestPayload) { p.Confidence = 1.5 }, "Confidence"},
		{"confidence negative", func(p *ingestPayload) { p.Confidence = -0.1 }, "Confidence"},
		{"missing timestamp", func(p *ingestPayload) { p.Timestamp = "" }, "Timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload()
			tt.mutate(&payload)

			err := ValidateStruct(&payload)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			found := false
			for _, fieldErr := range err.Errors() {
				if fieldErr.Field() == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("error %v does not mention field %s", err, tt.wantField)
			}
		})
	}
}

func TestToAPIError_SingleField(t *testing.T) {
	payload := validPayload()
	payload.Type = ""

	err := ValidateStruct(&payload)
	if err == nil {
		t.Fatal("expected a validation error")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Details["field"] != "Type" {
		t.Errorf("details field = %v, want Type", apiErr.Details["field"])
	}
}

func TestToAPIError_MultipleFields(t *testing.T) {
	payload := validPayload()
	payload.Type = ""
	payload.Lat = 200

	err := ValidateStruct(&payload)
	if err == nil {
		t.Fatal("expected a validation error")
	}

	apiErr := err.ToAPIError()
	if !strings.Contains(apiErr.Message, ";") {
		t.Errorf("message %q should join multiple field errors", apiErr.Message)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("details should list 2 fields, got %v", apiErr.Details["fields"])
	}
}
