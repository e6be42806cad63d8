package reading

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/vitals/internal/domain/access"
)

const (
	MinBPM         = 20
	MaxBPM         = 300
	maxDeviceIDLen = 128
)

// Reading is one heart-rate measurement. Ownership is never stored on it;
// it follows the parent patient.
type Reading struct {
	ID         uuid.UUID              `json:"id"`
	PatientID  uuid.UUID              `json:"patient"`
	Value      int                    `json:"value"`
	RecordedAt time.Time              `json:"recorded_at"`
	DeviceID   *string                `json:"device_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Input is a create or update payload. RecordedAt is kept raw so naive
// timestamps can be read as UTC.
type Input struct {
	PatientID  uuid.UUID              `json:"patient"`
	Value      *int                   `json:"value"`
	RecordedAt string                 `json:"recorded_at"`
	DeviceID   *string                `json:"device_id"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// UnmarshalJSON decodes the payload, reporting a malformed patient
// identifier as a validation error on "patient".
func (in *Input) UnmarshalJSON(b []byte) error {
	type plain Input
	aux := struct {
		PatientID json.RawMessage `json:"patient"`
		*plain
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.PatientID) == 0 || string(aux.PatientID) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(aux.PatientID, &raw); err != nil {
		return &access.ValidationError{Field: "patient", Message: "must be a UUID string"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return &access.ValidationError{Field: "patient", Message: "must be a valid UUID"}
	}
	in.PatientID = id
	return nil
}
