package api

import "github.com/hackgods/patient-intake/internal/patient"

type ListPatientsResponse struct {
	Patients []patient.Patient `json:"patients"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// Fields maps a form field to the reason it failed, for incomplete submissions.
	Fields map[string]string `json:"fields,omitempty"`
}
