package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/patient-intake/internal/patient"
)

const maxBodyBytes = 64 << 10

type patientHandlers struct {
	svc PatientService
	log zerolog.Logger
}

func (h *patientHandlers) upsert(w http.ResponseWriter, r *http.Request) {
	var req patient.UpsertParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	// the path is authoritative for which session is written
	req.SessionID = chi.URLParam(r, "sessionID")

	saved, inserted, err := h.svc.Upsert(r.Context(), req)
	if err != nil {
		h.handlePatientError(w, r, err)
		return
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func (h *patientHandlers) list(w http.ResponseWriter, r *http.Request) {
	patients, err := h.svc.List(r.Context())
	if err != nil {
		h.handlePatientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListPatientsResponse{Patients: patients})
}

func (h *patientHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.handlePatientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *patientHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.handlePatientError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *patientHandlers) handlePatientError(w http.ResponseWriter, r *http.Request, err error) {
	var subErr *patient.SubmissionError

	switch {
	case errors.As(err, &subErr):
		fields := make(map[string]string, len(subErr.Fields))
		for name, reason := range subErr.Fields {
			fields[name] = string(reason)
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "incomplete_submission",
			Details: err.Error(),
			Fields:  fields,
		})
	case errors.Is(err, patient.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, patient.ErrInvalidSessionID):
		writeError(w, http.StatusBadRequest, "invalid_session_id", err.Error())
	case errors.Is(err, patient.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, patient.ErrInvalidGender):
		writeError(w, http.StatusBadRequest, "invalid_gender", err.Error())
	case errors.Is(err, patient.ErrInvalidDateOfBirth):
		writeError(w, http.StatusBadRequest, "invalid_date_of_birth", err.Error())
	case errors.Is(err, patient.ErrStaleWrite):
		writeError(w, http.StatusConflict, "stale_write", err.Error())
	case errors.Is(err, patient.ErrSessionBusy):
		writeError(w, http.StatusConflict, "session_busy", err.Error())
	default:
		h.log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
