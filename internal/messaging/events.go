package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the intake exchange.
const (
	EventPatientCreated   = "patient.created"
	EventPatientSubmitted = "patient.submitted"
	EventPatientDeleted   = "patient.deleted"
)

const serviceName = "patient-intake"

type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
}

// PatientEvent is the body of every patient.* message. Contact details are left
// out on purpose; consumers fetch the row when they need it.
type PatientEvent struct {
	BaseEvent
	Data PatientEventData `json:"data"`
}

type PatientEventData struct {
	PatientID  string    `json:"patient_id"`
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ServiceName: serviceName,
	}
}

func NewPatientEvent(eventType string, data PatientEventData) PatientEvent {
	return PatientEvent{
		BaseEvent: NewBaseEvent(eventType),
		Data:      data,
	}
}
