package patient

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusFilling   Status = "filling"
	StatusSubmitted Status = "submitted"
	// StatusInactive is set by administrative processes outside the intake flow.
	StatusInactive Status = "inactive"
)

// Rank orders statuses along the forward-only lifecycle. Unknown statuses rank lowest.
func (s Status) Rank() int {
	switch s {
	case StatusFilling:
		return 0
	case StatusSubmitted:
		return 1
	case StatusInactive:
		return 2
	default:
		return -1
	}
}

func (s Status) Valid() bool {
	return s.Rank() >= 0
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// FormData is the in-progress state of one intake form.
type FormData struct {
	FirstName                    string `json:"first_name"`
	MiddleName                   string `json:"middle_name"`
	LastName                     string `json:"last_name"`
	DateOfBirth                  string `json:"date_of_birth"` // YYYY-MM-DD
	Gender                       Gender `json:"gender"`
	Phone                        string `json:"phone"`
	Email                        string `json:"email"`
	Address                      string `json:"address"`
	PreferredLanguage            string `json:"preferred_language"`
	Nationality                  string `json:"nationality"`
	Religion                     string `json:"religion"`
	EmergencyContactName         string `json:"emergency_contact_name"`
	EmergencyContactRelationship string `json:"emergency_contact_relationship"`
}

// NewFormData returns the state of a freshly mounted form.
func NewFormData() FormData {
	return FormData{Gender: GenderMale}
}

type Patient struct {
	ID                           uuid.UUID `json:"id"`
	SessionID                    string    `json:"session_id"`
	FirstName                    string    `json:"first_name"`
	MiddleName                   *string   `json:"middle_name"`
	LastName                     string    `json:"last_name"`
	DateOfBirth                  *string   `json:"date_of_birth"`
	Gender                       Gender    `json:"gender"`
	Phone                        string    `json:"phone"`
	Email                        string    `json:"email"`
	Address                      string    `json:"address"`
	PreferredLanguage            *string   `json:"preferred_language"`
	Nationality                  *string   `json:"nationality"`
	Religion                     *string   `json:"religion"`
	EmergencyContactName         *string   `json:"emergency_contact_name"`
	EmergencyContactRelationship *string   `json:"emergency_contact_relationship"`
	Status                       Status    `json:"status"`
	CreatedAt                    time.Time `json:"created_at"`
	UpdatedAt                    time.Time `json:"updated_at"`
}

// FullName joins the name parts that are present.
func (p Patient) FullName() string {
	name := p.FirstName
	if p.MiddleName != nil && *p.MiddleName != "" {
		name += " " + *p.MiddleName
	}
	if p.LastName != "" {
		name += " " + p.LastName
	}
	return name
}
