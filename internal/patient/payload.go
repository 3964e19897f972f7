package patient

import (
	"time"

	"github.com/hackgods/patient-intake/internal/phone"
)

// UpsertParams is the full-row write keyed on SessionID.
type UpsertParams struct {
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
	UpdatedAt                    time.Time `json:"updated_at"`
}

// NewUpsertParams maps form state onto a write. Required fields go through
// verbatim, an empty date of birth and empty optional fields become NULL and
// the phone is reduced to digits.
func NewUpsertParams(sessionID string, data FormData, status Status, now time.Time) UpsertParams {
	gender := data.Gender
	if gender == "" {
		gender = GenderMale
	}

	return UpsertParams{
		SessionID:                    sessionID,
		FirstName:                    data.FirstName,
		MiddleName:                   nullableString(data.MiddleName),
		LastName:                     data.LastName,
		DateOfBirth:                  nullableString(data.DateOfBirth),
		Gender:                       gender,
		Phone:                        phone.CleanForStorage(data.Phone),
		Email:                        data.Email,
		Address:                      data.Address,
		PreferredLanguage:            nullableString(data.PreferredLanguage),
		Nationality:                  nullableString(data.Nationality),
		Religion:                     nullableString(data.Religion),
		EmergencyContactName:         nullableString(data.EmergencyContactName),
		EmergencyContactRelationship: nullableString(data.EmergencyContactRelationship),
		Status:                       status,
		UpdatedAt:                    now.UTC(),
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
