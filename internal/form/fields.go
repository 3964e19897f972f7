package form

import (
	"github.com/hackgods/patient-intake/internal/patient"
	"github.com/hackgods/patient-intake/internal/validation"
)

// Field names match the JSON keys of patient.FormData.
type Field string

const (
	FieldFirstName                    Field = "first_name"
	FieldMiddleName                   Field = "middle_name"
	FieldLastName                     Field = "last_name"
	FieldDateOfBirth                  Field = "date_of_birth"
	FieldGender                       Field = "gender"
	FieldPhone                        Field = "phone"
	FieldEmail                        Field = "email"
	FieldAddress                      Field = "address"
	FieldPreferredLanguage            Field = "preferred_language"
	FieldNationality                  Field = "nationality"
	FieldReligion                     Field = "religion"
	FieldEmergencyContactName         Field = "emergency_contact_name"
	FieldEmergencyContactRelationship Field = "emergency_contact_relationship"
)

// requiredFields are checked, in this order, before a submission.
var requiredFields = []Field{
	FieldFirstName,
	FieldLastName,
	FieldDateOfBirth,
	FieldPhone,
	FieldEmail,
	FieldAddress,
}

// textField returns the string slot for f, or nil for gender and unknown fields.
func textField(d *patient.FormData, f Field) *string {
	switch f {
	case FieldFirstName:
		return &d.FirstName
	case FieldMiddleName:
		return &d.MiddleName
	case FieldLastName:
		return &d.LastName
	case FieldDateOfBirth:
		return &d.DateOfBirth
	case FieldPhone:
		return &d.Phone
	case FieldEmail:
		return &d.Email
	case FieldAddress:
		return &d.Address
	case FieldPreferredLanguage:
		return &d.PreferredLanguage
	case FieldNationality:
		return &d.Nationality
	case FieldReligion:
		return &d.Religion
	case FieldEmergencyContactName:
		return &d.EmergencyContactName
	case FieldEmergencyContactRelationship:
		return &d.EmergencyContactRelationship
	}
	return nil
}

func validate(d patient.FormData, f Field) validation.Result {
	switch f {
	case FieldFirstName:
		return validation.Required(d.FirstName)
	case FieldLastName:
		return validation.Required(d.LastName)
	case FieldDateOfBirth:
		return validation.Required(d.DateOfBirth)
	case FieldAddress:
		return validation.Required(d.Address)
	case FieldPhone:
		return validation.ValidatePhoneNumber(d.Phone)
	case FieldEmail:
		return validation.ValidateEmail(d.Email)
	}
	return validation.Result{Valid: true}
}
