package validation

import (
	"regexp"
	"strings"

	"github.com/hackgods/patient-intake/internal/phone"
)

// Reason says why a value was rejected. The zero value means the value is fine.
type Reason string

const (
	ReasonNone         Reason = ""
	EmptyInput         Reason = "empty_input"
	WrongLength        Reason = "wrong_length"
	MissingLeadingZero Reason = "missing_leading_zero"
	InvalidPrefix      Reason = "invalid_prefix"
	MalformedAddress   Reason = "malformed_address"
)

// Message is the inline text shown next to a rejected field.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return ""
	case EmptyInput:
		return "This field is required"
	case WrongLength:
		return "Phone number must have 10 digits"
	case MissingLeadingZero:
		return "Phone number must start with 0"
	case InvalidPrefix:
		return "Invalid phone number format"
	case MalformedAddress:
		return "Invalid email format (example: name@example.com)"
	default:
		return string(r)
	}
}

type Result struct {
	Valid  bool
	Reason Reason
}

func ok() Result { return Result{Valid: true} }

func fail(r Reason) Result { return Result{Reason: r} }

// second digit of a national number: 2 landline, 6/8/9 mobile
const allowedPrefixes = "2689"

// emailChar also rejects Unicode spaces and the BOM, which \s does not cover.
const emailChar = `[^\s\v\p{Z}\x{FEFF}@]`

var emailPattern = regexp.MustCompile(`^` + emailChar + `+@` + emailChar + `+\.` + emailChar + `+$`)

// ValidatePhoneNumber checks a Thai national number. Formatting characters are
// ignored, so "081-234-5678" and "0812345678" are equivalent.
func ValidatePhoneNumber(input string) Result {
	if strings.TrimSpace(input) == "" {
		return fail(EmptyInput)
	}

	digits := phone.CleanForStorage(input)
	if len(digits) != phone.MaxDigits {
		return fail(WrongLength)
	}
	if digits[0] != '0' {
		return fail(MissingLeadingZero)
	}
	if !strings.ContainsRune(allowedPrefixes, rune(digits[1])) {
		return fail(InvalidPrefix)
	}

	return ok()
}

// ValidateEmail is a syntactic local@domain.tld check; no DNS lookups.
func ValidateEmail(input string) Result {
	if strings.TrimSpace(input) == "" {
		return fail(EmptyInput)
	}
	if !emailPattern.MatchString(input) {
		return fail(MalformedAddress)
	}
	return ok()
}

// Required rejects values that are empty once surrounding whitespace is removed.
func Required(input string) Result {
	if strings.TrimSpace(input) == "" {
		return fail(EmptyInput)
	}
	return ok()
}
