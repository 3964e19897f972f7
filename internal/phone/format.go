// Package phone normalises Thai phone numbers (mobile 06x/08x/09x, landline 02x)
// between what a patient types, what staff read and what gets stored.
package phone

import (
	"regexp"
	"strings"
)

// MaxDigits is the length of a complete national number.
const MaxDigits = 10

var nonDigits = regexp.MustCompile(`\D`)

// CleanForStorage strips every non-digit character. It is applied right before
// a write so the stored value is canonical whatever formatter produced it.
func CleanForStorage(raw string) string {
	return nonDigits.ReplaceAllString(raw, "")
}

// FormatForInput groups the digits typed so far as xxx-xxx-xxxx, dropping
// anything past MaxDigits.
func FormatForInput(raw string) string {
	return group(truncate(CleanForStorage(raw)), "-")
}

// FormatForDisplay groups a stored number as xxx xxx xxxx for cards and lists.
// A blank value renders as a single dash.
func FormatForDisplay(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "-"
	}
	return group(truncate(CleanForStorage(raw)), " ")
}

func truncate(digits string) string {
	if len(digits) > MaxDigits {
		return digits[:MaxDigits]
	}
	return digits
}

func group(digits, sep string) string {
	switch {
	case len(digits) <= 3:
		return digits
	case len(digits) <= 6:
		return digits[:3] + sep + digits[3:]
	default:
		return digits[:3] + sep + digits[3:6] + sep + digits[6:]
	}
}
