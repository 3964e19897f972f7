package dashboard

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hackgods/patient-intake/internal/patient"
	"github.com/hackgods/patient-intake/internal/phone"
	"github.com/hackgods/patient-intake/internal/validation"
)

// StatusLabel is the badge text for a status. Unknown statuses show as is.
func StatusLabel(s patient.Status) string {
	switch s {
	case patient.StatusFilling:
		return "Filling"
	case patient.StatusSubmitted:
		return "Submitted"
	case patient.StatusInactive:
		return "Inactive"
	}
	return string(s)
}

// TimeAgo describes how long before now t was, in the coarsest whole unit.
func TimeAgo(t, now time.Time) string {
	secs := int(now.Sub(t) / time.Second)
	if secs < 10 {
		return "just now"
	}
	if secs < 60 {
		return fmt.Sprintf("%d secs ago", secs)
	}

	mins := secs / 60
	if mins < 60 {
		return plural(mins, "min")
	}
	hours := mins / 60
	if hours < 24 {
		return plural(hours, "hour")
	}
	return plural(hours/24, "day")
}

func plural(n int, unit string) string {
	if n > 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}

// Render writes the whole dashboard as plain text.
func Render(w io.Writer, s Snapshot, now time.Time) error {
	var b strings.Builder

	indicator := "( ) Connected"
	if s.Live {
		indicator = "(*) Live Update"
	}
	fmt.Fprintf(&b, "Staff Dashboard  %s\n", indicator)
	fmt.Fprintf(&b, "Submitted: %d  Filling: %d  Inactive: %d  Total: %d\n",
		len(s.Submitted), len(s.Filling), len(s.Inactive), s.Total)

	if s.Total == 0 {
		b.WriteString("\nNo Patients Yet\nWaiting for patients to start filling out the registration form...\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	section(&b, "Filling", s.Filling, now)
	section(&b, "Submitted", s.Submitted, now)
	section(&b, "Inactive", s.Inactive, now)

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, title string, patients []patient.Patient, now time.Time) {
	if len(patients) == 0 {
		return
	}
	fmt.Fprintf(b, "\n== %s (%d) ==\n", title, len(patients))
	for _, p := range patients {
		card(b, p, now)
	}
}

func card(b *strings.Builder, p patient.Patient, now time.Time) {
	fmt.Fprintf(b, "\n%s [%s]\n", p.FullName(), StatusLabel(p.Status))
	fmt.Fprintf(b, "  ID: %s\n", p.SessionID)

	fmt.Fprintf(b, "  Phone: %s", phone.FormatForDisplay(p.Phone))
	if !validation.ValidatePhoneNumber(p.Phone).Valid {
		b.WriteString("  (Invalid phone format)")
	}
	b.WriteByte('\n')

	fmt.Fprintf(b, "  Email: %s", p.Email)
	if !validation.ValidateEmail(p.Email).Valid {
		b.WriteString("  (Invalid email format)")
	}
	b.WriteByte('\n')

	if p.DateOfBirth != nil && *p.DateOfBirth != "" {
		fmt.Fprintf(b, "  Born: %s\n", *p.DateOfBirth)
	}
	if p.Address != "" {
		fmt.Fprintf(b, "  Address: %s\n", firstLine(p.Address))
	}
	fmt.Fprintf(b, "  Updated: %s\n", TimeAgo(p.UpdatedAt, now))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "..."
	}
	return s
}
