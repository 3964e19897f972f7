package patient

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

// DefaultSessionPrefix marks tokens minted by the public intake form.
const DefaultSessionPrefix = "USER"

const (
	sessionSuffixLen = 7
	base36           = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z]{1,32}-[0-9]{1,20}-[0-9a-z]{7}$`)

// NewSessionID mints a form session token: <prefix>-<unix millis>-<7 base36 chars>.
// The token is the upsert conflict key for every write of that form session.
func NewSessionID(prefix string, now time.Time) string {
	suffix := make([]byte, sessionSuffixLen)
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}

func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
