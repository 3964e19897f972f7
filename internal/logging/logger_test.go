package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := New("prod", tt.level).GetLevel(); got != tt.want {
			t.Errorf("New(%q).GetLevel() = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestNewTo_WritesJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	log := NewTo(&buf, "prod", "info")
	log.Info().Str("session_id", "USER-1-abc1234").Msg("draft saved")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["message"] != "draft saved" || entry["session_id"] != "USER-1-abc1234" {
		t.Errorf("unexpected entry: %v", entry)
	}
}
