// Package realtime fans patient row changes out to connected dashboards over
// websockets.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TopicPatients is the only topic dashboards subscribe to.
const TopicPatients = "patients"

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// ChangeEvent is one committed change to the patients table as produced by the
// database trigger. Record and OldRecord hold the row's id, session_id and
// status only. Record is absent on DELETE, OldRecord on INSERT.
type ChangeEvent struct {
	Type            string          `json:"type"`
	Table           string          `json:"table"`
	Record          json.RawMessage `json:"record,omitempty"`
	OldRecord       json.RawMessage `json:"old_record,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// ClientMessage is what a dashboard sends to change its subscriptions.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

var ErrUnknownChange = errors.New("unknown change type")

// DecodeChange parses a trigger payload.
func DecodeChange(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change: %w", err)
	}

	switch ev.Type {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
	default:
		return ChangeEvent{}, fmt.Errorf("%w: %q", ErrUnknownChange, ev.Type)
	}
	return ev, nil
}
