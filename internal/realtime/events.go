// Package realtime holds the live-session state of one API node: who is
// connected and what they are doing, and the fan-out of live events to the
// admin dashboards watching them.
package realtime

import (
	"encoding/json"
	"time"
)

// Outbound event names.
const (
	EventOnlineStudents      = "online_students"
	EventStudentStatusUpdate = "student_status_update"
	EventActivityUpdate      = "activity_update"
	EventScreenMirrorUpdate  = "screen_mirror_update"
)

// Inbound event names.
const (
	EventTestStarted  = "test_started"
	EventScreenUpdate = "screen_update"
	EventTestProgress = "test_progress"
)

// Event is the envelope exchanged over websocket connections.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals data into an envelope.
func NewEvent(name string, data interface{}) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: payload}, nil
}

// Decode unmarshals the event payload into target.
func (e Event) Decode(target interface{}) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("{}"), target)
	}
	return json.Unmarshal(e.Data, target)
}

// Status is the live state of a connected session.
type Status string

const (
	StatusOnline  Status = "online"
	StatusTesting Status = "testing"
)

// StatusUpdate is the delta published when one session changes state.
type StatusUpdate struct {
	StudentID   uint      `json:"studentId"`
	Name        string    `json:"name"`
	Group       string    `json:"group"`
	Status      Status    `json:"status"`
	CurrentTest string    `json:"currentTest,omitempty"`
	Progress    *int      `json:"progress,omitempty"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// ActivityUpdate is broadcast to dashboards when something noteworthy happens.
type ActivityUpdate struct {
	ID          uint                   `json:"id,omitempty"`
	StudentID   uint                   `json:"studentId"`
	StudentName string                 `json:"studentName"`
	Action      string                 `json:"action"`
	TestID      uint                   `json:"testId,omitempty"`
	TestTitle   string                 `json:"testTitle,omitempty"`
	Score       *int                   `json:"score,omitempty"`
	Percentage  *int                   `json:"percentage,omitempty"`
	Passed      *bool                  `json:"passed,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}
