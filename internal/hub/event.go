package hub

import "time"

// Event is a typed payload pushed to connected clients.
type Event struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification is the generic notification payload carried by a
// "notification" event.
type Notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// AttendanceUpdate is pushed whenever a subject's cached percentage changes.
type AttendanceUpdate struct {
	SubjectID            string `json:"subjectId"`
	AttendancePercentage int    `json:"attendancePercentage"`
}
