package model

import "time"

// Event is a venue booking owned by the external event store.
type Event struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Attendance int       `json:"attendance,omitempty"`
	Services   []string  `json:"services,omitempty"`
	Room       string    `json:"room,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}
