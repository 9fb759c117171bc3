package calendar

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/venuedesk/internal/model"
)

// Extended property keys read from bookings.
const (
	PropEmail      = "email"
	PropAttendance = "attendance"
	PropServices   = "services"
)

var descriptionEmail = regexp.MustCompile(`(?im)^\s*e-?mail\s*:\s*([^\s<>]+@[^\s<>]+)`)

// parseEventTime reads a timed or all-day boundary.
func parseEventTime(edt *calendar.EventDateTime) time.Time {
	if edt == nil {
		return time.Time{}
	}
	if edt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return t
		}
	} else if edt.Date != "" {
		if t, err := time.Parse("2006-01-02", edt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// toEvent converts a Google Calendar event into a booking.
func toEvent(e *calendar.Event) model.Event {
	var private map[string]string
	if e.ExtendedProperties != nil {
		private = e.ExtendedProperties.Private
	}

	ev := model.Event{
		ID:        e.Id,
		Name:      e.Summary,
		Email:     contactEmail(e, private),
		StartTime: parseEventTime(e.Start),
		EndTime:   parseEventTime(e.End),
		Room:      e.Location,
		Notes:     strings.TrimSpace(e.Description),
	}

	if n, err := strconv.Atoi(strings.TrimSpace(private[PropAttendance])); err == nil && n > 0 {
		ev.Attendance = n
	}
	for _, s := range strings.Split(private[PropServices], ",") {
		if s = strings.TrimSpace(s); s != "" {
			ev.Services = append(ev.Services, s)
		}
	}
	return ev
}

func contactEmail(e *calendar.Event, private map[string]string) string {
	if v := strings.TrimSpace(private[PropEmail]); v != "" {
		return v
	}
	for _, att := range e.Attendees {
		if att.Self || att.Resource || att.Organizer || att.Email == "" {
			continue
		}
		return att.Email
	}
	if m := descriptionEmail.FindStringSubmatch(e.Description); m != nil {
		return m[1]
	}
	return ""
}
