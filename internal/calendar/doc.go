// Package calendar reads venue bookings from a Google Calendar.
//
// Each calendar event is one booking. The booking contact is taken from
// the event's private extended property "email", then from the first
// attendee that is not the calendar itself, then from an "Email:" line in
// the description. Attendance, services and notes come from the extended
// properties "attendance", "services" (comma separated) and the
// description.
//
// Example usage:
//
//	store, err := calendar.NewEventStore(ctx, httpClient, "bookings@group.calendar.google.com")
//	if err != nil {
//	    return err
//	}
//	events, err := store.LoadEvents(ctx)
package calendar
