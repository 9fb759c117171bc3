package google

import (
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes are the OAuth scopes the service needs: reading and labelling
// mail, sending replies, and reading the booking calendar.
var Scopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
	calendar.CalendarReadonlyScope,
}
