// Package logging provides structured logging helpers for venuedesk.
//
// All components log through log/slog with the attribute keys defined
// here, so that a message id, a pending-action short id or an operation
// name is spelled the same way everywhere.
//
// # Usage Patterns
//
//	logger := logging.WithComponent(slog.Default(), "emailsync")
//	logger.Info("hydrated message",
//	    logging.MessageID(id),
//	    logging.Status(logging.StatusSuccess))
//
// # Security Considerations
//
// Guest email addresses and phone numbers are personal data. They are
// hashed with UserHash and PhoneHash before they reach a log line, which
// still allows correlating entries for the same person.
package logging
