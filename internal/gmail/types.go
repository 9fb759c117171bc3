package gmail

import (
	"fmt"
	"slices"
	"strings"
)

// Well-known Gmail system labels.
const (
	LabelInbox = "INBOX"
	LabelSent  = "SENT"
)

// Header is a single RFC 5322 header as returned by Gmail.
type Header struct {
	Name  string
	Value string
}

// FullMessage is a hydrated Gmail message with decoded bodies.
type FullMessage struct {
	ID           string
	ThreadID     string
	InternalDate int64
	LabelIDs     []string
	Snippet      string
	Headers      []Header

	// Text and HTML hold the first text/plain and text/html parts.
	Text string
	HTML string
}

// Header returns the first value of the named header, case-insensitively.
func (m *FullMessage) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HasLabel reports whether the message carries label.
func (m *FullMessage) HasLabel(label string) bool {
	return slices.Contains(m.LabelIDs, label)
}

// PlainText returns the plaintext body, deriving it from HTML when the
// message has no text/plain part.
func (m *FullMessage) PlainText() string {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	if m.HTML != "" {
		return HTMLToText(m.HTML)
	}
	return ""
}

// SendOptions thread an outbound message into an existing conversation.
type SendOptions struct {
	ThreadID   string
	InReplyTo  string
	References string
}

// TransientError marks a Gmail failure that may succeed when retried:
// rate limiting or a server-side error.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return fmt.Sprintf("gmail %s: transient: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *TransientError) Unwrap() error {
	return e.Err
}
