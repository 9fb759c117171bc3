package signal

import "fmt"

// InboundMessage is a text message received from the SMS gateway.
type InboundMessage struct {
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SendResult describes an accepted outbound message.
type SendResult struct {
	// Timestamp is the gateway's message timestamp in epoch millis, or 0
	// when the gateway did not report one.
	Timestamp int64 `json:"timestamp"`
}

// SignalError represents an error that occurred during Signal operations
type SignalError struct {
	// Op is the operation that failed (e.g., "send", "receive")
	Op string

	// Account is the phone number the operation ran as
	Account string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *SignalError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("signal %s (account: %s): %v", e.Op, e.Account, e.Err)
	}
	return fmt.Sprintf("signal %s: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *SignalError) Unwrap() error {
	return e.Err
}
