package model

import "time"

// PendingStatus is the lifecycle state of a pending action.
type PendingStatus string

const (
	// StatusCreated means the draft was recorded and the operator notified.
	StatusCreated PendingStatus = "CREATED"
	// StatusResolved means an operator command claimed the action.
	StatusResolved PendingStatus = "RESOLVED"
)

// PendingAction is an AI-drafted reply awaiting operator approval.
type PendingAction struct {
	ShortID      string        `json:"shortId"`
	EmailID      string        `json:"emailId"`
	ProposedBody string        `json:"proposedBody"`
	Recipient    string        `json:"recipient"`
	Subject      string        `json:"subject"`
	ThreadID     string        `json:"threadId,omitempty"`
	InReplyTo    string        `json:"inReplyTo,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	Status       PendingStatus `json:"status"`
}

// History entry types written to the append-only ledger.
const (
	EntryPendingEmailResponse = "pendingEmailResponse"
	EntryPendingEmailResolved = "pendingEmailResolved"
	EntryEmailSent            = "emailSent"
	EntrySendFailure          = "sendFailure"
	EntrySMSSent              = "smsSent"
	EntrySMSFailure           = "smsFailure"
	EntryCommandRejected      = "commandRejected"
)

// HistoryEntry is one record of the append-only ledger.
type HistoryEntry struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}
