package model

import (
	"slices"
	"strings"
)

// MessageRef identifies a message on the mail provider.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// Message is a cached inbound email with derived fields.
//
// ID and the content fields are immutable once hydrated. Replied, Category,
// AssociatedEventID, AssociatedEventName, HasNotified and
// ProcessedForSuggestions are derived and may change on later passes.
type Message struct {
	ID              string   `json:"id"`
	ThreadID        string   `json:"threadId"`
	InternalDate    int64    `json:"internalDate"`
	MessageIDHeader string   `json:"messageIdHeader,omitempty"`
	From            string   `json:"from"`
	To              string   `json:"to"`
	Subject         string   `json:"subject"`
	Text            string   `json:"text"`
	HTML            string   `json:"html,omitempty"`
	Labels          []string `json:"labels,omitempty"`
	Snippet         string   `json:"snippet,omitempty"`

	Replied                 bool    `json:"replied"`
	Category                string  `json:"category"`
	AssociatedEventID       *string `json:"associatedEventId"`
	AssociatedEventName     *string `json:"associatedEventName"`
	HasNotified             bool    `json:"hasNotified"`
	ProcessedForSuggestions bool    `json:"processedForSuggestions"`
}

// HasLabel reports whether the message carries the given label.
func (m Message) HasLabel(label string) bool {
	return slices.Contains(m.Labels, label)
}

// Association returns the message's current event association.
func (m Message) Association() Association {
	return Association{EventID: m.AssociatedEventID, EventName: m.AssociatedEventName}
}

// Association links a message to a booking event. Both fields are nil when
// no event matches.
type Association struct {
	EventID   *string `json:"eventId"`
	EventName *string `json:"eventName"`
}

// Found reports whether the association points at an event.
func (a Association) Found() bool {
	return a.EventID != nil
}

// NewAssociation builds an association for the given event.
func NewAssociation(e Event) Association {
	id, name := e.ID, e.Name
	return Association{EventID: &id, EventName: &name}
}

// CacheMetadata tracks freshness of the persisted cache.
type CacheMetadata struct {
	LastRetrieval          int64 `json:"lastRetrievalTimestamp"`
	LastAssociationRefresh int64 `json:"lastAssociationIndexRefresh"`
}

// NormalizeEmail lowercases and trims an address for index lookups.
func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
