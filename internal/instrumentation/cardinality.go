package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// Label values must come from small closed sets; never label a metric with
// a message id, a short id, an address or a phone number.

// ExtractUserDomain extracts the domain part from an email address,
// or "unknown".
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}

	return "unknown"
}

// Operation types for external API metrics and tool audit records.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationThread   = "thread"
	OperationSend     = "send"
	OperationModify   = "modify"
	OperationClassify = "classify"
	OperationDraft    = "draft"
	OperationLoad     = "load"
	OperationResolve  = "resolve"
	OperationSuggest  = "suggest"
)

// Sync outcomes.
const (
	SyncCacheHit  = "cache_hit"
	SyncRefreshed = "refreshed"
	SyncFailed    = "failed"
)

// Approval outcomes.
const (
	ApprovalSent         = "sent"
	ApprovalInvalid      = "invalid"
	ApprovalNotFound     = "not_found"
	ApprovalSendFailed   = "send_failed"
	ApprovalUnauthorized = "unauthorized"
)

// Suggestion outcomes.
const (
	SuggestionCreated      = "created"
	SuggestionNone         = "none"
	SuggestionFailed       = "failed"
	SuggestionNotifyFailed = "notify_failed"
	SuggestionSkipped      = "skipped"
)
