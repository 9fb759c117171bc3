// Package association maps counterpart email addresses to booking events.
//
// The index is an immutable snapshot swapped atomically on refresh, so
// lookups never block on a rebuild. A snapshot older than the configured
// TTL (five minutes by default) is rebuilt before the next lookup.
package association
