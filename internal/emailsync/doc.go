// Package emailsync keeps the local message cache in step with the inbox.
//
// Engine.GetAllEmails lists the inbox, hydrates only ids the cache has not
// seen through a bounded worker pool, enriches each new message with its
// reply state, event association and category, merges the result into the
// cache and persists it. A cache refreshed within the current minute is
// served without contacting the mail provider.
package emailsync
