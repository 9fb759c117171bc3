// Package store persists the venuedesk message cache, cache metadata and
// the append-only approval history in a local SQLite database.
//
// The database is opened through sqlx on the pure-Go modernc driver, runs
// in WAL mode, and is upgraded by an ordered list of schema migrations.
package store
