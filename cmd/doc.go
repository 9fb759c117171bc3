// Package cmd implements the command-line interface for venuedesk.
//
// This package provides the following commands:
//   - serve: Run the sync loop, the SMS approval poller, the HTTP API and the MCP server
//   - sync: Sync the inbox into the local cache once
//   - suggest: Draft a reply for the newest unanswered event email
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
