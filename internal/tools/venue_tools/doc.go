// Package venue_tools exposes the venuedesk inbox and approval workflow as
// MCP tools.
//
// Read tools are always registered. Tools that change mailbox state, send
// mail or send SMS are registered only when write operations are enabled.
package venue_tools
