// Package common provides shared helpers for the MCP tool packages:
// instrumentation wrappers, argument parsing and batch result formatting.
package common
