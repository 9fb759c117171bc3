// Package google turns OAuth material produced out of band (a client
// credentials file and a token file) into authenticated HTTP clients for
// the Gmail and Calendar APIs.
//
// Token acquisition is not handled here. The token file may hold either a
// JSON-encoded oauth2.Token or the legacy "ACCESS REFRESH" pair.
package google
