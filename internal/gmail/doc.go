// Package gmail is the mail gateway used by the venuedesk sync pipeline.
//
// It wraps the Gmail API v1 users service and offers exactly the
// operations the pipeline needs:
//   - ListInbox: list message ids for a query, paginating up to a maximum
//   - GetFull: fetch one message with headers, body parts and labels
//   - GetThread: fetch every message of a thread
//   - Send: compose and send an HTML message, optionally threaded as a reply
//   - ModifyLabels: add or remove labels (archiving removes INBOX)
//
// Read calls are retried with exponential backoff when Gmail reports rate
// limiting or a server error. Send is never retried: a failed send is
// returned to the caller, which decides what to do with it.
//
// Message bodies are decoded from the base64url payload tree. When a
// message carries only an HTML part, a plaintext rendition is derived with
// HTMLToText.
//
// Example usage:
//
//	httpClient, err := google.NewHTTPClient(ctx, google.NewFileTokenProvider(creds, token))
//	if err != nil {
//	    return err
//	}
//	client, err := gmail.NewClient(ctx, httpClient)
//	if err != nil {
//	    return err
//	}
//	refs, err := client.ListInbox(ctx, "in:inbox", 50)
package gmail
