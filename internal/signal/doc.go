// Package signal is the SMS gateway used to reach the venue operator.
//
// It wraps signal-cli: outbound messages go through `signal-cli send`,
// inbound operator commands are polled with `signal-cli -o json receive`.
// signal-cli must be installed and the account registered beforehand:
//
//	signal-cli -u +15551234567 register
//	signal-cli -u +15551234567 verify CODE
//
// Example usage:
//
//	client, err := signal.NewClient("+15551234567")
//	if err != nil {
//	    return err
//	}
//	_, err = client.Send(ctx, "+15559876543", "New email from ...")
package signal
