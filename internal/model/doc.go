// Package model holds the data types shared by the venuedesk pipeline:
// cached messages, booking events, pending approval actions and the
// category set used for classification.
//
// Types in this package carry no behaviour beyond small value helpers.
// Ownership of state lives with the components that mutate it (the sync
// engine owns messages, the ledger owns pending actions).
package model
