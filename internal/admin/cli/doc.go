// Package cli provides the interactive admin console for the registration
// server.
//
// It loads configuration, asks for the admin secret when none is
// configured, and runs a REPL over the admin HTTP API:
//   - pending payments, per-event registrations and single lookups
//   - verifying or rejecting a payment
//   - listing, reading, writing and deleting settings
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
