// Package account holds the state of a federated identity account client: its
// configuration, authorization phase, session, profile and identity key pairs.
//
// An Account is safe for concurrent use. Every exported method takes the
// account lock for its full duration, so foreground calls and the background
// command poller are serialized. Mutating calls hand a complete snapshot to the
// registered Persister before they return.
package account
