// Package browserid implements the legacy identity key pairs used to mint
// signed identity assertions. The only concrete scheme is DSA; callers work
// against the KeyPair interface so further schemes can be added here without
// touching the account state machine.
package browserid
