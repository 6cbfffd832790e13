package domain

import "strings"

// Identity is the opaque caller identity the host resolves for each request.
// The ledger only ever compares identities for equality and uses them as map
// keys; it never derives, parses, or validates them. The HTTP host supplies
// lowercase hex wallet addresses.
type Identity string

// NormalizeIdentity trims and lowercases a raw identity string so that
// lookups are insensitive to the mixed-case address forms wallets produce.
// Ledger state always holds normalized identities.
func NormalizeIdentity(raw string) Identity {
	return Identity(strings.ToLower(strings.TrimSpace(raw)))
}

// String returns the identity as a plain string.
func (id Identity) String() string { return string(id) }
