// Package challenge issues and rotates the NIP-42 AUTH challenge string
// each connection presents to a client, per spec.md §4.6.
package challenge

import (
	"encoding/hex"
	"time"

	"lukechampine.com/frand"
)

// expiry is how long a challenge stays valid before _current_auth_challenge
// would mint a new one (original_source/relay/client_connection.py's
// _auth_challenge_expired uses a flat 300-second window).
const expiry = 300 * time.Second

// Issuer hands out the current auth challenge for one connection, minting a
// fresh one only once the prior one has expired. Not safe for concurrent
// use: a connection's read loop is single-goroutine, so no lock is needed.
type Issuer struct {
	relayID  string
	current  string
	issuedAt time.Time
	now      func() time.Time
}

// New returns an Issuer for relayID. Callers needing a deterministic clock
// for tests can set Issuer.now directly after construction.
func New(relayID string) *Issuer {
	return &Issuer{relayID: relayID, now: time.Now}
}

// Current returns the active challenge string, minting a new one if the
// prior one expired or none has been issued yet.
func (i *Issuer) Current() string {
	clock := i.now
	if clock == nil {
		clock = time.Now
	}
	if i.issuedAt.IsZero() || clock().Sub(i.issuedAt) > expiry {
		i.current = i.relayID + ":" + randomToken()
		i.issuedAt = clock()
	}
	return i.current
}

func randomToken() string {
	return hex.EncodeToString(frand.Bytes(16))
}
