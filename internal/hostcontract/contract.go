// Package hostcontract defines the interfaces an external admin process or
// payment-credit listener uses to drive this relay host, without this
// module importing either collaborator (spec.md §6's host contract).
package hostcontract

import "github.com/relaynest/relaynest/internal/config"

// RelayAdmin is the surface an operator-facing admin process uses to bring
// relays up and down. internal/relay.Manager satisfies this interface.
type RelayAdmin interface {
	Enable(relayID string, spec config.RelaySpec) error
	Disable(relayID string) error
}

// PaymentCredit is the surface an external lightning-payment listener calls
// once an invoice is settled, crediting either a one-time relay join or
// additional storage. No invoice creation or wallet code lives in this
// module (spec.md's Non-goals) - the RelaySpec's payment fields are carried
// as opaque configuration for whatever implements this interface to read.
type PaymentCredit interface {
	CreditJoin(relayID, pubkey string, sats int64) error
	CreditStorage(relayID, pubkey string, bytes, sats int64) error
}
