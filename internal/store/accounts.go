package store

import (
	"database/sql"
	"fmt"
)

// Account is a pubkey's standing on one relay: accumulated sats credited,
// storage bytes granted on top of the relay's free allowance, and the
// admission flags the
// validator consults on every write (spec.md §4.4).
type Account struct {
	RelayID    string `db:"relay_id"`
	PubKey     string `db:"pubkey"`
	Sats       int64  `db:"sats"`
	Storage    int64  `db:"storage"`
	PaidToJoin bool   `db:"paid_to_join"`
	Allowed    bool   `db:"allowed"`
	Blocked    bool   `db:"blocked"`
}

// CanJoin reports whether the account may write to a paid relay: either it
// already paid the one-time join cost, or it was explicitly allow-listed.
// Grounded on original_source/models.py's NostrAccount.can_join.
func (a *Account) CanJoin() bool {
	return a.PaidToJoin || a.Allowed
}

// NullAccount is the zero-value standing used when a pubkey has never been
// seen on a relay, matching original_source/models.py's
// NostrAccount.null_account (not allowed, not blocked, nothing paid).
func NullAccount(pubkey string) *Account {
	return &Account{PubKey: pubkey}
}

// GetAccount returns the account row for (relayID, pubkey), or nil if the
// pubkey has never been seen on this relay. A nil Account with a nil error
// is the "unknown account" case the validator treats per spec.md §4.4 (an
// unknown pubkey on a paid relay that hasn't paid to join is rejected).
func (s *Store) GetAccount(relayID, pubkey string) (*Account, error) {
	var a Account
	err := s.db.Get(&a, s.db.Rebind(`SELECT * FROM accounts WHERE relay_id = ? AND pubkey = ?`), relayID, pubkey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// UpsertAccount inserts a's row or overwrites the mutable columns of an
// existing one. Grounded on original_source/crud.py's create_account and
// update_account, folded into one call since callers here always have the
// full desired row in hand.
func (s *Store) UpsertAccount(a *Account) error {
	_, err := s.db.Exec(s.db.Rebind(`
		INSERT INTO accounts (relay_id, pubkey, sats, storage, paid_to_join, allowed, blocked)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (relay_id, pubkey) DO UPDATE SET
			sats = excluded.sats,
			storage = excluded.storage,
			paid_to_join = excluded.paid_to_join,
			allowed = excluded.allowed,
			blocked = excluded.blocked
	`), a.RelayID, a.PubKey, a.Sats, a.Storage, a.PaidToJoin, a.Allowed, a.Blocked)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// ListAccounts returns every account on relayID matching the given allowed/
// blocked flags, grounded on original_source/crud.py's get_accounts.
func (s *Store) ListAccounts(relayID string, allowed, blocked bool) ([]*Account, error) {
	var accounts []*Account
	err := s.db.Select(&accounts, s.db.Rebind(`
		SELECT * FROM accounts WHERE relay_id = ? AND allowed = ? AND blocked = ?
	`), relayID, allowed, blocked)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}
