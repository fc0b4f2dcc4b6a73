package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaynest/relaynest/internal/config"
)

// RelayRow is a relay's identity metadata plus its RelaySpec, serialized to
// spec_json the way original_source/crud.py folds RelaySpec into the
// relays.meta column.
type RelayRow struct {
	RelayID     string `db:"relay_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	PubKey      string `db:"pubkey"`
	Contact     string `db:"contact"`
	Enabled     bool   `db:"enabled"`
	SpecJSON    string `db:"spec_json"`
	CreatedAt   int64  `db:"created_at"`
}

// Spec deserializes the stored spec_json into a config.RelaySpec.
func (r *RelayRow) Spec() (config.RelaySpec, error) {
	var spec config.RelaySpec
	if r.SpecJSON != "" {
		if err := json.Unmarshal([]byte(r.SpecJSON), &spec); err != nil {
			return spec, fmt.Errorf("decode relay spec: %w", err)
		}
	}
	spec.RelayID = r.RelayID
	spec.Name = r.Name
	spec.Enabled = r.Enabled
	return spec, nil
}

// CreateRelay inserts a new relay row with spec serialized to JSON.
func (s *Store) CreateRelay(name, description, pubkey, contact string, spec config.RelaySpec) (*RelayRow, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode relay spec: %w", err)
	}

	row := &RelayRow{
		RelayID:     spec.RelayID,
		Name:        name,
		Description: description,
		PubKey:      pubkey,
		Contact:     contact,
		Enabled:     spec.Enabled,
		SpecJSON:    string(specJSON),
		CreatedAt:   time.Now().Unix(),
	}

	_, err = s.db.Exec(s.db.Rebind(`
		INSERT INTO relays (relay_id, name, description, pubkey, contact, enabled, spec_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), row.RelayID, row.Name, row.Description, row.PubKey, row.Contact, row.Enabled, row.SpecJSON, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create relay: %w", err)
	}
	return row, nil
}

// UpdateRelay overwrites the mutable columns of an existing relay row.
func (s *Store) UpdateRelay(relayID, name, description, pubkey, contact string, spec config.RelaySpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode relay spec: %w", err)
	}

	_, err = s.db.Exec(s.db.Rebind(`
		UPDATE relays SET name = ?, description = ?, pubkey = ?, contact = ?, enabled = ?, spec_json = ?
		WHERE relay_id = ?
	`), name, description, pubkey, contact, spec.Enabled, string(specJSON), relayID)
	if err != nil {
		return fmt.Errorf("update relay: %w", err)
	}
	return nil
}

// GetRelay returns a relay's stored row, or nil if relayID is unknown.
func (s *Store) GetRelay(relayID string) (*RelayRow, error) {
	var row RelayRow
	err := s.db.Get(&row, s.db.Rebind(`SELECT * FROM relays WHERE relay_id = ?`), relayID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get relay: %w", err)
	}
	return &row, nil
}

// ListRelays returns every stored relay row, ordered by relay_id.
func (s *Store) ListRelays() ([]*RelayRow, error) {
	var rows []*RelayRow
	if err := s.db.Select(&rows, `SELECT * FROM relays ORDER BY relay_id ASC`); err != nil {
		return nil, fmt.Errorf("list relays: %w", err)
	}
	return rows, nil
}

// ActiveRelaySpecs returns the RelaySpec of every enabled relay, the set
// the registry hydrates from on startup. Grounded on
// original_source/crud.py's get_config_for_all_active_relays.
func (s *Store) ActiveRelaySpecs() (map[string]config.RelaySpec, error) {
	rows, err := s.ListRelays()
	if err != nil {
		return nil, err
	}

	specs := make(map[string]config.RelaySpec)
	for _, row := range rows {
		if !row.Enabled {
			continue
		}
		spec, err := row.Spec()
		if err != nil {
			return nil, err
		}
		specs[row.RelayID] = spec
	}
	return specs, nil
}

// DeleteRelay removes a relay's row; its events and tags are left to
// DeleteAll, called separately so a caller can choose to keep history. The
// relay's accounts are removed by neither.
func (s *Store) DeleteRelay(relayID string) error {
	_, err := s.db.Exec(s.db.Rebind(`DELETE FROM relays WHERE relay_id = ?`), relayID)
	if err != nil {
		return fmt.Errorf("delete relay: %w", err)
	}
	return nil
}
