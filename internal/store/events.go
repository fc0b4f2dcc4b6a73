package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relaynest/relaynest/internal/nostr"
)

// ErrConflict is returned by InsertEvent when (relay_id, id) already exists.
var ErrConflict = errors.New("event already exists")

// eventRow is the column-for-column shape of the events table.
type eventRow struct {
	RelayID    string `db:"relay_id"`
	ID         string `db:"id"`
	Deleted    bool   `db:"deleted"`
	Publisher  string `db:"publisher"`
	PubKey     string `db:"pubkey"`
	CreatedAt  int64  `db:"created_at"`
	Kind       int    `db:"kind"`
	Content    string `db:"content"`
	Sig        string `db:"sig"`
	Size       int    `db:"size"`
	ReceivedAt int64  `db:"received_at"`
}

// InsertEvent persists event and its tags in one transaction. Grounded on
// original_source/crud.py's create_event + create_event_tags: event row
// first, then one event_tags row per tag, extra values folded into a JSON
// array via tags.go's encodeExtra.
func (s *Store) InsertEvent(relayID, publisher string, e *nostr.Event) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin insert event: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		s.db.Rebind(`
			INSERT INTO events (relay_id, publisher, id, pubkey, created_at, kind, content, sig, size, received_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (relay_id, id) DO NOTHING
		`),
		relayID, publisher, e.ID, e.PubKey, e.CreatedAt, e.Kind, e.Content, e.Sig, e.SizeBytes(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrConflict
	}

	for _, tag := range e.Tags {
		if len(tag) < 2 {
			continue
		}
		extra := encodeExtra(tag[2:])
		_, err = tx.Exec(
			s.db.Rebind(`INSERT INTO event_tags (relay_id, event_id, name, value, extra) VALUES (?, ?, ?, ?, ?)`),
			relayID, e.ID, tag[0], tag[1], extra,
		)
		if err != nil {
			return fmt.Errorf("insert event tag: %w", err)
		}
	}

	return tx.Commit()
}

// GetEvent returns a single non-deleted event with its tags reassembled, or
// nil if it doesn't exist.
func (s *Store) GetEvent(relayID, id string) (*nostr.Event, error) {
	var row eventRow
	err := s.db.Get(&row, s.db.Rebind(`SELECT * FROM events WHERE relay_id = ? AND id = ? AND deleted = false`), relayID, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	tags, err := s.getEventTags(relayID, id)
	if err != nil {
		return nil, err
	}

	return rowToEvent(row, tags), nil
}

// QueryEvents translates filter into a SQL query and returns matching
// events, newest first. Grounded on original_source/relay/filter.py's
// to_sql_components and crud.py's build_select_events_query: #e/#p/#d tag
// filters each get their own INNER JOIN against event_tags, ids/authors/
// kinds become IN clauses, since is inclusive and until is exclusive.
func (s *Store) QueryEvents(relayID string, filter *nostr.Filter) ([]*nostr.Event, error) {
	joins, where, args := filterToSQLComponents(relayID, filter)

	query := "SELECT events.* FROM events " + strings.Join(joins, " ") +
		" WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	var rows []eventRow
	if err := s.db.Select(&rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	events := make([]*nostr.Event, 0, len(rows))
	for _, row := range rows {
		tags, err := s.getEventTags(relayID, row.ID)
		if err != nil {
			return nil, err
		}
		events = append(events, rowToEvent(row, tags))
	}
	return events, nil
}

func filterToSQLComponents(relayID string, filter *nostr.Filter) (joins, where []string, args []interface{}) {
	where = []string{"events.deleted = false", "events.relay_id = ?"}
	args = append(args, relayID)

	addTagJoin := func(alias, tagName string, values []string) {
		if len(values) == 0 {
			return
		}
		joins = append(joins, fmt.Sprintf(
			"INNER JOIN event_tags %s ON events.relay_id = %s.relay_id AND events.id = %s.event_id", alias, alias, alias))
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		where = append(where, fmt.Sprintf("(%s.value IN (%s) AND %s.name = '%s')", alias, placeholders, alias, tagName))
		for _, v := range values {
			args = append(args, v)
		}
	}

	addTagJoin("e_tags", "e", filter.Tags[nostr.TagE])
	addTagJoin("p_tags", "p", filter.Tags[nostr.TagP])
	addTagJoin("d_tags", "d", filter.Tags[nostr.TagD])

	if len(filter.IDs) != 0 {
		where = append(where, "events.id IN ("+strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")+")")
		for _, v := range filter.IDs {
			args = append(args, v)
		}
	}

	if len(filter.Authors) != 0 {
		where = append(where, "events.pubkey IN ("+strings.TrimSuffix(strings.Repeat("?,", len(filter.Authors)), ",")+")")
		for _, v := range filter.Authors {
			args = append(args, v)
		}
	}

	if len(filter.Kinds) != 0 {
		where = append(where, "events.kind IN ("+strings.TrimSuffix(strings.Repeat("?,", len(filter.Kinds)), ",")+")")
		for _, v := range filter.Kinds {
			args = append(args, v)
		}
	}

	if filter.Since != nil {
		where = append(where, "events.created_at >= ?")
		args = append(args, *filter.Since)
	}

	if filter.Until != nil {
		where = append(where, "events.created_at < ?")
		args = append(args, *filter.Until)
	}

	return joins, where, args
}

// MarkDeleted flags matching events deleted rather than physically
// removing them, mirroring original_source/crud.py's mark_events_deleted
// (NIP-09 soft delete keeps the row so a later re-publish of the same id
// still hits the primary key conflict).
func (s *Store) MarkDeleted(relayID string, filter *nostr.Filter) error {
	if filter.IsEmpty() {
		return nil
	}
	_, where, args := filterToSQLComponents(relayID, filter)
	query := "UPDATE events SET deleted = true WHERE " + strings.Join(where, " AND ")
	_, err := s.db.Exec(s.db.Rebind(query), args...)
	return err
}

// DeleteEvents physically removes matching events and their tags. Used for
// replaceable-event supersession, where the prior row must not linger.
func (s *Store) DeleteEvents(relayID string, filter *nostr.Filter) error {
	if filter.IsEmpty() {
		return nil
	}
	_, where, args := filterToSQLComponents(relayID, filter)

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ids []string
	selectQuery := "SELECT events.id FROM events WHERE " + strings.Join(where, " AND ")
	if err := tx.Select(&ids, s.db.Rebind(selectQuery), args...); err != nil {
		return fmt.Errorf("select events to delete: %w", err)
	}

	deleteQuery := "DELETE FROM events WHERE " + strings.Join(where, " AND ")
	if _, err := tx.Exec(s.db.Rebind(deleteQuery), args...); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}

	for _, id := range ids {
		if _, err := tx.Exec(s.db.Rebind(`DELETE FROM event_tags WHERE relay_id = ? AND event_id = ?`), relayID, id); err != nil {
			return fmt.Errorf("delete event tags: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteAll removes every event (and tag) belonging to relayID. Used when a
// relay is deleted outright.
func (s *Store) DeleteAll(relayID string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.db.Rebind(`DELETE FROM event_tags WHERE relay_id = ?`), relayID); err != nil {
		return err
	}
	if _, err := tx.Exec(s.db.Rebind(`DELETE FROM events WHERE relay_id = ?`), relayID); err != nil {
		return err
	}
	return tx.Commit()
}

// StorageUsed returns the cumulative size in bytes of every event (deleted
// or not) ever published by pubkey on relayID, per
// original_source/crud.py's get_storage_for_public_key.
func (s *Store) StorageUsed(relayID, pubkey string) (int64, error) {
	var sum sql.NullInt64
	err := s.db.Get(&sum, s.db.Rebind(`SELECT SUM(size) FROM events WHERE relay_id = ? AND publisher = ?`), relayID, pubkey)
	if err != nil {
		return 0, fmt.Errorf("storage used: %w", err)
	}
	return sum.Int64, nil
}

// oldestEvent is the (id, size) pair returned by OldestEvents.
type oldestEvent struct {
	ID   string `db:"id"`
	Size int    `db:"size"`
}

// OldestEvents returns up to 10,000 of the oldest events for (relayID,
// pubkey), ordered ascending by created_at, for the pruning sweep
// (spec.md §4.5). Grounded on original_source/crud.py's get_prunable_events.
func (s *Store) OldestEvents(relayID, pubkey string) ([]struct {
	ID   string
	Size int64
}, error) {
	var rows []oldestEvent
	err := s.db.Select(&rows, s.db.Rebind(`
		SELECT id, size FROM events
		WHERE relay_id = ? AND pubkey = ?
		ORDER BY created_at ASC LIMIT 10000
	`), relayID, pubkey)
	if err != nil {
		return nil, fmt.Errorf("oldest events: %w", err)
	}

	out := make([]struct {
		ID   string
		Size int64
	}, len(rows))
	for i, r := range rows {
		out[i].ID = r.ID
		out[i].Size = int64(r.Size)
	}
	return out, nil
}

func (s *Store) getEventTags(relayID, eventID string) ([][]string, error) {
	var rows []struct {
		Name  string         `db:"name"`
		Value string         `db:"value"`
		Extra sql.NullString `db:"extra"`
	}
	err := s.db.Select(&rows, s.db.Rebind(`SELECT name, value, extra FROM event_tags WHERE relay_id = ? AND event_id = ?`), relayID, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event tags: %w", err)
	}

	tags := make([][]string, 0, len(rows))
	for _, r := range rows {
		tag := []string{r.Name, r.Value}
		if r.Extra.Valid && r.Extra.String != "" {
			tag = append(tag, decodeExtra(r.Extra.String)...)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func rowToEvent(row eventRow, tags [][]string) *nostr.Event {
	return &nostr.Event{
		ID:        row.ID,
		PubKey:    row.PubKey,
		CreatedAt: row.CreatedAt,
		Kind:      row.Kind,
		Tags:      tags,
		Content:   row.Content,
		Sig:       row.Sig,
	}
}
