// Package relay implements the multi-tenant Nostr relay: one WebSocket
// connection state machine per client, fanned out across per-relay client
// sets by Manager.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/relaynest/relaynest/internal/challenge"
	"github.com/relaynest/relaynest/internal/config"
	"github.com/relaynest/relaynest/internal/nostr"
	"github.com/relaynest/relaynest/internal/store"
	"github.com/relaynest/relaynest/internal/validator"
)

// sendQueueSize bounds how many outgoing frames a slow client can fall
// behind by before the connection is dropped (spec.md §5).
const sendQueueSize = 256

// subscription pairs a client-chosen id with the filter currently active
// for it; a REQ for an existing id replaces the prior filter entirely.
type subscription struct {
	id     string
	filter *nostr.Filter
}

// Connection is one client's WebSocket state machine, pinned to a single
// relay_id for its whole lifetime (spec.md §4.6). Grounded on
// original_source/relay/client_connection.py's NostrClientConnection, with
// the Python event loop's single coroutine replaced by a dedicated writer
// goroutine and a bounded send channel.
type Connection struct {
	relayID string
	conn    *websocket.Conn
	store   *store.Store
	val     *validator.Validator
	manager *Manager

	challenge *challenge.Issuer
	rate      validator.RateCounter

	mu            sync.Mutex
	pubkey        string
	subscriptions []subscription

	send     chan []interface{}
	done     chan struct{}
	stopOnce sync.Once
}

func newConnection(relayID string, conn *websocket.Conn, m *Manager) *Connection {
	return &Connection{
		relayID:   relayID,
		conn:      conn,
		store:     m.store,
		val:       m.validator,
		manager:   m,
		challenge: challenge.New(relayID),
		send:      make(chan []interface{}, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Pubkey returns the authenticated pubkey, or "" if the connection has not
// completed a NIP-42 AUTH exchange.
func (c *Connection) Pubkey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pubkey
}

// Serve runs the connection's read loop until the client disconnects or the
// relay is shut down. It owns the underlying websocket and closes it on
// return.
func (c *Connection) Serve() {
	go c.writeLoop()
	defer close(c.done)
	defer c.conn.Close()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("relay_id", c.relayID).Msg("websocket read error")
			}
			return
		}
		c.handleMessage(raw)
	}
}

// Stop force-closes the connection with a NOTICE, mirroring
// NostrClientConnection.stop. The actual socket close happens once the
// writer has flushed the NOTICE, so the client reliably sees the reason
// before the connection drops.
func (c *Connection) Stop(reason string) {
	if reason == "" {
		reason = "server closed websocket"
	}
	c.stopOnce.Do(func() {
		c.enqueue([]interface{}{"NOTICE", reason})
		close(c.send)
	})
}

func (c *Connection) writeLoop() {
	defer c.conn.Close()
	for frame := range c.send {
		b, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// enqueue never blocks a slow peer; a full send queue means the peer isn't
// keeping up, and spec.md §5 requires disconnecting it outright rather than
// leaving it silently desynced. Stop enqueues its own NOTICE through this
// same path, so a still-full queue just drops that notice too and proceeds
// straight to closing the socket.
func (c *Connection) enqueue(frame []interface{}) {
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("relay_id", c.relayID).Msg("dropping frame for slow client, closing connection")
		go c.Stop("backlog exceeded")
	}
}

func (c *Connection) handleMessage(raw []byte) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) < 2 {
		return
	}

	var msgType string
	if err := json.Unmarshal(parts[0], &msgType); err != nil {
		return
	}

	switch msgType {
	case "EVENT":
		var e nostr.Event
		if err := json.Unmarshal(parts[1], &e); err != nil {
			return
		}
		c.handleEvent(&e)
	case "REQ":
		if len(parts) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return
		}
		var filter nostr.Filter
		if err := json.Unmarshal(parts[2], &filter); err != nil {
			return
		}
		c.handleRequest(subID, &filter)
	case "CLOSE":
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return
		}
		c.removeSubscription(subID)
	case "AUTH":
		c.enqueue([]interface{}{"AUTH", c.challenge.Current()})
	}
}

func (c *Connection) spec() (config.RelaySpec, error) {
	return c.manager.registry.Get(c.relayID)
}

func (c *Connection) handleEvent(e *nostr.Event) {
	log.Info().Str("relay_id", c.relayID).Int("kind", e.Kind).Str("pubkey", e.PubKey).Msg("nostr event")

	spec, err := c.spec()
	if err != nil {
		c.enqueue([]interface{}{"OK", e.ID, false, "error: relay not active"})
		return
	}

	if e.IsAuthResponse() {
		reason := c.val.ValidateAuth(&spec, e, c.challenge.Current())
		if reason != validator.ReasonNone {
			c.enqueue([]interface{}{"OK", e.ID, false, reason.Wire()})
			return
		}
		c.mu.Lock()
		c.pubkey = e.PubKey
		c.mu.Unlock()
		return
	}

	authed := c.Pubkey()
	if authed == "" && spec.EventRequiresAuth(e.Kind) {
		c.enqueue([]interface{}{"AUTH", c.challenge.Current()})
		c.enqueue([]interface{}{"OK", e.ID, false, fmt.Sprintf("restricted: relay requires authentication for events of kind '%d'", e.Kind)})
		return
	}

	publisher := authed
	if publisher == "" {
		publisher = e.PubKey
	}

	reason := c.val.ValidateWrite(&spec, &c.rate, e, publisher)
	if reason != validator.ReasonNone {
		c.enqueue([]interface{}{"OK", e.ID, false, reason.Wire()})
		return
	}

	ok, message := c.persistAndBroadcast(e, publisher)
	c.enqueue([]interface{}{"OK", e.ID, ok, message})
}

// persistAndBroadcast runs the replaceable-event supersession, storage
// write, broadcast and NIP-09 delete handling in the order
// client_connection.py's _handle_event uses.
func (c *Connection) persistAndBroadcast(e *nostr.Event, publisher string) (bool, string) {
	if e.IsReplaceable() {
		if err := c.store.DeleteEvents(c.relayID, &nostr.Filter{
			Kinds:   []int{e.Kind},
			Authors: []string{e.PubKey},
			Until:   &e.CreatedAt,
		}); err != nil {
			log.Debug().Err(err).Msg("failed to delete superseded events")
		}
	}

	if !e.IsEphemeral() {
		if err := c.store.InsertEvent(c.relayID, publisher, e); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return false, "error: event already exists"
			}
			log.Debug().Err(err).Msg("failed to create event")
			return false, "error: failed to create event"
		}
		c.val.RecordWrite(c.relayID, publisher, int64(e.SizeBytes()))
	}

	c.manager.BroadcastEvent(c, e)

	if e.IsDeleteEvent() {
		c.handleDeleteEvent(e)
	}

	return true, ""
}

// handleDeleteEvent implements NIP-09: only events authored by the delete
// event's own author may be deleted, and delete events themselves cannot be
// transitively deleted by reference.
func (c *Connection) handleDeleteEvent(e *nostr.Event) {
	var ids []string
	for _, tagValue := range e.TagValues("e") {
		ids = append(ids, tagValue)
	}
	if len(ids) == 0 {
		return
	}

	targets, err := c.store.QueryEvents(c.relayID, &nostr.Filter{Authors: []string{e.PubKey}, IDs: ids})
	if err != nil {
		return
	}

	var survivors []string
	for _, target := range targets {
		if !target.IsDeleteEvent() {
			survivors = append(survivors, target.ID)
		}
	}
	if len(survivors) == 0 {
		return
	}

	if err := c.store.MarkDeleted(c.relayID, &nostr.Filter{IDs: survivors}); err != nil {
		log.Debug().Err(err).Msg("failed to mark events deleted")
	}
}

func (c *Connection) handleRequest(subID string, filter *nostr.Filter) {
	spec, err := c.spec()
	if err != nil {
		return
	}

	if c.Pubkey() == "" && spec.RequireAuthFilter {
		c.enqueue([]interface{}{"AUTH", c.challenge.Current()})
		return
	}

	c.replaceSubscription(subID, filter, spec.MaxClientFilters)
	filter.EnforceLimit(spec.LimitPerFilter)

	events, err := c.store.QueryEvents(c.relayID, filter)
	if err != nil {
		c.enqueue([]interface{}{"EOSE", subID})
		return
	}

	for _, e := range events {
		if c.isDirectMessageForOther(e, &spec) {
			continue
		}
		c.enqueue(e.SerializeResponse(subID))
	}
	c.enqueue([]interface{}{"EOSE", subID})
}

// replaceSubscription drops any existing filter with the same subscription
// id (REQ is replace-not-append) and, space permitting, installs the new
// one. Exceeding max_client_filters yields a NOTICE instead of accepting
// the new filter.
func (c *Connection) replaceSubscription(subID string, filter *nostr.Filter, maxFilters int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.subscriptions[:0]
	for _, s := range c.subscriptions {
		if s.id != subID {
			kept = append(kept, s)
		}
	}
	c.subscriptions = kept

	if maxFilters != 0 && len(c.subscriptions) >= maxFilters {
		c.enqueue([]interface{}{"NOTICE", fmt.Sprintf("maximum number of filters (%d) exceeded", maxFilters)})
		return
	}

	c.subscriptions = append(c.subscriptions, subscription{id: subID, filter: filter})
}

func (c *Connection) removeSubscription(subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.subscriptions[:0]
	for _, s := range c.subscriptions {
		if s.id != subID {
			kept = append(kept, s)
		}
	}
	c.subscriptions = kept
}

// notifyEvent pushes e to every live subscription whose filter matches,
// skipping direct messages this connection should not see.
func (c *Connection) notifyEvent(e *nostr.Event, spec *config.RelaySpec) {
	if c.isDirectMessageForOther(e, spec) {
		return
	}

	c.mu.Lock()
	subs := make([]subscription, len(c.subscriptions))
	copy(subs, c.subscriptions)
	c.mu.Unlock()

	for _, s := range subs {
		if s.filter.Matches(e) {
			c.enqueue(e.SerializeResponse(s.id))
			return
		}
	}
}

// isDirectMessageForOther implements the asymmetric DM visibility rule
// from client_connection.py's _is_direct_message_for_other: a DM is hidden
// from any connection that is not its tagged recipient or its author, but
// only once the relay actually requires auth for kind 4 (otherwise DMs are
// public like any other event).
func (c *Connection) isDirectMessageForOther(e *nostr.Event, spec *config.RelaySpec) bool {
	if !e.IsDirectMessage() {
		return false
	}
	if !spec.EventRequiresAuth(e.Kind) {
		return false
	}
	pubkey := c.Pubkey()
	if pubkey == "" {
		return true
	}
	return pubkey != e.PubKey && !e.HasTagValue("p", pubkey)
}

var errConnectionClosed = errors.New("connection closed")

// waitClosed blocks until the connection's read loop has exited, used by
// Manager during relay shutdown to confirm every client drained.
func (c *Connection) waitClosed(timeout time.Duration) error {
	select {
	case <-c.done:
		return nil
	case <-time.After(timeout):
		return errConnectionClosed
	}
}
