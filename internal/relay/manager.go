package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/relaynest/relaynest/internal/config"
	"github.com/relaynest/relaynest/internal/hostcontract"
	"github.com/relaynest/relaynest/internal/nostr"
	"github.com/relaynest/relaynest/internal/registry"
	"github.com/relaynest/relaynest/internal/store"
	"github.com/relaynest/relaynest/internal/validator"
)

// Manager satisfies hostcontract.RelayAdmin, so an external admin process
// can drive relay lifecycle through that interface alone.
var _ hostcontract.RelayAdmin = (*Manager)(nil)

// clientSet is the live connection list for one relay_id, guarded by its
// own mutex so broadcast and connect/disconnect never block each other's
// relay neighbours.
type clientSet struct {
	mu      sync.Mutex
	clients map[*Connection]struct{}
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[*Connection]struct{})}
}

// Manager fans WebSocket connections out across relays and broadcasts
// events within a relay's client set. Grounded on
// original_source/relay/client_manager.py's NostrClientManager, with
// Python's dict-of-lists replaced by an xsync map of mutex-guarded sets so
// concurrent connects on different relays don't contend.
type Manager struct {
	registry  *registry.Registry
	store     *store.Store
	validator *validator.Validator

	sets *xsync.MapOf[string, *clientSet]

	upgrader websocket.Upgrader
}

// New constructs a Manager backed by reg for relay config lookups and s for
// event persistence, with no storage-accounting cache.
func New(reg *registry.Registry, s *store.Store) *Manager {
	return newManager(reg, s, validator.New(s))
}

// NewWithCache constructs a Manager whose validator fronts storage-used
// lookups with cache, avoiding a SQL SUM() aggregate on every write.
func NewWithCache(reg *registry.Registry, s *store.Store, cache *store.StorageCache) *Manager {
	return newManager(reg, s, validator.NewWithCache(s, cache))
}

func newManager(reg *registry.Registry, s *store.Store, val *validator.Validator) *Manager {
	return &Manager{
		registry:  reg,
		store:     s,
		validator: val,
		sets:      xsync.NewMapOf[string, *clientSet](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (m *Manager) clientsFor(relayID string) *clientSet {
	set, _ := m.sets.LoadOrStore(relayID, newClientSet())
	return set
}

// Accept upgrades r to a WebSocket, registers the resulting connection
// under relayID if the relay is active, and serves it until disconnect.
// Grounded on client_manager.py's add_client/_allow_client.
func (m *Manager) Accept(relayID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	if !m.registry.Active(relayID) {
		msg, _ := json.Marshal([]interface{}{"NOTICE", "relay '" + relayID + "' is not active"})
		conn.WriteMessage(websocket.TextMessage, msg)
		conn.Close()
		return nil
	}

	c := newConnection(relayID, conn, m)
	m.addClient(c)
	defer m.removeClient(c)

	c.Serve()
	return nil
}

func (m *Manager) addClient(c *Connection) {
	set := m.clientsFor(c.relayID)
	set.mu.Lock()
	defer set.mu.Unlock()
	set.clients[c] = struct{}{}
}

func (m *Manager) removeClient(c *Connection) {
	set := m.clientsFor(c.relayID)
	set.mu.Lock()
	defer set.mu.Unlock()
	delete(set.clients, c)
}

// BroadcastEvent delivers e to every connection on source's relay,
// including source itself. Grounded on client_manager.py's broadcast_event,
// which iterates the full client list with no self-skip (spec.md §9's
// locked Open Question: self-delivery is intentional, a client's own REQ
// subscriptions should see its own writes).
func (m *Manager) BroadcastEvent(source *Connection, e *nostr.Event) {
	spec, err := m.registry.Get(source.relayID)
	if err != nil {
		return
	}

	set := m.clientsFor(source.relayID)
	set.mu.Lock()
	targets := make([]*Connection, 0, len(set.clients))
	for c := range set.clients {
		targets = append(targets, c)
	}
	set.mu.Unlock()

	for _, c := range targets {
		c.notifyEvent(e, &spec)
	}
}

// Disable stops every connection currently on relayID, waiting up to five
// seconds for each to close, then deactivates the relay in the registry.
// Grounded on client_manager.py's disable_relay. The relay stays active
// while the connections are being stopped, so a connection accepted in that
// window is not stopped by this call.
func (m *Manager) Disable(relayID string) error {
	m.stopClientsFor(relayID, "relay '"+relayID+"' has been deactivated")
	return m.registry.Disable(relayID)
}

func (m *Manager) stopClientsFor(relayID, reason string) {
	set := m.clientsFor(relayID)
	set.mu.Lock()
	targets := make([]*Connection, 0, len(set.clients))
	for c := range set.clients {
		targets = append(targets, c)
	}
	set.mu.Unlock()

	for _, c := range targets {
		c.Stop(reason)
	}

	for _, c := range targets {
		if err := c.waitClosed(5 * time.Second); err != nil {
			log.Warn().Str("relay_id", relayID).Msg("client did not close promptly on relay disable")
		}
	}
}

// Enable activates relayID with spec, allowing new connections to attach.
func (m *Manager) Enable(relayID string, spec config.RelaySpec) error {
	return m.registry.Enable(relayID, spec)
}

// Shutdown stops every connection on every relay, used during graceful
// process exit. Grounded on client_manager.py's stop.
func (m *Manager) Shutdown() {
	m.sets.Range(func(relayID string, _ *clientSet) bool {
		m.stopClientsFor(relayID, "server is shutting down")
		return true
	})
}
