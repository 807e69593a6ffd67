package gateway

import (
	"slices"
	"sync"
)

// Registry tracks live device sessions by device ID and the set of
// connected dashboard clients.
//
// At most one session exists per device ID. Registering an ID that is
// already present evicts the previous session and closes its connection.
//
// All methods are safe for concurrent use. No network I/O happens while the
// registry lock is held.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*DeviceSession
	clients map[Conn]*ClientSession
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*DeviceSession),
		clients: make(map[Conn]*ClientSession),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RegisterDevice binds id to conn. Any previous session for id is replaced
// atomically and its connection is closed before RegisterDevice returns.
func (r *Registry) RegisterDevice(id string, conn Conn) *DeviceSession {
	sess := newDeviceSession(id, conn)
	r.insertDevice(sess)
	return sess
}

// insertDevice swaps sess in and closes whatever it replaced.
func (r *Registry) insertDevice(sess *DeviceSession) {
	r.mu.Lock()
	old := r.devices[sess.DeviceID]
	r.devices[sess.DeviceID] = sess
	count := len(r.devices)
	r.mu.Unlock()

	if old != nil && old != sess {
		r.logger.Info("device session replaced", "device_id", sess.DeviceID,
			"previous_connected_at", old.ConnectedAt)
		_ = old.Conn.Close() //nolint:errcheck // evicted connection, best-effort
	}
	r.logger.Debug("device registered", "device_id", sess.DeviceID, "devices", count)
}

// UnregisterDevice removes the session for id, if any. It does not close the
// connection. Calling it for an unknown id is a no-op.
func (r *Registry) UnregisterDevice(id string) {
	r.mu.Lock()
	_, existed := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("device unregistered", "device_id", id)
	}
}

// releaseDevice removes sess only if it is still the registered session for
// its device ID. It reports whether an entry was removed.
func (r *Registry) releaseDevice(sess *DeviceSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.devices[sess.DeviceID] != sess {
		return false
	}
	delete(r.devices, sess.DeviceID)
	return true
}

// IsOnline reports whether id currently has a registered session.
func (r *Registry) IsOnline(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// ListOnline returns the IDs of all registered devices, sorted ascending.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// DeviceConn returns the connection registered for id.
func (r *Registry) DeviceConn(id string) (Conn, bool) {
	sess, ok := r.deviceSession(id)
	if !ok {
		return nil, false
	}
	return sess.Conn, true
}

func (r *Registry) deviceSession(id string) (*DeviceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.devices[id]
	return sess, ok
}

// RegisterClient adds conn to the client set. Registering the same conn
// twice returns the existing session.
func (r *Registry) RegisterClient(conn Conn) *ClientSession {
	sess := newClientSession(conn)
	return r.insertClient(sess)
}

func (r *Registry) insertClient(sess *ClientSession) *ClientSession {
	r.mu.Lock()
	if existing, ok := r.clients[sess.Conn]; ok {
		r.mu.Unlock()
		return existing
	}
	r.clients[sess.Conn] = sess
	count := len(r.clients)
	r.mu.Unlock()

	r.logger.Debug("client registered", "client_id", sess.ID, "clients", count)
	return sess
}

// UnregisterClient removes conn from the client set. Calling it for an
// unknown conn is a no-op.
func (r *Registry) UnregisterClient(conn Conn) {
	r.mu.Lock()
	sess, existed := r.clients[conn]
	delete(r.clients, conn)
	count := len(r.clients)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("client unregistered", "client_id", sess.ID, "clients", count)
	}
}

// Clients returns a snapshot of the registered client sessions.
func (r *Registry) Clients() []*ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*ClientSession, 0, len(r.clients))
	for _, sess := range r.clients {
		clients = append(clients, sess)
	}
	return clients
}

// ClientCount returns the number of registered clients.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// DeviceCount returns the number of registered devices.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// CloseAll empties the registry and closes every connection it held.
// Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.devices)+len(r.clients))
	for _, sess := range r.devices {
		conns = append(conns, sess.Conn)
	}
	for conn := range r.clients {
		conns = append(conns, conn)
	}
	r.devices = make(map[string]*DeviceSession)
	r.clients = make(map[Conn]*ClientSession)
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close() //nolint:errcheck // shutdown, best-effort
	}
	r.logger.Info("registry closed", "connections", len(conns))
}
