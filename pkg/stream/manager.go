package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/campusgraph/coursesync/pkg/events"
	"github.com/campusgraph/coursesync/pkg/model"
)

// DefaultWriteTimeout bounds how long a single websocket write may block.
const DefaultWriteTimeout = 10 * time.Second

// Manager tracks every live stream connection and pushes course-change
// deltas to each as they're published on the event bus. One process has one
// Manager.
type Manager struct {
	bus          *events.Bus
	snapshot     SnapshotStore
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*Connection
}

// Connection is a single subscriber: a websocket plus the filter it was
// opened with. Like the teacher's Connection, its lifecycle fields are only
// ever touched by the single goroutine running HandleConnection.
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	Filter Filter
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Manager backed by the given event bus and snapshot
// store.
func New(bus *events.Bus, snapshot SnapshotStore, writeTimeout time.Duration) *Manager {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Manager{
		bus:          bus,
		snapshot:     snapshot,
		writeTimeout: writeTimeout,
		connections:  make(map[string]*Connection),
	}
}

// ActiveConnections returns the number of live stream connections.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// HandleConnection drives one client's lifecycle after websocket upgrade:
// deliver the full initial snapshot, then switch to the live event-bus feed,
// filtering every delta by the same predicate. The snapshot is always fully
// written before the first delta and deltas preserve the bus's
// per-producer arrival order (spec §4.11). Blocks until the connection
// closes or ctx is cancelled.
func (m *Manager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, filter Filter) {
	filter = filter.Normalize()
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:     uuid.New().String(),
		Conn:   conn,
		Filter: filter,
		ctx:    ctx,
		cancel: cancel,
	}

	m.register(c)
	defer m.unregister(c)

	sub := m.bus.Subscribe()
	defer m.bus.Unsubscribe(sub)

	if err := m.sendSnapshot(ctx, c); err != nil {
		slog.Warn("stream snapshot failed", "connection_id", c.ID, "error", err)
		return
	}

	go m.drainReads(c)

	for {
		evt, ok := sub.Next(ctx)
		if !ok {
			return
		}
		if evt.Kind != model.EventCourseChanged {
			continue
		}
		payload, ok := evt.Payload.(model.CourseChangedPayload)
		if !ok || !filter.MatchesDelta(payload) {
			continue
		}
		if err := m.sendJSON(c, streamMessage{Type: "delta", Delta: &payload}); err != nil {
			slog.Warn("stream delta write failed", "connection_id", c.ID, "error", err)
			return
		}
	}
}

// drainReads discards client frames (pings, unsolicited data) until the
// connection closes, so the websocket's read buffer never backs up and the
// close is observed promptly.
func (m *Manager) drainReads(c *Connection) {
	for {
		if _, _, err := c.Conn.Read(c.ctx); err != nil {
			c.cancel()
			return
		}
	}
}

// sendSnapshot queries and writes the catch-up page of audit rows before
// any live delta is sent, oldest first.
func (m *Manager) sendSnapshot(ctx context.Context, c *Connection) error {
	rows, err := m.snapshot.AuditSnapshot(ctx, c.Filter)
	if err != nil {
		return err
	}
	if len(rows) > c.Filter.Limit {
		rows = rows[:c.Filter.Limit]
	}
	for _, row := range rows {
		if err := m.sendJSON(c, streamMessage{Type: "snapshot", Audit: &row}); err != nil {
			return err
		}
	}
	return m.sendJSON(c, streamMessage{Type: "snapshot.complete"})
}

type streamMessage struct {
	Type  string                      `json:"type"`
	Audit *model.CourseAudit          `json:"audit,omitempty"`
	Delta *model.CourseChangedPayload `json:"delta,omitempty"`
}

func (m *Manager) sendJSON(c *Connection, v streamMessage) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}
