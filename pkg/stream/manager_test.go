package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgraph/coursesync/pkg/events"
	"github.com/campusgraph/coursesync/pkg/model"
)

type fakeSnapshotStore struct {
	rows []model.CourseAudit
	err  error
}

func (f *fakeSnapshotStore) AuditSnapshot(ctx context.Context, filter Filter) ([]model.CourseAudit, error) {
	return f.rows, f.err
}

func newTestServer(t *testing.T, m *Manager, filter Filter) (*httptest.Server, *websocket.Conn) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		m.HandleConnection(r.Context(), conn, filter)
	}))
	t.Cleanup(srv.Close)

	clientCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(clientCtx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return srv, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) streamMessage {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg streamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandleConnection_SendsSnapshotThenCompleteMarker(t *testing.T) {
	snap := &fakeSnapshotStore{rows: []model.CourseAudit{
		{TermCode: "202620", CRN: "10001", Field: "seats_available", OldValue: "5", NewValue: "4", CreatedAt: time.Now()},
	}}
	m := New(events.New(), snap, time.Second)
	_, conn := newTestServer(t, m, Filter{Limit: 10})

	first := readMessage(t, conn)
	assert.Equal(t, "snapshot", first.Type)
	require.NotNil(t, first.Audit)
	assert.Equal(t, "10001", first.Audit.CRN)

	second := readMessage(t, conn)
	assert.Equal(t, "snapshot.complete", second.Type)
}

func TestHandleConnection_DeliversMatchingLiveDeltaAfterSnapshot(t *testing.T) {
	bus := events.New()
	snap := &fakeSnapshotStore{}
	m := New(bus, snap, time.Second)
	_, conn := newTestServer(t, m, Filter{Subjects: []string{"CS"}, Limit: 10})

	complete := readMessage(t, conn)
	require.Equal(t, "snapshot.complete", complete.Type)

	for !waitForConnection(t, m) {
	}
	bus.Publish(model.Event{
		Kind:      model.EventCourseChanged,
		Timestamp: time.Now(),
		Payload:   model.CourseChangedPayload{TermCode: "202620", CRN: "10001", Subject: "CS", Field: "title"},
	})

	delta := readMessage(t, conn)
	assert.Equal(t, "delta", delta.Type)
	require.NotNil(t, delta.Delta)
	assert.Equal(t, "CS", delta.Delta.Subject)
}

func TestHandleConnection_FiltersOutNonMatchingLiveDelta(t *testing.T) {
	bus := events.New()
	snap := &fakeSnapshotStore{}
	m := New(bus, snap, time.Second)
	_, conn := newTestServer(t, m, Filter{Subjects: []string{"CS"}, Limit: 10})

	complete := readMessage(t, conn)
	require.Equal(t, "snapshot.complete", complete.Type)

	for !waitForConnection(t, m) {
	}
	bus.Publish(model.Event{
		Kind:      model.EventCourseChanged,
		Timestamp: time.Now(),
		Payload:   model.CourseChangedPayload{TermCode: "202620", CRN: "20002", Subject: "MA", Field: "title"},
	})
	bus.Publish(model.Event{
		Kind:      model.EventCourseChanged,
		Timestamp: time.Now(),
		Payload:   model.CourseChangedPayload{TermCode: "202620", CRN: "10001", Subject: "CS", Field: "title"},
	})

	delta := readMessage(t, conn)
	assert.Equal(t, "CS", delta.Delta.Subject, "the MA delta should have been filtered out")
}

// waitForConnection polls until the manager reports at least one active
// connection, bounding the poll so a bug can't hang the test forever.
func waitForConnection(t *testing.T, m *Manager) bool {
	t.Helper()
	if m.ActiveConnections() > 0 {
		return true
	}
	time.Sleep(5 * time.Millisecond)
	return false
}
