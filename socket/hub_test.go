package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mocksync/internal/document/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to read messages from a WebSocket connection with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	var msg Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &msg), "Failed to unmarshal envelope")
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, p, err := conn.ReadMessage()
	require.Error(t, err, "expected no message, got %s", string(p))
}

func send(t *testing.T, conn *websocket.Conn, kind string, payload any) {
	t.Helper()
	env, err := NewEnvelope(kind, "", "", payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

type relay struct {
	hub *Hub
	url string
}

func startRelay(t *testing.T, broker Broker) relay {
	t.Helper()
	hub := NewHub(broker)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, r.URL.Query().Get("user_id"))
	}))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return relay{hub: hub, url: "ws" + strings.TrimPrefix(server.URL, "http")}
}

// connect dials the relay, consumes the greeting and joins projectID.
func (r relay) connect(t *testing.T, projectID string) (*websocket.Conn, string) {
	t.Helper()
	before := r.hub.RoomSize(projectID)
	conn, _, err := websocket.DefaultDialer.Dial(r.url+"/ws?user_id=u", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, WelcomeType, welcome.Type)
	var w Welcome
	require.NoError(t, welcome.Decode(&w))
	require.NotEmpty(t, w.ConnectionID)
	assert.Equal(t, w.ConnectionID, welcome.SenderID)

	send(t, conn, JoinProjectType, JoinProject{ProjectID: projectID})
	require.Eventually(t, func() bool { return r.hub.RoomSize(projectID) == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn, w.ConnectionID
}

func TestHubRelaysToOtherMembers(t *testing.T) {
	r := startRelay(t, nil)
	conn1, _ := r.connect(t, "p1")
	conn2, id2 := r.connect(t, "p1")

	send(t, conn2, EditorUpdateType, EditorUpdate{TabID: "tab-1", Markup: "<p>hi</p>", Style: "p{}"})

	msg := readMessage(t, conn1)
	assert.Equal(t, EditorUpdateType, msg.Type)
	assert.Equal(t, "p1", msg.ProjectID)
	assert.Equal(t, id2, msg.SenderID)
	var update EditorUpdate
	require.NoError(t, msg.Decode(&update))
	assert.Equal(t, "<p>hi</p>", update.Markup)

	expectSilence(t, conn2)
}

func TestHubStampsSenderAndProject(t *testing.T) {
	r := startRelay(t, nil)
	conn1, _ := r.connect(t, "p1")
	conn2, id2 := r.connect(t, "p1")

	spoofed, err := NewEnvelope(CursorMoveType, "other-project", "someone-else", CursorMove{TabID: "tab-1", RX: 0.1, RY: 0.2})
	require.NoError(t, err)
	require.NoError(t, conn2.WriteJSON(spoofed))

	msg := readMessage(t, conn1)
	assert.Equal(t, id2, msg.SenderID)
	assert.Equal(t, "p1", msg.ProjectID)
}

func TestHubIsolatesProjects(t *testing.T) {
	r := startRelay(t, nil)
	conn1, _ := r.connect(t, "p1")
	other, _ := r.connect(t, "p2")

	send(t, conn1, CursorMoveType, CursorMove{TabID: "tab-1", RX: 0.5, RY: 0.5})
	expectSilence(t, other)
}

func TestHubDropsEventsBeforeJoin(t *testing.T) {
	r := startRelay(t, nil)
	member, _ := r.connect(t, "p1")

	conn, _, err := websocket.DefaultDialer.Dial(r.url+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)
	send(t, conn, EditorUpdateType, EditorUpdate{TabID: "tab-1"})
	expectSilence(t, member)
}

func TestHubReplaysLatestStateToLateJoiner(t *testing.T) {
	r := startRelay(t, nil)
	conn1, _ := r.connect(t, "p1")
	conn2, _ := r.connect(t, "p1")

	send(t, conn1, TabsSnapshotType, TabsSnapshot{Tabs: []model.TabMeta{{ID: "tab-1", Name: "Home"}, {ID: "tab-2", Name: "About"}}})
	readMessage(t, conn2)
	send(t, conn1, EditorUpdateType, EditorUpdate{TabID: "tab-2", Markup: "<p>old</p>"})
	readMessage(t, conn2)
	send(t, conn1, EditorUpdateType, EditorUpdate{TabID: "tab-2", Markup: "<p>new</p>"})
	readMessage(t, conn2)
	send(t, conn1, EditorUpdateType, EditorUpdate{TabID: "tab-1", Markup: "<h1>home</h1>"})
	readMessage(t, conn2)
	send(t, conn1, CursorMoveType, CursorMove{TabID: "tab-1"})
	readMessage(t, conn2)

	late, _ := r.connect(t, "p1")
	first := readMessage(t, late)
	assert.Equal(t, TabsSnapshotType, first.Type)

	contents := map[string]string{}
	for i := 0; i < 2; i++ {
		msg := readMessage(t, late)
		require.Equal(t, EditorUpdateType, msg.Type)
		var update EditorUpdate
		require.NoError(t, msg.Decode(&update))
		contents[update.TabID] = update.Markup
	}
	assert.Equal(t, map[string]string{"tab-1": "<h1>home</h1>", "tab-2": "<p>new</p>"}, contents)
	expectSilence(t, late)
}

func TestHubForgetsContentOfRemovedTabs(t *testing.T) {
	r := startRelay(t, nil)
	conn1, _ := r.connect(t, "p1")

	send(t, conn1, EditorUpdateType, EditorUpdate{TabID: "tab-2", Markup: "<p>gone</p>"})
	send(t, conn1, TabsSnapshotType, TabsSnapshot{Tabs: []model.TabMeta{{ID: "tab-1", Name: "Home"}}})

	require.Eventually(t, func() bool {
		r.hub.mu.Lock()
		defer r.hub.mu.Unlock()
		room := r.hub.Rooms["p1"]
		return room != nil && room.tabs != nil
	}, 2*time.Second, 5*time.Millisecond)

	late, _ := r.connect(t, "p1")
	msg := readMessage(t, late)
	assert.Equal(t, TabsSnapshotType, msg.Type)
	expectSilence(t, late)
}

func TestHubAnnouncesCursorLeaveOnDisconnect(t *testing.T) {
	r := startRelay(t, nil)
	conn1, _ := r.connect(t, "p1")
	conn2, id2 := r.connect(t, "p1")

	require.NoError(t, conn2.Close())

	msg := readMessage(t, conn1)
	assert.Equal(t, CursorLeaveType, msg.Type)
	assert.Equal(t, id2, msg.SenderID)
	require.Eventually(t, func() bool { return r.hub.RoomSize("p1") == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubRemovesEmptyRooms(t *testing.T) {
	r := startRelay(t, nil)
	conn, _ := r.connect(t, "p1")
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		r.hub.mu.Lock()
		defer r.hub.mu.Unlock()
		_, ok := r.hub.Rooms["p1"]
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

// memoryBroker connects hubs in the same process.
type memoryBroker struct {
	mu   sync.Mutex
	subs map[string]func(Envelope)
}

func (b *memoryBroker) Publish(_ context.Context, origin string, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, deliver := range b.subs {
		if id != origin {
			deliver(env)
		}
	}
	return nil
}

func (b *memoryBroker) Subscribe(ctx context.Context, origin string, deliver func(Envelope)) error {
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[string]func(Envelope))
	}
	b.subs[origin] = deliver
	b.mu.Unlock()
	<-ctx.Done()
	b.mu.Lock()
	delete(b.subs, origin)
	b.mu.Unlock()
	return ctx.Err()
}

func (b *memoryBroker) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func TestHubFansOutAcrossInstances(t *testing.T) {
	broker := &memoryBroker{}
	a := startRelay(t, broker)
	b := startRelay(t, broker)
	require.Eventually(t, func() bool { return broker.size() == 2 }, 2*time.Second, 5*time.Millisecond)

	connA, idA := a.connect(t, "p1")
	connB, _ := b.connect(t, "p1")

	send(t, connA, EditorUpdateType, EditorUpdate{TabID: "tab-1", Markup: "<p>from a</p>"})
	msg := readMessage(t, connB)
	assert.Equal(t, EditorUpdateType, msg.Type)
	assert.Equal(t, idA, msg.SenderID)
	expectSilence(t, connA)
}
