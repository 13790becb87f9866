package socket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"mocksync/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	ID        string // connection id, assigned on connect
	UserID    string
	ProjectID string // owned by the hub goroutine
	Send      chan []byte
}

// Message is an envelope read from a client, before the hub stamps it.
type Message struct {
	From     *Client
	Envelope Envelope
}

type joinRequest struct {
	client    *Client
	projectID string
}

// room holds a project's members and the latest structure and content seen,
// replayed to late joiners.
type room struct {
	clients map[*Client]bool
	tabs    *Envelope
	content map[string]Envelope // tab id -> latest editorUpdate
}

func newRoom() *room {
	return &room{clients: make(map[*Client]bool), content: make(map[string]Envelope)}
}

type Hub struct {
	Rooms      map[string]*room
	Broadcast  chan Message
	Register   chan *Client
	Join       chan joinRequest
	Unregister chan *Client

	clients    map[*Client]bool
	remote     chan Envelope
	outbound   chan Envelope
	broker     Broker
	instanceID string
	done       chan struct{}
	mu         sync.Mutex
}

// NewHub creates a relay hub. broker may be nil for a single relay instance.
func NewHub(broker Broker) *Hub {
	return &Hub{
		Rooms:      make(map[string]*room),
		Broadcast:  make(chan Message),
		Register:   make(chan *Client),
		Join:       make(chan joinRequest),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		remote:     make(chan Envelope, 256),
		outbound:   make(chan Envelope, 256),
		broker:     broker,
		instanceID: uuid.NewString(),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. Room membership and caches are only changed
// here.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.broker != nil {
		go h.subscribe(ctx)
		go h.publish(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.clients[client] = true

		case req := <-h.Join:
			h.join(req.client, req.projectID)

		case client := <-h.Unregister:
			h.removeClient(client)

		case msg := <-h.Broadcast:
			if !h.clients[msg.From] || msg.From.ProjectID == "" {
				logger.Sugar.Debugf("Dropping %s from %s: not in a project", msg.Envelope.Type, msg.From.ID)
				continue
			}
			env := msg.Envelope
			env.SenderID = msg.From.ID
			env.ProjectID = msg.From.ProjectID
			h.relay(env, msg.From)
			if h.broker != nil {
				select {
				case h.outbound <- env:
				default:
					logger.Sugar.Warnf("Broker queue full, %s for project %s not forwarded", env.Type, env.ProjectID)
				}
			}

		case env := <-h.remote:
			h.relay(env, nil)
		}
	}
}

// RoomSize reports how many connections joined projectID.
func (h *Hub) RoomSize(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.Rooms[projectID]; ok {
		return len(r.clients)
	}
	return 0
}

func (h *Hub) join(client *Client, projectID string) {
	if !h.clients[client] || projectID == "" || client.ProjectID == projectID {
		return
	}
	if client.ProjectID != "" {
		h.leaveRoom(client)
	}

	h.mu.Lock()
	r, ok := h.Rooms[projectID]
	if !ok {
		r = newRoom()
		h.Rooms[projectID] = r
	}
	r.clients[client] = true
	client.ProjectID = projectID
	backlog := r.backlog()
	h.mu.Unlock()

	logger.Sugar.Infof("Connection %s (user %s) joined project %s", client.ID, client.UserID, projectID)

	for _, env := range backlog {
		payload, err := json.Marshal(env)
		if err != nil {
			continue
		}
		if !h.trySend(client, payload) {
			h.removeClient(client)
			return
		}
	}
}

// relay caches env and delivers it to every member of its room except from.
func (h *Hub) relay(env Envelope, from *Client) {
	h.mu.Lock()
	r, ok := h.Rooms[env.ProjectID]
	if !ok {
		h.mu.Unlock()
		return
	}
	r.remember(env)
	recipients := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		if client != from && client.ID != env.SenderID {
			recipients = append(recipients, client)
		}
	}
	h.mu.Unlock()

	payload, err := json.Marshal(env)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s: %v", env.Type, err)
		return
	}
	for _, client := range recipients {
		if !h.trySend(client, payload) {
			logger.Sugar.Warnf("Connection %s's send buffer is full. Unregistering.", client.ID)
			h.removeClient(client)
		}
	}
}

func (h *Hub) trySend(client *Client, payload []byte) bool {
	select {
	case client.Send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) removeClient(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	h.leaveRoom(client)
	close(client.Send)
}

// leaveRoom drops client from its room and tells the rest its cursor is gone.
func (h *Hub) leaveRoom(client *Client) {
	projectID := client.ProjectID
	h.mu.Lock()
	r, ok := h.Rooms[projectID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(r.clients, client)
	client.ProjectID = ""
	empty := len(r.clients) == 0
	if empty {
		delete(h.Rooms, projectID)
	}
	h.mu.Unlock()

	if empty {
		logger.Sugar.Infof("Closed and cleaned up empty room: %s", projectID)
		return
	}
	leave := Envelope{Type: CursorLeaveType, ProjectID: projectID, SenderID: client.ID, Payload: json.RawMessage(`{}`)}
	h.relay(leave, client)
	if h.broker != nil {
		select {
		case h.outbound <- leave:
		default:
		}
	}
}

func (h *Hub) shutdown() {
	for client := range h.clients {
		delete(h.clients, client)
		close(client.Send)
	}
	h.mu.Lock()
	h.Rooms = make(map[string]*room)
	h.mu.Unlock()
}

func (h *Hub) subscribe(ctx context.Context) {
	err := h.broker.Subscribe(ctx, h.instanceID, func(env Envelope) {
		select {
		case h.remote <- env:
		case <-ctx.Done():
		}
	})
	if err != nil && ctx.Err() == nil {
		logger.Sugar.Errorf("Broker subscription ended: %v", err)
	}
}

// publish forwards local envelopes to the broker one at a time so other
// instances see them in order.
func (h *Hub) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.outbound:
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := h.broker.Publish(pubCtx, h.instanceID, env); err != nil {
				logger.Sugar.Errorf("Failed to publish %s for project %s: %v", env.Type, env.ProjectID, err)
			}
			cancel()
		}
	}
}

func (r *room) remember(env Envelope) {
	switch env.Type {
	case TabsSnapshotType:
		snapshot := env
		r.tabs = &snapshot
		var tabs TabsSnapshot
		if err := env.Decode(&tabs); err != nil {
			return
		}
		keep := make(map[string]bool, len(tabs.Tabs))
		for _, t := range tabs.Tabs {
			keep[t.ID] = true
		}
		for id := range r.content {
			if !keep[id] {
				delete(r.content, id)
			}
		}
	case EditorUpdateType:
		var update EditorUpdate
		if err := env.Decode(&update); err != nil || update.TabID == "" {
			return
		}
		r.content[update.TabID] = env
	}
}

// backlog is the latest tab list followed by the latest content of each tab.
func (r *room) backlog() []Envelope {
	out := make([]Envelope, 0, len(r.content)+1)
	if r.tabs != nil {
		out = append(out, *r.tabs)
	}
	ids := make([]string, 0, len(r.content))
	for id := range r.content {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, r.content[id])
	}
	return out
}
