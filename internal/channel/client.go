// Package channel is the client side of the relay socket: one connection,
// joined to at most one project, with handlers per event kind.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mocksync/pkg/logger"
	"mocksync/socket"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var ErrClosed = errors.New("channel closed")

type Options struct {
	// Token is sent as a bearer token on the handshake.
	Token  string
	Header http.Header
	Dialer *websocket.Dialer
}

// Client is a connection to the relay. Handlers run on the client's reader
// goroutine, one envelope at a time, in arrival order.
type Client struct {
	conn *websocket.Conn
	id   string

	writeMu sync.Mutex

	mu           sync.RWMutex
	project      string
	handlers     map[string][]func(socket.Envelope)
	onDisconnect []func(error)
	closing      bool

	done chan struct{}
}

// Dial connects to the relay at url and waits for its welcome, which carries
// the connection id the relay will stamp on everything this client sends.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = v
	}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	id, err := readWelcome(conn)
	if !stop() {
		conn.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:     conn,
		id:       id,
		handlers: make(map[string][]func(socket.Envelope)),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func readWelcome(conn *websocket.Conn) (string, error) {
	var env socket.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return "", fmt.Errorf("read welcome: %w", err)
	}
	if env.Type != socket.WelcomeType {
		return "", fmt.Errorf("expected %s, got %q", socket.WelcomeType, env.Type)
	}
	var welcome socket.Welcome
	if err := env.Decode(&welcome); err != nil {
		return "", err
	}
	if welcome.ConnectionID == "" {
		return "", errors.New("welcome without connection id")
	}
	return welcome.ConnectionID, nil
}

// ID is the relay-assigned connection id.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) Project() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.project
}

// Join asks the relay for projectID's room. From then on only envelopes for
// that project reach the handlers.
func (c *Client) Join(ctx context.Context, projectID string) error {
	if projectID == "" {
		return errors.New("join: empty project id")
	}
	c.mu.Lock()
	c.project = projectID
	c.mu.Unlock()
	return c.Send(ctx, socket.JoinProjectType, socket.JoinProject{ProjectID: projectID})
}

// Send writes one envelope. Safe for concurrent use.
func (c *Client) Send(ctx context.Context, kind string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	env, err := socket.NewEnvelope(kind, c.Project(), c.id, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

// OnReceive registers h for envelopes of the given kind.
func (c *Client) OnReceive(kind string, h func(socket.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], h)
}

// OnDisconnect registers fn for when the connection drops. It is not called
// after Close.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Done is closed once the reader has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	var readErr error
	defer func() {
		close(c.done)
		c.mu.RLock()
		closing := c.closing
		fns := append([]func(error){}, c.onDisconnect...)
		c.mu.RUnlock()
		if closing {
			return
		}
		logger.Sugar.Warnf("Relay connection %s lost: %v", c.id, readErr)
		for _, fn := range fns {
			fn(readErr)
		}
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		var env socket.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Sugar.Warnf("Dropping malformed envelope: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env socket.Envelope) {
	c.mu.RLock()
	project := c.project
	handlers := c.handlers[env.Type]
	c.mu.RUnlock()

	if project == "" || env.ProjectID != project || env.SenderID == c.id {
		return
	}
	for _, h := range handlers {
		h(env)
	}
}
