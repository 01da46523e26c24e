// Package dealer implements the WebSocket connection to the service's
// dealer endpoint: classifying incoming frames into fire-and-forget
// messages versus requests that expect a reply, and posting each onto
// the session's event loop.
package dealer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fliper/connectd/internal/ctlerr"
	"github.com/fliper/connectd/internal/events"
	"github.com/fliper/connectd/internal/resolver"
)

// pingInterval is how often the client sends a WebSocket control ping to
// keep the dealer connection alive; writeWait bounds how long a single
// ping write may take.
const (
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
)

// Frame is the decoded shape of every dealer WebSocket payload, message
// and request alike; callers inspect Type to know which fields apply.
type Frame struct {
	Type         string            `json:"type"`
	URI          string            `json:"uri"`
	Headers      map[string]string `json:"headers"`
	MessageIdent string            `json:"message_ident"`
	Key          string            `json:"key"`
	Payloads     []string          `json:"payloads"`
	Payload      json.RawMessage   `json:"payload"`
}

// Conn is the subset of *websocket.Conn the client uses; *websocket.Conn
// satisfies it directly, and tests supply a fake.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPingHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a WebSocket connection to a dealer URL.
type Dialer func(url string) (Conn, error)

// DialGorilla is the production Dialer, backed by gorilla/websocket.
func DialGorilla(url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Endpoints resolves the access token and host the dealer connection
// needs; *resolver.Resolver satisfies this directly.
type Endpoints interface {
	APAddress(kind resolver.AddressKind) (string, error)
	AccessKey() (string, error)
}

// loopPoster is the subset of *events.Loop the client needs to post
// onto; kept narrow so tests can inject a capturing fake.
type loopPoster interface {
	Post(t events.Type, payload interface{})
}

// Client owns one dealer WebSocket connection, classifying frames as
// they arrive and posting them onto a loopPoster.
type Client struct {
	loop loopPoster
	dial Dialer

	mu          sync.Mutex
	conn        Conn
	repliedKeys map[string]bool
}

// New builds a Client that posts classified frames onto loop using
// dial to open the connection. Pass dealer.DialGorilla in production.
func New(loop loopPoster, dial Dialer) *Client {
	return &Client{loop: loop, dial: dial, repliedKeys: map[string]bool{}}
}

// Connect resolves the dealer address and a fresh access key, opens the
// WebSocket, and starts reading frames in the background.
func (c *Client) Connect(endpoints Endpoints) error {
	token, err := endpoints.AccessKey()
	if err != nil {
		return err
	}
	addr, err := endpoints.APAddress(resolver.Dealer)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("wss://%s/?access_token=%s", addr, token)
	conn, err := c.dial(url)
	if err != nil {
		return ctlerr.Wrap(ctlerr.TryAgain, "dial dealer websocket", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)
	return nil
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(data)
	}
}

// pingLoop sends a periodic WebSocket control ping so the dealer
// connection is not dropped for inactivity, per the underlying
// implementation's housekeeping requirement. It exits once a ping write
// fails, which readLoop will also observe as a read error.
func (c *Client) pingLoop(conn Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}

func (c *Client) handleFrame(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}
	switch f.Type {
	case "message":
		c.loop.Post(events.DealerMessage, f)
	case "request":
		c.loop.Post(events.DealerRequest, f)
	}
}

type replyFrame struct {
	Type    string       `json:"type"`
	Key     string       `json:"key"`
	Payload replyPayload `json:"payload"`
}

type replyPayload struct {
	Success bool `json:"success"`
}

// ReplyToRequest answers a dealer request identified by key exactly
// once; a second call for the same key fails rather than sending a
// duplicate reply.
func (c *Client) ReplyToRequest(success bool, key string) error {
	c.mu.Lock()
	if c.repliedKeys[key] {
		c.mu.Unlock()
		return ctlerr.New(ctlerr.InvalidArgument, "request already replied to", nil)
	}
	c.repliedKeys[key] = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ctlerr.New(ctlerr.IoError, "dealer is not connected", nil)
	}

	body, err := json.Marshal(replyFrame{Type: "reply", Key: key, Payload: replyPayload{Success: success}})
	if err != nil {
		return ctlerr.Wrap(ctlerr.IoError, "encode dealer reply", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return ctlerr.Wrap(ctlerr.IoError, "write dealer reply", err)
	}
	return nil
}
