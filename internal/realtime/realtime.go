// Package realtime implements the small subset of the Phoenix channel
// protocol needed to join a Supabase Realtime channel, observe it for a
// bounded window and leave again.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Phoenix protocol events
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"

	heartbeatTopic = "phoenix"
)

// HeartbeatInterval is how often a heartbeat is sent while a connection is held
const HeartbeatInterval = 25 * time.Second

// ErrClosed is returned when the socket closed before the awaited message
var ErrClosed = errors.New("realtime: connection closed")

// Message is the Phoenix v1 JSON frame
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// Conn is one websocket connection to the Realtime service
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	ref     atomic.Uint64

	incoming chan Message
	stop     chan struct{}
	done     chan struct{}
	readErr  error
	stopOnce sync.Once
}

// Dial opens a websocket to rawURL and starts the read loop
func Dial(ctx context.Context, rawURL string, logger *slog.Logger) (*Conn, error) {
	start := time.Now()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial failed: %w", err)
	}

	logger.Debug("Realtime connected", "duration_ms", time.Since(start).Milliseconds())

	c := &Conn{
		ws:       ws,
		logger:   logger,
		incoming: make(chan Message, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.incoming)

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.readErr = err
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.stop:
			return
		}
	}
}

func (c *Conn) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *Conn) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("realtime: send %s failed: %w", msg.Event, err)
	}
	return nil
}

// Join subscribes to topic and waits for the server to acknowledge it.
// Channel events that arrive before the reply are counted into early.
func (c *Conn) Join(ctx context.Context, topic string, payload interface{}) (joinRef string, early int, err error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("realtime: invalid join payload: %w", err)
	}

	ref := c.nextRef()
	if err := c.send(Message{Topic: topic, Event: EventJoin, Payload: raw, Ref: ref, JoinRef: ref}); err != nil {
		return "", 0, err
	}

	for {
		select {
		case <-ctx.Done():
			return "", early, fmt.Errorf("realtime: join %s: %w", topic, ctx.Err())
		case msg, ok := <-c.incoming:
			if !ok {
				return "", early, c.closedErr()
			}
			if msg.Event != EventReply || msg.Ref != ref {
				if msg.Topic == topic && isChannelEvent(msg) {
					early++
				}
				continue
			}

			var reply replyPayload
			if err := json.Unmarshal(msg.Payload, &reply); err != nil {
				return "", early, fmt.Errorf("realtime: invalid join reply: %w", err)
			}
			if reply.Status != "ok" {
				return "", early, fmt.Errorf("realtime: join %s rejected: %s %s", topic, reply.Status, string(reply.Response))
			}
			return ref, early, nil
		}
	}
}

// Leave unsubscribes from topic without waiting for the reply
func (c *Conn) Leave(topic, joinRef string) error {
	return c.send(Message{Topic: topic, Event: EventLeave, Payload: json.RawMessage(`{}`), Ref: c.nextRef(), JoinRef: joinRef})
}

// Heartbeat keeps the connection alive past the server idle timeout
func (c *Conn) Heartbeat() error {
	return c.send(Message{Topic: heartbeatTopic, Event: EventHeartbeat, Payload: json.RawMessage(`{}`), Ref: c.nextRef()})
}

// Close sends a close frame and waits for the read loop to stop
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	err := c.ws.Close()

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
	return err
}

func (c *Conn) closedErr() error {
	if c.readErr != nil && !websocket.IsCloseError(c.readErr, websocket.CloseNormalClosure) {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

// isChannelEvent reports whether msg is a payload event rather than protocol chatter
func isChannelEvent(msg Message) bool {
	switch msg.Event {
	case EventReply, EventClose, EventError, EventHeartbeat:
		return false
	}
	return true
}
