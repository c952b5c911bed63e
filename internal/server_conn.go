package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 8192

	sendQueueSize = 256

	messageBurst  = 5
	messageWindow = 3 * time.Second
)

var errSlowClient = errors.New("send queue full")

// Conn ties one websocket to the hub: a read loop feeding the router and a
// write loop draining a bounded send queue. It implements Sink; Deliver never
// blocks, a full queue drops the frame so one stalled reader cannot hold up a
// room broadcast.
type Conn struct {
	id       string
	ws       *websocket.Conn
	router   *Router
	log      *slog.Logger
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	limiter  window
	onClose  func()
}

// NewConn wraps an upgraded websocket. Call Bind with the hub-assigned id,
// then Start. onClose fires once, after the connection is fully torn down.
func NewConn(ws *websocket.Conn, router *Router, log *slog.Logger, onClose func()) *Conn {
	return &Conn{
		ws:      ws,
		router:  router,
		log:     log,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		limiter: newWindow(messageBurst, messageWindow),
		onClose: onClose,
	}
}

// Bind records the connection id the hub assigned at registration.
func (c *Conn) Bind(id string) {
	c.id = id
}

// Start launches the read and write pumps.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

// Deliver implements Sink. The frame is encoded and queued; when the queue is
// full the frame is dropped and the error reported so the hub can count it.
func (c *Conn) Deliver(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSlowClient
	}
}

func (c *Conn) readPump() {
	defer c.teardown()
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			// normal close or read error; deferred teardown handles the rest
			return
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			_ = c.Deliver(EventError, ErrorPayload{Message: "invalid frame"})
			continue
		}
		if env.Event == EventSendMessage && !c.limiter.allow(time.Now()) {
			_ = c.Deliver(EventError, ErrorPayload{
				Message: "you're sending messages too quickly, slow down",
			})
			continue
		}
		c.router.HandleEvent(c.id, env)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Conn) teardown() {
	c.stopOnce.Do(func() {
		c.router.HandleDisconnect(c.id)
		close(c.done)
		_ = c.ws.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
}
