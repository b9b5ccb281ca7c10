package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one WebSocket connection watching a single contract.
type Client struct {
	hub        *Hub
	conn       *ws.Conn
	contractID int64
	send       chan []byte
}

// NewClient creates a Client tied to the given hub, connection and contract.
func NewClient(hub *Hub, conn *ws.Conn, contractID int64) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		contractID: contractID,
		send:       make(chan []byte, sendBufferSize),
	}
}

// Run queues the initial snapshot if any, registers the client, starts the
// write pump, and runs the read pump. It blocks until the connection
// closes, then unregisters.
func (c *Client) Run(ctx context.Context, snapshot []byte) {
	c.prime(snapshot)
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// prime queues snapshot ahead of any published update. It never blocks.
func (c *Client) prime(snapshot []byte) {
	if len(snapshot) == 0 {
		return
	}
	select {
	case c.send <- snapshot:
	default:
	}
}

// readPump discards incoming messages and returns when the connection closes.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump drains the send channel and pings periodically to detect stale
// connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, ws.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
