/*
Package chat contains the relay's event loop and its WebSocket clients.

This file defines the Client struct, representing one live WebSocket connection. It runs the
read and write pumps and forwards every inbound frame to the Hub in the order it was read.
*/
package chat

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	// Inline files are sent base64 encoded, so this leaves room for a 5 MB attachment.
	maxMessageSize = 8 << 20

	// number of outbound frames queued per client before new frames are dropped.
	sendQueueSize = 256
)

// Client is a middleman between one WebSocket connection and the Hub.
type Client struct {
	// the hub the client is registered with.
	hub *Hub

	// underlying WebSocket connection object; nil in unit tests.
	conn *websocket.Conn

	// connection id assigned by the hub on registration.
	id string

	// id the client asked to resume; honoured only if free.
	requestedID string

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for conn. requestedID may be empty.
func NewClient(hub *Hub, conn *websocket.Conn, requestedID string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		requestedID: requestedID,
		send:        make(chan []byte, sendQueueSize),
		logger:      logx.Component("client"),
	}
}

// ID returns the connection id. It is empty until the hub has registered the client.
func (c *Client) ID() string {
	return c.id
}

// ReadPump reads frames until the connection fails, then unregisters the client.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frameBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		if !c.processInboundFrame(frameBytes) {
			break
		}
	}
}

// cleanupOnDisconnect unregisters the client and closes the connection.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundFrame decodes a raw frame and hands it to the hub.
// It returns false once the hub no longer accepts events.
func (c *Client) processInboundFrame(frameBytes []byte) bool {
	var frame inboundFrame
	if err := json.Unmarshal(frameBytes, &frame); err != nil {
		c.logger.Warn().Err(err).
			Int("frame_bytes", len(frameBytes)).
			Msg("Client sent invalid JSON")
		return true
	}

	if frame.Type == "" {
		c.logger.Warn().Msg("Client sent frame without event type")
		return true
	}

	return c.hub.submit(c, frame)
}

// WritePump writes queued frames to the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send channel.
// Returns false if the WritePump loop should terminate.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingMessage sends a Ping to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue queues a frame without blocking. A full queue drops the frame.
// Only the hub goroutine calls enqueue.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
		return false
	}
}
