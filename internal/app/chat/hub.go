/*
Package chat contains the relay's event loop and its WebSocket clients.

This file defines the Hub, the single executor that owns the presence registry, the message
store and the reclaim schedule. Registration, disconnection, inbound events and reclaim expiries
are all serialised through Run, so each event is applied atomically with respect to that state.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/message"
	"chatrelay/internal/app/presence"
	"chatrelay/internal/app/user"
	"chatrelay/internal/pkg/clockx"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
)

const inboundChannelBuffer = 1024

// HubConfig tunes a Hub. Zero values select the defaults.
type HubConfig struct {
	// HistoryLimit is the number of messages kept for newcomers (default 100).
	HistoryLimit int

	// MaxFileSize is the largest accepted decoded attachment in bytes (default 5 MB).
	MaxFileSize int64

	// ReclaimAfter is how long an offline profile is kept (default 1 hour).
	ReclaimAfter time.Duration

	// Clock drives timestamps, message ids and reclaim timers (default system clock).
	Clock clockx.Clock
}

type registration struct {
	client *Client
	done   chan struct{}
}

// inboundEvent is a frame or, when disconnect is set, the end of a connection. Both travel
// through one channel so a connection's disconnect is handled after its last frame.
type inboundEvent struct {
	client     *Client
	frame      inboundFrame
	disconnect bool
}

// Hub is the relay's state owner and event router.
type Hub struct {
	clock     clockx.Clock
	users     *user.Registry
	messages  *message.Store
	reclaimer *presence.Reclaimer

	// profileGate decides whether a connection may change presence state. Connections that
	// fail it have their typing and status events ignored rather than rejected.
	profileGate func(connID string) bool

	// live connections keyed by connection id; only touched by Run.
	clients map[string]*Client

	register chan registration
	inbound  chan inboundEvent

	// closed when Run returns.
	done chan struct{}

	connections atomic.Int64

	logger zerolog.Logger
}

// NewHub creates a Hub with empty state. Call Run to start processing.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Clock == nil {
		cfg.Clock = clockx.System()
	}

	h := &Hub{
		clock:     cfg.Clock,
		users:     user.NewRegistry(),
		messages:  message.NewStore(cfg.HistoryLimit, cfg.MaxFileSize),
		reclaimer: presence.NewReclaimer(cfg.Clock, cfg.ReclaimAfter),
		clients:   make(map[string]*Client),
		register:  make(chan registration),
		inbound:   make(chan inboundEvent, inboundChannelBuffer),
		done:      make(chan struct{}),
		logger:    logx.Component("hub"),
	}
	h.profileGate = h.users.Has

	return h
}

// Run processes events until ctx is cancelled. On return every client queue is closed and all
// pending reclaims are cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info().
		Int("history_limit", h.messages.Limit()).
		Dur("reclaim_after", h.reclaimer.Delay()).
		Msg("Hub event loop started.")

	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("Hub stop requested.")
			return

		case reg := <-h.register:
			h.handleRegister(reg.client)
			close(reg.done)

		case ev := <-h.inbound:
			if ev.disconnect {
				h.handleUnregister(ev.client)
				continue
			}
			if current, ok := h.clients[ev.client.id]; !ok || current != ev.client {
				h.logger.Debug().
					Str("connection_id", ev.client.id).
					Str("event", string(ev.frame.Type)).
					Msg("Dropping event from unregistered connection.")
				continue
			}
			h.dispatch(ev.client, ev.frame)

		case exp := <-h.reclaimer.Expired():
			h.handleReclaim(exp)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Connections returns the number of live connections.
func (h *Hub) Connections() int {
	return int(h.connections.Load())
}

// Register adds client to the hub, assigns its connection id and queues the message history.
// It blocks until the hub has processed the registration.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	reg := registration{client: client, done: make(chan struct{})}

	select {
	case h.register <- reg:
	case <-h.done:
		return errs.NewError(errs.ErrServiceUnavailable)
	case <-ctx.Done():
		return ctx.Err()
	}

	<-reg.done
	return nil
}

// Unregister removes client from the hub after any frames it already submitted.
// It is safe to call after Run has returned.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.inbound <- inboundEvent{client: client, disconnect: true}:
	case <-h.done:
	}
}

// submit queues an inbound frame from client. It returns false once the hub has stopped.
func (h *Hub) submit(client *Client, frame inboundFrame) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.inbound <- inboundEvent{client: client, frame: frame}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handleRegister(client *Client) {
	id := client.requestedID
	if id != "" && (!randx.IsValidConnectionID(id) || h.clients[id] != nil) {
		h.logger.Info().Str("requested_id", id).Msg("Connection id resume rejected; issuing a new id.")
		id = ""
	}
	if id == "" {
		id = randx.ConnectionID()
	}

	client.id = id
	client.logger = logx.Component("client").With().Str("connection_id", id).Logger()

	h.clients[id] = client
	h.connections.Store(int64(len(h.clients)))

	h.logger.Info().
		Str("connection_id", id).
		Bool("resumed", id == client.requestedID).
		Int("total_connections", len(h.clients)).
		Msg("Client connected.")

	h.sendTo(client, EventMessageHistory, h.messages.History())
}

func (h *Hub) handleUnregister(client *Client) {
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.logger.Debug().
			Str("connection_id", client.id).
			Msg("Ignoring unregister for unknown or stale connection.")
		return
	}

	delete(h.clients, client.id)
	close(client.send)
	h.connections.Store(int64(len(h.clients)))

	h.logger.Info().
		Str("connection_id", client.id).
		Int("total_connections", len(h.clients)).
		Msg("Client disconnected.")

	h.handleDisconnect(client.id)
}

// handleReclaim deletes an offline profile whose grace period has run out.
func (h *Hub) handleReclaim(exp presence.Expiry) {
	if !h.reclaimer.Claim(exp) {
		h.logger.Debug().Str("connection_id", exp.ID).Msg("Ignoring stale reclaim.")
		return
	}

	p, ok := h.users.Get(exp.ID)
	if !ok || p.IsOnline {
		return
	}

	h.users.Remove(exp.ID)
	h.logger.Info().
		Str("connection_id", exp.ID).
		Str("username", p.Username).
		Time("last_seen", p.LastSeen).
		Msg("Reclaimed offline profile.")

	h.broadcast(EventUpdateUsers, h.users.Snapshot())
}

func (h *Hub) shutdown() {
	close(h.done)

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.connections.Store(0)

	h.reclaimer.Stop()

	h.logger.Info().Msg("Hub event loop finished.")
}

// encode marshals an outbound envelope once for fan-out.
func (h *Hub) encode(eventType EventType, payload any) ([]byte, bool) {
	frame, err := json.Marshal(Envelope{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(eventType)).Msg("Error marshaling outbound event.")
		return nil, false
	}
	return frame, true
}

// broadcast sends an event to every live connection, including the originator.
func (h *Hub) broadcast(eventType EventType, payload any) {
	h.broadcastExcept("", eventType, payload)
}

// broadcastExcept sends an event to every live connection except excludeID.
func (h *Hub) broadcastExcept(excludeID string, eventType EventType, payload any) {
	frame, ok := h.encode(eventType, payload)
	if !ok {
		return
	}

	for id, client := range h.clients {
		if id == excludeID {
			continue
		}
		client.enqueue(frame)
	}
}

// sendTo sends an event to a single connection.
func (h *Hub) sendTo(client *Client, eventType EventType, payload any) {
	frame, ok := h.encode(eventType, payload)
	if !ok {
		return
	}
	client.enqueue(frame)
}

// sendError reports a rejected event to its sender only.
func (h *Hub) sendError(client *Client, err error) {
	payload := ErrorPayload{
		Code:    errs.ErrUnknown,
		Message: fmt.Sprintf("Internal server error: %v", err),
	}

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		payload.Code = customErr.Code
		payload.Message = customErr.Message
	}

	h.sendTo(client, EventError, payload)
}
