package chat

import (
	"encoding/json"

	"chatrelay/internal/app/message"
)

// dispatch routes one inbound frame to its handler. Runs on the hub goroutine.
func (h *Hub) dispatch(c *Client, frame inboundFrame) {
	switch frame.Type {
	case EventSetUsername:
		h.handleSetUsername(c, frame.Payload)

	case EventMessage:
		h.handleMessage(c, frame.Payload)

	case EventReaction:
		h.handleReaction(c, frame.Payload)

	case EventTyping:
		h.handleTyping(c, frame.Payload)

	case EventMessageRead:
		h.handleMessageRead(c, frame.Payload)

	case EventUserStatus:
		h.handleUserStatus(c, frame.Payload)

	default:
		c.logger.Warn().Str("event", string(frame.Type)).Msg("Client sent unsupported event type")
	}
}

func (h *Hub) handleSetUsername(c *Client, raw json.RawMessage) {
	var payload SetUsernamePayload
	if err := decodePayload(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid setUsername payload")
		return
	}

	p := h.users.SetUsername(c.id, payload.Username, payload.AvatarColor, h.clock.Now())
	if h.reclaimer.Cancel(c.id) {
		c.logger.Info().Msg("Profile re-announced before reclaim; removal cancelled.")
	}

	c.logger.Info().Str("username", p.Username).Msg("User joined the chat.")
	h.broadcast(EventUpdateUsers, h.users.Snapshot())
}

func (h *Hub) handleMessage(c *Client, raw json.RawMessage) {
	var draft message.Message
	if err := decodePayload(raw, &draft); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid message payload")
		return
	}

	stored, err := h.messages.Append(draft, c.id, h.clock.Now())
	if err != nil {
		c.logger.Info().Err(err).
			Str("file_name", draft.FileName).
			Str("declared_size", string(draft.FileSize)).
			Msg("Message rejected")
		h.sendError(c, err)
		return
	}

	if stored.HasFile {
		c.logger.Info().
			Str("file_name", stored.FileName).
			Str("file_size", string(stored.FileSize)).
			Msg("File received")
	}

	// Sending a message ends the sender's typing state.
	if h.profileGate(c.id) && h.users.SetTyping(c.id, false) {
		h.broadcast(EventUserTyping, UserTypingPayload{UserID: c.id, IsTyping: false})
	}

	h.broadcast(EventReceiveMessage, stored)
}

func (h *Hub) handleReaction(c *Client, raw json.RawMessage) {
	var payload ReactionPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid reaction payload")
		return
	}

	reactions, ok := h.messages.ToggleReaction(payload.MessageID, payload.UserID, payload.Username, payload.Type, h.clock.Now())
	if !ok {
		c.logger.Debug().Str("message_id", payload.MessageID).Msg("Reaction for unknown message ignored")
		return
	}

	h.broadcast(EventMessageReactionUpdate, ReactionUpdatePayload{
		MessageID: payload.MessageID,
		Reactions: reactions,
	})
}

func (h *Hub) handleTyping(c *Client, raw json.RawMessage) {
	var isTyping bool
	if err := decodePayload(raw, &isTyping); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid typing payload")
		return
	}

	if !h.profileGate(c.id) || !h.users.SetTyping(c.id, isTyping) {
		c.logger.Debug().Msg("Typing from connection without profile ignored")
		return
	}

	h.broadcastExcept(c.id, EventUserTyping, UserTypingPayload{UserID: c.id, IsTyping: isTyping})
}

func (h *Hub) handleMessageRead(c *Client, raw json.RawMessage) {
	var messageID string
	if err := decodePayload(raw, &messageID); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid messageRead payload")
		return
	}

	readBy, ok := h.messages.MarkRead(messageID, c.id)
	if !ok {
		return
	}

	h.broadcast(EventMessageReadUpdate, ReadUpdatePayload{
		MessageID: messageID,
		ReadBy:    readBy,
	})
}

func (h *Hub) handleUserStatus(c *Client, raw json.RawMessage) {
	// Any value other than the string "online" means away.
	var status any
	if err := decodePayload(raw, &status); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid userStatus payload")
		return
	}
	statusStr, _ := status.(string)

	if !h.profileGate(c.id) || !h.users.SetStatus(c.id, statusStr, h.clock.Now()) {
		c.logger.Debug().Msg("Status from connection without profile ignored")
		return
	}

	h.broadcast(EventUpdateUsers, h.users.Snapshot())
}

// handleDisconnect marks the connection's profile offline and schedules its reclaim.
func (h *Hub) handleDisconnect(connID string) {
	if !h.users.Disconnect(connID, h.clock.Now()) {
		return
	}

	h.reclaimer.Schedule(connID)
	h.broadcast(EventUpdateUsers, h.users.Snapshot())
}
