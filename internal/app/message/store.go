package message

import (
	"slices"
	"time"
)

// DefaultHistoryLimit is the number of messages kept when no other limit is configured.
const DefaultHistoryLimit = 100

// Store is the bounded, ordered message log.
// It is not safe for concurrent use; the chat hub owns it from a single goroutine.
type Store struct {
	limit       int
	maxFileSize int64
	messages    []*Message
}

// NewStore returns an empty Store keeping at most limit messages and accepting files up to
// maxFileSize decoded bytes. Non-positive arguments select the defaults.
func NewStore(limit int, maxFileSize int64) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if maxFileSize <= 0 {
		maxFileSize = MaxFileSize
	}

	return &Store{
		limit:       limit,
		maxFileSize: maxFileSize,
		messages:    make([]*Message, 0, limit+1),
	}
}

// Append validates and stores msg on behalf of senderID and returns the stored copy.
// Oversized files are rejected with errs.ErrFileSizeTooLarge before anything is stored.
// The store assigns the id, seeds ReadBy with senderID and keeps the client's reactions,
// deduplicated by (UserID, Type). The oldest messages are evicted once the limit is exceeded.
func (s *Store) Append(msg Message, senderID string, now time.Time) (Message, error) {
	if err := ValidateFileSize(&msg, s.maxFileSize); err != nil {
		return Message{}, err
	}

	msg.ID = NewID(now)
	msg.ReadBy = []string{senderID}
	msg.Reactions = dedupeReactions(msg.Reactions)

	stored := &msg
	s.messages = append(s.messages, stored)

	if overflow := len(s.messages) - s.limit; overflow > 0 {
		clear(s.messages[:overflow])
		s.messages = slices.Delete(s.messages, 0, overflow)
	}

	return stored.clone(), nil
}

// ToggleReaction removes userID's reaction of reactionType from the message when present and
// adds it, stamped with now, when absent. It returns the resulting reaction list, or false when
// no message has messageID.
func (s *Store) ToggleReaction(messageID, userID, username, reactionType string, now time.Time) ([]Reaction, bool) {
	m := s.find(messageID)
	if m == nil {
		return nil, false
	}

	if i := indexOfReaction(m.Reactions, userID, reactionType); i >= 0 {
		m.Reactions = slices.Delete(m.Reactions, i, i+1)
	} else {
		m.Reactions = append(m.Reactions, Reaction{
			UserID:    userID,
			Username:  username,
			Type:      reactionType,
			Timestamp: stamp(now),
		})
	}

	return slices.Clone(m.Reactions), true
}

// MarkRead records that connectionID has seen the message and returns the full ReadBy list.
// It reports false, changing nothing, when the message is unknown or already read by connectionID.
func (s *Store) MarkRead(messageID, connectionID string) ([]string, bool) {
	m := s.find(messageID)
	if m == nil || slices.Contains(m.ReadBy, connectionID) {
		return nil, false
	}

	m.ReadBy = append(m.ReadBy, connectionID)
	return slices.Clone(m.ReadBy), true
}

// History returns copies of all stored messages, oldest first. It never returns nil.
func (s *Store) History() []Message {
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.clone())
	}
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	return len(s.messages)
}

// Limit returns the maximum number of stored messages.
func (s *Store) Limit() int {
	return s.limit
}

// find returns the newest message with id, so a colliding id resolves to the latest write.
func (s *Store) find(id string) *Message {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return s.messages[i]
		}
	}
	return nil
}
