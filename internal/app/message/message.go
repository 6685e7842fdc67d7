/*
Package message holds the relay's bounded chat log.

A Message is immutable once stored except for its read receipts and reactions, which the Store
mutates in place. The Store keeps the most recent messages only and evicts the oldest first.
*/
package message

import (
	"encoding/json"
	"slices"
	"strconv"
	"time"
)

// Reaction is one user's reaction of a given type on a message.
type Reaction struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Type     string `json:"type"`

	// Timestamp is relayed in whatever JSON form the client sent, or stamped by the store
	// when the reaction is toggled.
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Message is a stored chat entry.
// Fields use JSON tags matching the receiveMessage and messageHistory payloads.
type Message struct {
	// ID is assigned by the store at ingestion time.
	ID string `json:"id"`

	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`

	// Timestamp is supplied by the client and stored verbatim, whatever its JSON type.
	Timestamp json.RawMessage `json:"timestamp,omitempty"`

	// Optional inline file payload. FileSize is the client's declaration and is relayed as
	// sent; the size limit is checked against FileData.
	HasFile  bool            `json:"hasFile,omitempty"`
	FileName string          `json:"fileName,omitempty"`
	FileSize json.RawMessage `json:"fileSize,omitempty"`
	FileType string          `json:"fileType,omitempty"`
	FileData string          `json:"fileData,omitempty"`

	// ReadBy lists connection ids that have seen the message, sender first.
	ReadBy []string `json:"readBy"`

	Reactions []Reaction `json:"reactions"`
}

// clone returns a copy that shares no slices with m.
func (m *Message) clone() Message {
	c := *m
	c.ReadBy = slices.Clone(m.ReadBy)
	c.Reactions = slices.Clone(m.Reactions)
	if c.ReadBy == nil {
		c.ReadBy = []string{}
	}
	if c.Reactions == nil {
		c.Reactions = []Reaction{}
	}
	return c
}

// NewID derives a message id from now: decimal milliseconds since the Unix epoch.
// Two messages stored within the same millisecond share an id.
func NewID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// stamp encodes now as a JSON timestamp string.
func stamp(now time.Time) json.RawMessage {
	b, err := json.Marshal(now)
	if err != nil {
		return nil
	}
	return b
}

// dedupeReactions keeps the first reaction for every (UserID, Type) pair.
func dedupeReactions(in []Reaction) []Reaction {
	out := make([]Reaction, 0, len(in))
	for _, r := range in {
		if indexOfReaction(out, r.UserID, r.Type) < 0 {
			out = append(out, r)
		}
	}
	return out
}

func indexOfReaction(reactions []Reaction, userID, reactionType string) int {
	return slices.IndexFunc(reactions, func(r Reaction) bool {
		return r.UserID == userID && r.Type == reactionType
	})
}
