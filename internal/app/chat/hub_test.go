package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/message"
	"chatrelay/internal/app/user"
	"chatrelay/internal/pkg/clockx"
	"chatrelay/internal/pkg/errs"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type received struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func startHub(t *testing.T) (*Hub, *clockx.Manual) {
	t.Helper()

	clock := clockx.NewManual(epoch)
	h := NewHub(HubConfig{Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})

	return h, clock
}

// connect registers a connection without a socket and consumes its history frame.
func connect(t *testing.T, h *Hub, requestedID string) *Client {
	t.Helper()

	c := NewClient(h, nil, requestedID)
	require.NoError(t, h.Register(context.Background(), c))
	expect(t, c, EventMessageHistory)

	return c
}

func emit(t *testing.T, h *Hub, c *Client, eventType EventType, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.True(t, h.submit(c, inboundFrame{Type: eventType, Payload: raw}))
}

func next(t *testing.T, c *Client) received {
	t.Helper()

	select {
	case frame, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		var ev received
		require.NoError(t, json.Unmarshal(frame, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for an event on %s", c.id)
		return received{}
	}
}

func expect(t *testing.T, c *Client, eventType EventType) json.RawMessage {
	t.Helper()

	ev := next(t, c)
	require.Equal(t, eventType, ev.Type, "payload: %s", ev.Payload)
	return ev.Payload
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func expectUsers(t *testing.T, c *Client) []user.Profile {
	t.Helper()
	return decode[[]user.Profile](t, expect(t, c, EventUpdateUsers))
}

func announce(t *testing.T, h *Hub, c *Client, username string, observers ...*Client) {
	t.Helper()

	emit(t, h, c, EventSetUsername, SetUsernamePayload{Username: username})
	for _, o := range append([]*Client{c}, observers...) {
		expectUsers(t, o)
	}
}

func TestHub_ConnectAssignsIDAndSendsEmptyHistory(t *testing.T) {
	h, _ := startHub(t)

	c := NewClient(h, nil, "")
	require.NoError(t, h.Register(context.Background(), c))

	assert.NotEmpty(t, c.ID())
	assert.Equal(t, 1, h.Connections())

	history := decode[[]message.Message](t, expect(t, c, EventMessageHistory))
	assert.Empty(t, history)
}

func TestHub_SetUsernameThenMessage(t *testing.T) {
	h, clock := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")

	emit(t, h, a, EventSetUsername, SetUsernamePayload{Username: "alice"})
	for _, c := range []*Client{a, b} {
		users := expectUsers(t, c)
		require.Len(t, users, 1)
		assert.Equal(t, a.ID(), users[0].ID)
		assert.Equal(t, "alice", users[0].Username)
		assert.True(t, users[0].IsOnline)
		assert.False(t, users[0].IsTyping)
		assert.Contains(t, user.AvatarPalette, users[0].AvatarColor)
	}

	emit(t, h, a, EventMessage, message.Message{Text: "hi", UserID: a.ID(), Username: "alice"})
	for _, c := range []*Client{a, b} {
		typing := decode[UserTypingPayload](t, expect(t, c, EventUserTyping))
		assert.Equal(t, UserTypingPayload{UserID: a.ID(), IsTyping: false}, typing)

		got := decode[message.Message](t, expect(t, c, EventReceiveMessage))
		assert.Equal(t, message.NewID(clock.Now()), got.ID)
		assert.Equal(t, "hi", got.Text)
		assert.Equal(t, []string{a.ID()}, got.ReadBy)
		assert.NotNil(t, got.Reactions)
		assert.Empty(t, got.Reactions)
	}
}

func TestHub_TypingWithoutProfileIsIgnored(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")

	emit(t, h, b, EventTyping, true)

	// The next event A sees must come from B's later setUsername.
	emit(t, h, b, EventSetUsername, SetUsernamePayload{Username: "bob"})
	users := expectUsers(t, a)
	require.Len(t, users, 1)
	assert.False(t, users[0].IsTyping)
}

func TestHub_TypingGoesToEveryoneButTheSender(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")
	announce(t, h, a, "alice", b)

	emit(t, h, a, EventTyping, true)
	typing := decode[UserTypingPayload](t, expect(t, b, EventUserTyping))
	assert.Equal(t, UserTypingPayload{UserID: a.ID(), IsTyping: true}, typing)

	// A's own next event is the typing reset that precedes its message.
	emit(t, h, a, EventMessage, message.Message{Text: "done typing"})
	typing = decode[UserTypingPayload](t, expect(t, a, EventUserTyping))
	assert.False(t, typing.IsTyping)
	expect(t, a, EventReceiveMessage)
}

func TestHub_MessageWithoutProfileSkipsTypingReset(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")

	emit(t, h, a, EventMessage, message.Message{Text: "anonymous"})
	got := decode[message.Message](t, expect(t, a, EventReceiveMessage))
	assert.Equal(t, "anonymous", got.Text)
}

func TestHub_LooseClientFieldsAreRelayedAsSent(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")

	tests := []struct {
		name    string
		payload string
		field   func(map[string]any) any
		want    any
	}{
		{
			name:    "numeric timestamp",
			payload: `{"text": "one", "timestamp": 1714564800000}`,
			field:   func(m map[string]any) any { return m["timestamp"] },
			want:    1714564800000.0,
		},
		{
			name:    "reaction with numeric timestamp",
			payload: `{"text": "two", "reactions": [{"userId": "u1", "type": "like", "timestamp": 1714564800000}]}`,
			field:   func(m map[string]any) any { return m["reactions"].([]any)[0].(map[string]any)["timestamp"] },
			want:    1714564800000.0,
		},
		{
			name:    "reaction with empty timestamp",
			payload: `{"text": "three", "reactions": [{"userId": "u1", "type": "like", "timestamp": ""}]}`,
			field:   func(m map[string]any) any { return m["reactions"].([]any)[0].(map[string]any)["timestamp"] },
			want:    "",
		},
		{
			name:    "reaction with free-form timestamp",
			payload: `{"text": "four", "reactions": [{"userId": "u1", "type": "like", "timestamp": "yesterday"}]}`,
			field:   func(m map[string]any) any { return m["reactions"].([]any)[0].(map[string]any)["timestamp"] },
			want:    "yesterday",
		},
		{
			name:    "string file size",
			payload: `{"text": "five", "fileSize": "12"}`,
			field:   func(m map[string]any) any { return m["fileSize"] },
			want:    "12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, h.submit(a, inboundFrame{Type: EventMessage, Payload: json.RawMessage(tt.payload)}))

			for _, c := range []*Client{a, b} {
				got := decode[map[string]any](t, expect(t, c, EventReceiveMessage))
				assert.Equal(t, tt.want, tt.field(got))
			}
		})
	}
}

func TestHub_ReactionWithoutTimestampOmitsIt(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")

	emit(t, h, a, EventMessage, map[string]any{
		"text":      "plain",
		"reactions": []map[string]string{{"userId": "u1", "type": "like"}},
	})

	got := decode[map[string]any](t, expect(t, a, EventReceiveMessage))
	reaction := got["reactions"].([]any)[0].(map[string]any)
	assert.NotContains(t, reaction, "timestamp")
}

func TestHub_OversizedFileIsReportedToSenderOnly(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")

	big := base64.StdEncoding.EncodeToString(make([]byte, message.MaxFileSize+1))
	emit(t, h, a, EventMessage, message.Message{HasFile: true, FileName: "big.bin", FileData: big})

	errPayload := decode[ErrorPayload](t, expect(t, a, EventError))
	assert.Equal(t, errs.ErrFileSizeTooLarge, errPayload.Code)
	assert.Equal(t, "File size exceeds the 5MB limit", errPayload.Message)

	emit(t, h, a, EventMessage, message.Message{Text: "ok"})
	got := decode[message.Message](t, expect(t, b, EventReceiveMessage))
	assert.Equal(t, "ok", got.Text, "B never saw the rejected message")

	c := NewClient(h, nil, "")
	require.NoError(t, h.Register(context.Background(), c))
	history := decode[[]message.Message](t, expect(t, c, EventMessageHistory))
	require.Len(t, history, 1)
	assert.Equal(t, "ok", history[0].Text)
}

func TestHub_NewcomerReceivesHistoryInOrder(t *testing.T) {
	h, clock := startHub(t)
	a := connect(t, h, "")

	for _, text := range []string{"one", "two", "three"} {
		emit(t, h, a, EventMessage, message.Message{Text: text})
		expect(t, a, EventReceiveMessage)
		clock.Advance(time.Millisecond)
	}

	c := NewClient(h, nil, "")
	require.NoError(t, h.Register(context.Background(), c))
	history := decode[[]message.Message](t, expect(t, c, EventMessageHistory))
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Text)
	assert.Equal(t, "three", history[2].Text)
}

func TestHub_ReactionToggle(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")

	emit(t, h, a, EventMessage, message.Message{Text: "react to me"})
	msg := decode[message.Message](t, expect(t, a, EventReceiveMessage))
	expect(t, b, EventReceiveMessage)

	reaction := ReactionPayload{MessageID: msg.ID, Type: "like", UserID: b.ID(), Username: "bob"}

	emit(t, h, b, EventReaction, reaction)
	for _, c := range []*Client{a, b} {
		update := decode[ReactionUpdatePayload](t, expect(t, c, EventMessageReactionUpdate))
		assert.Equal(t, msg.ID, update.MessageID)
		require.Len(t, update.Reactions, 1)
		assert.Equal(t, b.ID(), update.Reactions[0].UserID)
		assert.Equal(t, "like", update.Reactions[0].Type)
	}

	emit(t, h, b, EventReaction, reaction)
	for _, c := range []*Client{a, b} {
		update := decode[ReactionUpdatePayload](t, expect(t, c, EventMessageReactionUpdate))
		assert.NotNil(t, update.Reactions)
		assert.Empty(t, update.Reactions)
	}
}

func TestHub_UnknownMessageIDsAreIgnored(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")

	emit(t, h, a, EventReaction, ReactionPayload{MessageID: "missing", Type: "like", UserID: a.ID()})
	emit(t, h, a, EventMessageRead, "missing")
	emit(t, h, a, "noSuchEvent", map[string]string{"x": "y"})
	require.True(t, h.submit(a, inboundFrame{Type: EventSetUsername, Payload: json.RawMessage(`"not an object"`)}))

	emit(t, h, a, EventMessage, message.Message{Text: "still alive"})
	got := decode[message.Message](t, expect(t, a, EventReceiveMessage))
	assert.Equal(t, "still alive", got.Text)
}

func TestHub_ReadReceiptsAreMonotone(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")

	emit(t, h, a, EventMessage, message.Message{Text: "read me"})
	msg := decode[message.Message](t, expect(t, a, EventReceiveMessage))
	expect(t, b, EventReceiveMessage)

	emit(t, h, b, EventMessageRead, msg.ID)
	for _, c := range []*Client{a, b} {
		update := decode[ReadUpdatePayload](t, expect(t, c, EventMessageReadUpdate))
		assert.Equal(t, msg.ID, update.MessageID)
		assert.Equal(t, []string{a.ID(), b.ID()}, update.ReadBy)
	}

	// A repeat read changes nothing and is not broadcast.
	emit(t, h, b, EventMessageRead, msg.ID)
	emit(t, h, a, EventMessage, message.Message{Text: "next"})
	expect(t, b, EventReceiveMessage)
}

func TestHub_UserStatus(t *testing.T) {
	h, clock := startHub(t)
	a := connect(t, h, "")
	announce(t, h, a, "alice")

	clock.Advance(time.Minute)
	emit(t, h, a, EventUserStatus, "away")
	users := expectUsers(t, a)
	require.Len(t, users, 1)
	assert.False(t, users[0].IsOnline)
	assert.True(t, users[0].LastSeen.Equal(clock.Now()))

	emit(t, h, a, EventUserStatus, "online")
	assert.True(t, expectUsers(t, a)[0].IsOnline)

	emit(t, h, a, EventUserStatus, 42)
	assert.False(t, expectUsers(t, a)[0].IsOnline, "non-string status means away")
}

func TestHub_DisconnectMarksOfflineThenReclaims(t *testing.T) {
	h, clock := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")
	announce(t, h, a, "alice", b)
	announce(t, h, b, "bob", a)

	h.Unregister(a)
	users := expectUsers(t, b)
	require.Len(t, users, 2)
	assert.Equal(t, a.ID(), users[0].ID)
	assert.False(t, users[0].IsOnline)

	_, open := <-a.send
	assert.False(t, open, "disconnected client's queue is closed")

	clock.Advance(time.Hour)
	users = expectUsers(t, b)
	require.Len(t, users, 1)
	assert.Equal(t, b.ID(), users[0].ID)
}

func TestHub_ReannounceBeforeReclaimKeepsProfile(t *testing.T) {
	h, clock := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")
	announce(t, h, a, "alice", b)

	h.Unregister(a)
	expectUsers(t, b)

	clock.Advance(30 * time.Minute)

	again := connect(t, h, a.ID())
	require.Equal(t, a.ID(), again.ID(), "free id is resumed")

	announce(t, h, again, "alice", b)
	assert.Equal(t, 0, clock.Pending(), "reclaim cancelled")

	clock.Advance(time.Hour)
	emit(t, h, b, EventSetUsername, SetUsernamePayload{Username: "bob"})
	users := expectUsers(t, b)
	require.Len(t, users, 2)
	assert.Equal(t, a.ID(), users[0].ID)
	assert.True(t, users[0].IsOnline)
}

func TestHub_ResumeOfLiveIDIsRejected(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")

	dup := connect(t, h, a.ID())
	assert.NotEqual(t, a.ID(), dup.ID())

	bogus := connect(t, h, "not-a-connection-id")
	assert.NotEqual(t, "not-a-connection-id", bogus.ID())
	assert.Equal(t, 3, h.Connections())
}

func TestHub_EventsAfterUnregisterAreDropped(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")
	b := connect(t, h, "")

	h.Unregister(a)
	emit(t, h, a, EventMessage, message.Message{Text: "ghost"})
	emit(t, h, b, EventMessage, message.Message{Text: "real"})

	got := decode[message.Message](t, expect(t, b, EventReceiveMessage))
	assert.Equal(t, "real", got.Text)
}

func TestHub_RegisterAfterStopFails(t *testing.T) {
	h := NewHub(HubConfig{Clock: clockx.NewManual(epoch)})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	a := connect(t, h, "")
	cancel()
	<-h.Done()

	_, open := <-a.send
	assert.False(t, open)
	assert.Equal(t, 0, h.Connections())

	err := h.Register(context.Background(), NewClient(h, nil, ""))
	assert.True(t, errs.HasCode(err, errs.ErrServiceUnavailable))
	assert.False(t, h.submit(a, inboundFrame{Type: EventTyping}))
}

func TestHub_FullQueueDropsFrames(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, "")

	for range sendQueueSize {
		require.True(t, a.enqueue([]byte("{}")))
	}
	assert.False(t, a.enqueue([]byte("{}")))
}
