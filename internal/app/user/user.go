/*
Package user holds presence profiles for live connections.

A Profile is the identity, presence and typing state announced by one connection. The Registry
owns every profile, keyed by connection id, and iterates them in the order they were first
announced.
*/
package user

import (
	"time"

	"chatrelay/internal/pkg/randx"
)

// StatusOnline is the only status value that marks a profile online; anything else means away.
const StatusOnline = "online"

// AvatarPalette is the set of colours assigned when a client does not choose one.
var AvatarPalette = []string{
	"#FF5733", "#33FF57", "#3357FF", "#FF33A8",
	"#33FFF5", "#F5FF33", "#FF8333", "#8333FF",
}

// Profile is the presence record of one connection.
// Fields use JSON tags matching the updateUsers payload.
type Profile struct {
	// ID is the connection id that announced the profile.
	ID string `json:"id"`

	// Username is the display name, accepted as sent.
	Username string `json:"username"`

	IsOnline bool `json:"isOnline"`
	IsTyping bool `json:"isTyping"`

	// LastSeen is stamped on announce, status change and disconnect.
	LastSeen time.Time `json:"lastSeen"`

	AvatarColor string `json:"avatarColor"`
}

// RandomAvatarColor picks a colour from AvatarPalette.
func RandomAvatarColor() string {
	return randx.Pick(AvatarPalette)
}
