package user

import (
	"slices"
	"time"
)

// Registry maps connection ids to profiles.
// It is not safe for concurrent use; the chat hub owns it from a single goroutine.
type Registry struct {
	order    []string
	profiles map[string]*Profile

	// pickColor chooses an avatar colour when the client sends none.
	pickColor func() string
}

// NewRegistry returns an empty Registry that assigns colours with RandomAvatarColor.
func NewRegistry() *Registry {
	return &Registry{
		profiles:  make(map[string]*Profile),
		pickColor: RandomAvatarColor,
	}
}

// SetUsername creates or overwrites the profile for id and returns a copy of it.
// An empty avatarColor is replaced with a palette colour. The profile comes back online,
// not typing, with LastSeen set to now. An overwritten profile keeps its position.
func (r *Registry) SetUsername(id, username, avatarColor string, now time.Time) Profile {
	if avatarColor == "" {
		avatarColor = r.pickColor()
	}

	p, ok := r.profiles[id]
	if !ok {
		p = &Profile{ID: id}
		r.profiles[id] = p
		r.order = append(r.order, id)
	}

	p.Username = username
	p.AvatarColor = avatarColor
	p.IsOnline = true
	p.IsTyping = false
	p.LastSeen = now

	return *p
}

// SetTyping updates the typing flag. It reports false when id has no profile.
func (r *Registry) SetTyping(id string, isTyping bool) bool {
	p, ok := r.profiles[id]
	if !ok {
		return false
	}
	p.IsTyping = isTyping
	return true
}

// SetStatus marks the profile online when status is StatusOnline and away otherwise,
// stamping LastSeen. It reports false when id has no profile.
func (r *Registry) SetStatus(id, status string, now time.Time) bool {
	p, ok := r.profiles[id]
	if !ok {
		return false
	}
	p.IsOnline = status == StatusOnline
	p.LastSeen = now
	return true
}

// Disconnect marks the profile offline and stamps LastSeen.
// It reports false when id has no profile.
func (r *Registry) Disconnect(id string, now time.Time) bool {
	p, ok := r.profiles[id]
	if !ok {
		return false
	}
	p.IsOnline = false
	p.LastSeen = now
	return true
}

// Remove deletes the profile for id. It reports whether one existed.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.profiles[id]; !ok {
		return false
	}
	delete(r.profiles, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
	return true
}

// Get returns a copy of the profile for id.
func (r *Registry) Get(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// Has reports whether id has announced a profile.
func (r *Registry) Has(id string) bool {
	_, ok := r.profiles[id]
	return ok
}

// Len returns the number of profiles.
func (r *Registry) Len() int {
	return len(r.order)
}

// Snapshot returns copies of all profiles in announcement order. It never returns nil.
func (r *Registry) Snapshot() []Profile {
	out := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.profiles[id])
	}
	return out
}
