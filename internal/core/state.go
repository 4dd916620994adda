package core

import (
	"sort"
	"sync"
	"time"
)

// Persister stores the channel registry outside the process.
type Persister interface {
	SaveChannels(channels []*Channel) error
}

// State is the roster and channel registry reconstructed from the lobby session.
// It is not safe for concurrent use on its own; reach it through Shared.
type State struct {
	clients  map[string]*Client
	channels []*Channel
	admins   map[string]struct{}

	// Mutes holds pending mute-list forwards.
	Mutes *MuteQueue
}

// NewState builds an empty state. The clock drives mute request expiry; nil means time.Now.
func NewState(now func() time.Time) *State {
	return &State{
		clients: make(map[string]*Client),
		admins:  make(map[string]struct{}),
		Mutes:   NewMuteQueue(now),
	}
}

// SetAdmins replaces the set of names that get the admin tier.
func (s *State) SetAdmins(names []string) {
	s.admins = make(map[string]struct{}, len(names))
	for _, name := range names {
		s.admins[name] = struct{}{}
	}
	for name, c := range s.clients {
		_, c.Admin = s.admins[name]
	}
}

// AddClient registers an online user, returning the existing entry if already known.
func (s *State) AddClient(name string) *Client {
	if c, ok := s.clients[name]; ok {
		return c
	}
	c := NewClient(name)
	_, c.Admin = s.admins[name]
	s.clients[name] = c
	return c
}

// RemoveClient forgets an online user. Removing an unknown user is a no-op.
func (s *State) RemoveClient(name string) bool {
	if _, ok := s.clients[name]; !ok {
		return false
	}
	delete(s.clients, name)
	return true
}

// Client returns the online user with the given name, or nil.
func (s *State) Client(name string) *Client {
	return s.clients[name]
}

// Online reports whether name is currently logged in.
func (s *State) Online(name string) bool {
	_, ok := s.clients[name]
	return ok
}

// AccessOf returns the tier of an online user; AccessUnknown when offline.
func (s *State) AccessOf(name string) Access {
	return s.clients[name].Access()
}

// Clients returns online users sorted by name.
func (s *State) Clients() []*Client {
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ClientCount returns the number of online users.
func (s *State) ClientCount() int {
	return len(s.clients)
}

// ResetSession clears everything the server re-sends after a new login.
func (s *State) ResetSession() {
	s.clients = make(map[string]*Client)
	for _, ch := range s.channels {
		ch.Joined = false
		ch.ClearMembers()
	}
}

// Channel returns the registered channel with the given name, or nil.
func (s *State) Channel(name string) *Channel {
	for _, ch := range s.channels {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

// Channels returns the registry in registration order.
func (s *State) Channels() []*Channel {
	out := make([]*Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// AddChannel appends ch to the registry.
func (s *State) AddChannel(ch *Channel) error {
	if s.Channel(ch.Name) != nil {
		return ErrChannelExists
	}
	s.channels = append(s.channels, ch)
	return nil
}

// RemoveChannel deletes a channel from the registry.
func (s *State) RemoveChannel(name string) error {
	for i, ch := range s.channels {
		if ch.Name == name {
			s.channels = append(s.channels[:i], s.channels[i+1:]...)
			return nil
		}
	}
	return ErrChannelNotFound
}

// RoleChange describes one founder or operator entry migrated by a rename.
type RoleChange struct {
	Channel string
	Founder bool
}

// RenameUser carries an account rename across the roster and every channel's
// founder and operator entries.
func (s *State) RenameUser(oldName, newName string) []RoleChange {
	if c, ok := s.clients[oldName]; ok {
		if _, taken := s.clients[newName]; !taken {
			delete(s.clients, oldName)
			c.Name = newName
			_, c.Admin = s.admins[newName]
			s.clients[newName] = c
		}
	}

	var changes []RoleChange
	for _, ch := range s.channels {
		if ch.Founder == oldName {
			ch.Founder = newName
			changes = append(changes, RoleChange{Channel: ch.Name, Founder: true})
		}
		if ch.RenameOperator(oldName, newName) {
			changes = append(changes, RoleChange{Channel: ch.Name})
		}
	}
	return changes
}

// Shared guards a State with one coarse lock.
type Shared struct {
	mu    sync.Mutex
	state *State
}

// NewShared wraps st. st must not be used directly afterwards.
func NewShared(st *State) *Shared {
	return &Shared{state: st}
}

// Do runs fn with exclusive access to the state. fn must not block on network reads.
func (s *Shared) Do(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}
