// Package coordinator holds the shared server state - the registered user
// table, the channel table, and the live session registries for both
// logged-in users and linked peer servers (section 4.7) - plus the
// operations that mutate it under the lock order mandated by section 5:
// users, then channels, then user-sessions, then peer-sessions. Every
// per-connection goroutine calls into a Coordinator directly; there is no
// single-consumer actor loop, since the original system (and this port of
// it) relies on each connection's own goroutine acting on shared state
// under that fixed lock order rather than serializing through one channel.
package coordinator

import (
	"log"
	"sync"

	"github.com/horgh/chatd/internal/chatuser"
	"github.com/horgh/chatd/internal/channel"
	"github.com/horgh/chatd/internal/serverdata"
	"github.com/horgh/chatd/internal/session"
)

// Coordinator owns all shared server state (section 4.7's Server
// Coordinator component).
type Coordinator struct {
	ServerName string
	Operator   string // current server operator nick, "" if none

	usersMu sync.Mutex
	users   map[string]*chatuser.User // keyed by canonical nickname

	channelsMu sync.Mutex
	channels   map[string]*channel.Channel // keyed by canonical channel name

	userSessionsMu sync.Mutex
	userSessions   map[string]*session.Session // keyed by canonical nickname

	peerSessionsMu sync.Mutex
	peerSessions   map[string]*session.Session // keyed by server name

	Data *serverdata.ServerData

	// Shutdown receives the SQUIT comment when SQUIT targets this server
	// (buffered, one value), telling the listener's accept loop to stop so
	// that main returns.
	Shutdown chan string
}

// New builds a Coordinator seeded from previously loaded server data (the
// registered-user table persists across restarts; live sessions and
// channels do not).
func New(serverName string, data *serverdata.ServerData) *Coordinator {
	c := &Coordinator{
		ServerName:   serverName,
		users:        map[string]*chatuser.User{},
		channels:     map[string]*channel.Channel{},
		userSessions: map[string]*session.Session{},
		peerSessions: map[string]*session.Session{},
		Data:         data,
		Shutdown:     make(chan string, 1),
	}
	for nick, u := range data.Users {
		c.users[chatuser.CanonicalizeNick(nick)] = u
	}
	return c
}

// withUsers, withChannels, withUserSessions, and withPeerSessions each
// guard one of the four maps. Callers needing more than one lock at once
// must take them in that order (users, channels, user-sessions,
// peer-sessions) per section 5; nothing outside this package should lock
// these mutexes directly.
func (c *Coordinator) withUsers(fn func(users map[string]*chatuser.User)) {
	c.usersMu.Lock()
	defer c.usersMu.Unlock()
	fn(c.users)
}

func (c *Coordinator) withChannels(fn func(channels map[string]*channel.Channel)) {
	c.channelsMu.Lock()
	defer c.channelsMu.Unlock()
	fn(c.channels)
}

func (c *Coordinator) withUserSessions(fn func(sessions map[string]*session.Session)) {
	c.userSessionsMu.Lock()
	defer c.userSessionsMu.Unlock()
	fn(c.userSessions)
}

func (c *Coordinator) withPeerSessions(fn func(sessions map[string]*session.Session)) {
	c.peerSessionsMu.Lock()
	defer c.peerSessionsMu.Unlock()
	fn(c.peerSessions)
}

// User looks up a registered user by nickname (any case).
func (c *Coordinator) User(nick string) (*chatuser.User, bool) {
	var u *chatuser.User
	var ok bool
	c.withUsers(func(users map[string]*chatuser.User) {
		u, ok = users[chatuser.CanonicalizeNick(nick)]
	})
	return u, ok
}

// AddUser registers a brand-new user (NICK/USER or REGISTRATION action,
// section 4.1). Returns false if the nickname is already taken.
func (c *Coordinator) AddUser(u *chatuser.User) bool {
	added := false
	c.withUsers(func(users map[string]*chatuser.User) {
		key := chatuser.CanonicalizeNick(u.Nickname)
		if _, exists := users[key]; exists {
			return
		}
		users[key] = u
		added = true
	})
	return added
}

// RenameUser moves a user's entry to a new nickname key. Returns false if
// oldNick doesn't exist or newNick is already taken.
func (c *Coordinator) RenameUser(oldNick, newNick string) bool {
	ok := false
	c.withUsers(func(users map[string]*chatuser.User) {
		oldKey := chatuser.CanonicalizeNick(oldNick)
		newKey := chatuser.CanonicalizeNick(newNick)
		u, exists := users[oldKey]
		if !exists {
			return
		}
		if _, taken := users[newKey]; taken {
			return
		}
		delete(users, oldKey)
		u.Nickname = newNick
		users[newKey] = u
		ok = true
	})
	if !ok {
		return false
	}
	c.withUserSessions(func(sessions map[string]*session.Session) {
		oldKey := chatuser.CanonicalizeNick(oldNick)
		newKey := chatuser.CanonicalizeNick(newNick)
		if s, exists := sessions[oldKey]; exists {
			delete(sessions, oldKey)
			s.Identity = newNick
			sessions[newKey] = s
		}
	})
	return true
}

// RemoveUser deletes a user's registration entirely (QUIT, section 4.6).
func (c *Coordinator) RemoveUser(nick string) {
	c.withUsers(func(users map[string]*chatuser.User) {
		delete(users, chatuser.CanonicalizeNick(nick))
	})
}

// Users returns a snapshot of every registered user, for streaming a
// USERS_INFO burst to a newly linked peer (section 4.7).
func (c *Coordinator) Users() []*chatuser.User {
	var out []*chatuser.User
	c.withUsers(func(users map[string]*chatuser.User) {
		out = make([]*chatuser.User, 0, len(users))
		for _, u := range users {
			out = append(out, u)
		}
	})
	return out
}

// Channel looks up a channel by name (any case).
func (c *Coordinator) Channel(name string) (*channel.Channel, bool) {
	var ch *channel.Channel
	var ok bool
	c.withChannels(func(channels map[string]*channel.Channel) {
		ch, ok = channels[channel.CanonicalizeName(name)]
	})
	return ch, ok
}

// ChannelNames returns all currently-existing channel names.
func (c *Coordinator) ChannelNames() []string {
	var names []string
	c.withChannels(func(channels map[string]*channel.Channel) {
		names = make([]string, 0, len(channels))
		for _, ch := range channels {
			names = append(names, ch.Name)
		}
	})
	return names
}

// GetOrCreateChannel returns the named channel, creating it (with creator
// as its founding operator) if it doesn't exist yet. Returns whether it
// was created.
func (c *Coordinator) GetOrCreateChannel(name string, creator chatuser.User) (*channel.Channel, bool) {
	var ch *channel.Channel
	var created bool
	c.withChannels(func(channels map[string]*channel.Channel) {
		key := channel.CanonicalizeName(name)
		if existing, ok := channels[key]; ok {
			ch = existing
			return
		}
		ch = channel.New(name, creator)
		channels[key] = ch
		created = true
	})
	return ch, created
}

// DropChannelIfEmpty deletes name from the channel table if it has no
// members left (invariant I1). Safe to call unconditionally after any
// operation that might empty a channel.
func (c *Coordinator) DropChannelIfEmpty(name string) {
	c.withChannels(func(channels map[string]*channel.Channel) {
		key := channel.CanonicalizeName(name)
		if ch, ok := channels[key]; ok && ch.IsEmpty() {
			delete(channels, key)
		}
	})
}

// UserSession returns the live session for a logged-in user, if any.
func (c *Coordinator) UserSession(nick string) (*session.Session, bool) {
	var s *session.Session
	var ok bool
	c.withUserSessions(func(sessions map[string]*session.Session) {
		s, ok = sessions[chatuser.CanonicalizeNick(nick)]
	})
	return s, ok
}

// RegisterUserSession associates a live session with a freshly logged-in
// nickname.
func (c *Coordinator) RegisterUserSession(nick string, s *session.Session) {
	log.Printf("user session entering: %s (%s)", nick, s.RemoteAddr)
	s.Kind = session.KindUser
	s.Identity = nick
	c.withUserSessions(func(sessions map[string]*session.Session) {
		sessions[chatuser.CanonicalizeNick(nick)] = s
	})
}

// UnregisterUserSession drops a user's live session (on QUIT or
// disconnect).
func (c *Coordinator) UnregisterUserSession(nick string) {
	log.Printf("user session leaving: %s", nick)
	c.withUserSessions(func(sessions map[string]*session.Session) {
		delete(sessions, chatuser.CanonicalizeNick(nick))
	})
}

// PeerSession returns the live session for a linked server, if any.
func (c *Coordinator) PeerSession(serverName string) (*session.Session, bool) {
	var s *session.Session
	var ok bool
	c.withPeerSessions(func(sessions map[string]*session.Session) {
		s, ok = sessions[serverName]
	})
	return s, ok
}

// RegisterPeerSession associates a live session with a freshly linked peer
// server.
func (c *Coordinator) RegisterPeerSession(serverName string, s *session.Session) {
	log.Printf("peer session entering: %s (%s)", serverName, s.RemoteAddr)
	s.Kind = session.KindPeer
	s.Identity = serverName
	c.withPeerSessions(func(sessions map[string]*session.Session) {
		sessions[serverName] = s
	})
}

// UnregisterPeerSession drops a peer server's live session (SQUIT or
// disconnect).
func (c *Coordinator) UnregisterPeerSession(serverName string) {
	log.Printf("peer session leaving: %s", serverName)
	c.withPeerSessions(func(sessions map[string]*session.Session) {
		delete(sessions, serverName)
	})
}

// PeerSessions returns a snapshot of every currently linked peer's
// session, for fan-out (notify_all_but, section 4.8).
func (c *Coordinator) PeerSessions() map[string]*session.Session {
	out := map[string]*session.Session{}
	c.withPeerSessions(func(sessions map[string]*session.Session) {
		for k, v := range sessions {
			out[k] = v
		}
	})
	return out
}

// ServerExists reports whether serverName names this server or any
// currently linked peer (SERVER_EXISTS, section 4.8).
func (c *Coordinator) ServerExists(serverName string) bool {
	if serverName == c.ServerName {
		return true
	}
	_, ok := c.PeerSession(serverName)
	return ok
}
