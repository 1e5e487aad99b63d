// Package chatuser holds the User entity (section 3, 4.3): the identity of
// a registered human, keyed by nickname.
package chatuser

import "strings"

// MaxNickLength is the longest a nickname may be (section 4.3).
const MaxNickLength = 9

// MaxChannelsPerUser bounds how many channels a user may join at once
// (section 4.2 JOIN ordering of checks, ERR_TOOMANYCHANNELS).
const MaxChannelsPerUser = 10

// User is the identity of a registered human. Equality is by nickname.
//
// Channels holds the canonicalized names of channels this user has joined.
// Keep this acyclic: User holds channel *names*, never pointers into
// Channel - the coordinator's maps are the only place identity is resolved
// back and forth (section 9 design note on cyclic references).
type User struct {
	Nickname    string
	Username    string
	RealName    string
	Host        string
	HomeServer  string
	Credential  string
	Channels    map[string]struct{}
	Away        string
}

// New creates a User with an empty channel set.
func New(nickname, username, realname, host, homeServer, credential string) *User {
	return &User{
		Nickname:   nickname,
		Username:   username,
		RealName:   realname,
		Host:       host,
		HomeServer: homeServer,
		Credential: credential,
		Channels:   map[string]struct{}{},
	}
}

// AddChannel records that the user has joined channelName (already
// canonicalized by the caller).
func (u *User) AddChannel(channelName string) {
	u.Channels[channelName] = struct{}{}
}

// RemoveChannel records that the user has left channelName.
func (u *User) RemoveChannel(channelName string) {
	delete(u.Channels, channelName)
}

// OnChannel reports whether the user has joined channelName.
func (u *User) OnChannel(channelName string) bool {
	_, ok := u.Channels[channelName]
	return ok
}

// SetAway sets or clears (text == "") the user's away message. Returns
// whether the away state actually changed, so callers (the coordinator) can
// apply the federation idempotency gate from section 4.6.
func (u *User) SetAway(text string) bool {
	if u.Away == text {
		return false
	}
	u.Away = text
	return true
}

// IsAway reports whether the user has an away message set.
func (u *User) IsAway() bool {
	return u.Away != ""
}

// HasAttribute returns true if name equals any of nickname, username,
// realname, host, or home-server - used by WHO's mask matching.
func (u *User) HasAttribute(name string) bool {
	return u.Nickname == name ||
		u.Username == name ||
		u.RealName == name ||
		u.Host == name ||
		u.HomeServer == name
}

// NickUhost formats the user!~user@host form used as a message prefix when
// a message originates from this user.
func (u *User) NickUhost() string {
	return u.Nickname + "!~" + u.Username + "@" + u.Host
}

// CanonicalizeNick converts a nickname to its canonical (lookup-key) form.
// Nicknames are case-insensitive; we don't strip whitespace or validate
// here, only fold case.
func CanonicalizeNick(nick string) string {
	return strings.ToLower(nick)
}

// IsValidNick reports whether nick is an acceptable nickname: non-empty, at
// most MaxNickLength bytes, and not beginning with '#', '&', or ':' (section
// 4.3).
func IsValidNick(nick string) bool {
	if len(nick) == 0 || len(nick) > MaxNickLength {
		return false
	}
	switch nick[0] {
	case '#', '&', ':':
		return false
	}
	return true
}
