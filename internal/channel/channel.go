// Package channel implements the Channel entity and its mode state machine
// (section 3, 4.2). A Channel is only ever mutated by the coordinator's
// single-consumer loop, so none of its methods take their own lock - the
// caller holds the channel map's mutex for the duration.
package channel

import (
	"strconv"
	"strings"

	"github.com/horgh/chatd/internal/chatuser"
	"github.com/horgh/chatd/internal/numeric"
)

// MaxNameLength bounds channel name length (generous; section 4.2 doesn't
// name a specific limit beyond RFC's 50).
const MaxNameLength = 50

// EnterMode names which of the mutually exclusive entry restrictions (if
// any) is active. At most one is ever set (invariant I4).
type EnterMode int

const (
	// EnterNone means neither +i nor +k is set.
	EnterNone EnterMode = iota
	EnterInvite
	EnterKey
)

// Channel holds everything the coordinator needs to know about one named
// group (section 3).
type Channel struct {
	Name    string
	Topic   string
	HasTopic bool

	// Members maps the member's Nickname, exactly as stored on its User (not
	// case-folded), to the member's display User. A
	// Channel holds value snapshots, not pointers back into the user map -
	// see section 9's cyclic-reference note.
	Members map[string]chatuser.User

	Operators map[string]struct{}
	Invited   map[string]struct{}
	Banned    map[string]struct{}

	Key   string
	Limit int // 0 means unlimited

	EnterMode EnterMode

	OperatorSettableTopic bool
	Secret                bool
}

// New creates a Channel with operator as its first (and, by invariant I3,
// only) operator.
func New(name string, operator chatuser.User) *Channel {
	c := &Channel{
		Name:      name,
		Members:   map[string]chatuser.User{},
		Operators: map[string]struct{}{},
		Invited:   map[string]struct{}{},
		Banned:    map[string]struct{}{},
	}
	c.Members[operator.Nickname] = operator
	c.Operators[operator.Nickname] = struct{}{}
	return c
}

// IsFederated reports whether this is a multi-server ('#') channel, as
// opposed to a single-server ('&') one (invariant I5).
func IsFederated(name string) bool {
	return strings.HasPrefix(name, "#")
}

// IsValidName reports whether name is an acceptable channel name: non-empty,
// at most MaxNameLength bytes, and beginning with '#' or '&'.
func IsValidName(name string) bool {
	if len(name) == 0 || len(name) > MaxNameLength {
		return false
	}
	return name[0] == '#' || name[0] == '&'
}

// CanonicalizeName folds a channel name to its canonical (lookup-key) form.
func CanonicalizeName(name string) string {
	return strings.ToLower(name)
}

// IsEmpty reports whether the channel has no members. Per invariant I1 the
// coordinator must delete an empty channel immediately after any operation
// that could produce one.
func (c *Channel) IsEmpty() bool {
	return len(c.Members) == 0
}

// IsMember reports whether nick is a member.
func (c *Channel) IsMember(nick string) bool {
	_, ok := c.Members[nick]
	return ok
}

// IsOperator reports whether nick is a channel operator.
func (c *Channel) IsOperator(nick string) bool {
	_, ok := c.Operators[nick]
	return ok
}

func (c *Channel) isBanned(nick string) bool {
	_, ok := c.Banned[nick]
	return ok
}

func (c *Channel) isInvited(nick string) bool {
	_, ok := c.Invited[nick]
	return ok
}

// TopicReply returns RPL_TOPIC or RPL_NOTOPIC for the channel's current
// topic.
func (c *Channel) TopicReply() numeric.Reply {
	if !c.HasTopic {
		return numeric.New(numeric.NoTopic, []string{c.Name}, "")
	}
	return numeric.New(numeric.Topic, []string{c.Name}, c.Topic)
}

// Join attempts to add user to the channel, applying the ordering of checks
// from section 4.2. On success the user is inserted and a topic reply is
// returned; on failure an error reply is returned and no mutation occurs.
func (c *Channel) Join(user chatuser.User, key string) numeric.Reply {
	if c.IsMember(user.Nickname) {
		return c.TopicReply()
	}

	if c.isBanned(user.Nickname) {
		return numeric.New(numeric.BannedFromChan, []string{c.Name}, "")
	}

	if len(user.Channels) >= chatuser.MaxChannelsPerUser {
		return numeric.New(numeric.TooManyChannels, []string{c.Name}, "")
	}

	if c.Limit > 0 && len(c.Members) >= c.Limit {
		return numeric.New(numeric.ChannelIsFull, []string{c.Name}, "")
	}

	switch c.EnterMode {
	case EnterInvite:
		if !c.isInvited(user.Nickname) {
			return numeric.New(numeric.InviteOnlyChan, []string{c.Name}, "")
		}
	case EnterKey:
		if key == "" {
			return numeric.New(numeric.ChannelHasKey, nil, "")
		}
		if key != c.Key {
			return numeric.New(numeric.BadChannelKey, []string{c.Name}, "")
		}
	}

	c.Members[user.Nickname] = user
	delete(c.Invited, user.Nickname)

	return c.TopicReply()
}

// Part removes user from the channel. Returns an error reply if the user
// wasn't a member; otherwise promotes a replacement operator if the last
// one just left (invariant I3) and returns nil. The caller is responsible
// for deleting the channel if IsEmpty() afterward (invariant I1).
func (c *Channel) Part(nick string) *numeric.Reply {
	if !c.removeMember(nick) {
		r := numeric.New(numeric.NotOnChannel, []string{nick, c.Name}, "")
		return &r
	}
	c.ensureOperator()
	return nil
}

// Kick removes target from the channel on actor's behalf. Self-kick is a
// no-op success (section 4.2). actor must be an operator.
func (c *Channel) Kick(target, actor string) *numeric.Reply {
	if r := c.requirePrivileges(actor); r != nil {
		return r
	}

	if !c.IsMember(target) {
		r := numeric.New(numeric.NoSuchNick, []string{c.Name, target}, "")
		return &r
	}

	if target == actor {
		return nil
	}

	c.removeMember(target)
	c.ensureOperator()
	return nil
}

// removeMember deletes nick from Members and Operators, returning whether
// it was present.
func (c *Channel) removeMember(nick string) bool {
	if !c.IsMember(nick) {
		return false
	}
	delete(c.Members, nick)
	delete(c.Operators, nick)
	return true
}

// ensureOperator promotes an arbitrary remaining member to operator if the
// channel is non-empty but has no operator left (invariant I3).
func (c *Channel) ensureOperator() {
	if len(c.Members) == 0 || len(c.Operators) > 0 {
		return
	}
	for nick := range c.Members {
		c.Operators[nick] = struct{}{}
		return
	}
}

// requirePrivileges returns ERR_NOTONCHANNEL or ERR_CHANOPRIVSNEEDED if
// actor can't exercise operator privileges here, else nil.
func (c *Channel) requirePrivileges(actor string) *numeric.Reply {
	if !c.IsMember(actor) {
		r := numeric.New(numeric.NotOnChannel, []string{c.Name}, "")
		return &r
	}
	if !c.IsOperator(actor) {
		r := numeric.New(numeric.ChanOPrivsNeeded, []string{c.Name}, "")
		return &r
	}
	return nil
}

// Invite records that target has been invited by actor. actor must be an
// operator; target must not already be a member.
func (c *Channel) Invite(target, actor string) *numeric.Reply {
	if r := c.requirePrivileges(actor); r != nil {
		return r
	}
	if c.IsMember(target) {
		r := numeric.New(numeric.UserOnChannel, []string{c.Name, target}, "")
		return &r
	}
	c.Invited[target] = struct{}{}
	return nil
}

// SetTopic sets the channel topic to text on actor's behalf. Requires
// membership always, and operator status additionally when
// OperatorSettableTopic is set. The second return value reports whether the
// topic text actually changed, for the federation idempotency gate (section
// 4.6): re-setting the same topic verbatim reports false, and the caller
// then sends it neither to the other members nor to peers.
func (c *Channel) SetTopic(actor, text string) (numeric.Reply, bool) {
	if !c.IsMember(actor) {
		return numeric.New(numeric.NotOnChannel, []string{c.Name}, ""), false
	}
	if c.OperatorSettableTopic && !c.IsOperator(actor) {
		return numeric.New(numeric.ChanOPrivsNeeded, []string{c.Name}, ""), false
	}

	if c.HasTopic && c.Topic == text {
		return numeric.New(numeric.Topic, []string{c.Name}, text), false
	}

	c.Topic = text
	c.HasTopic = true

	return numeric.New(numeric.Topic, []string{c.Name}, text), true
}

// ModeResult reports the outcome of SetMode: whether local state actually
// changed (for the federation idempotency gate, section 4.6/P5) and any
// error reply to send back to the actor.
type ModeResult struct {
	Changed bool
	Error   *numeric.Reply
}

func changed() ModeResult    { return ModeResult{Changed: true} }
func unchanged() ModeResult  { return ModeResult{Changed: false} }
func failure(r numeric.Reply) ModeResult {
	return ModeResult{Error: &r}
}

// SetMode applies a single +/- mode token on actor's behalf. arg is the
// mode's argument if it takes one (key, limit, nick), else "".
//
// The enter-mode state machine (section 4.2): None -> Invite on +i, None ->
// Key on +k, Invite -> None on -i (clears invites), Key -> None on -k,
// Invite -> Key on +k (clears invites), Key -> Invite on +i (clears key).
func (c *Channel) SetMode(actor string, sign byte, letter byte, arg string) ModeResult {
	if r := c.requirePrivileges(actor); r != nil {
		return failure(*r)
	}

	switch letter {
	case 'k':
		if sign == '+' {
			if arg == "" {
				return failure(numeric.New(numeric.NeedMoreParams, nil, ""))
			}
			if c.EnterMode == EnterKey && c.Key != "" {
				return failure(numeric.New(numeric.KeySet, nil, ""))
			}
			c.Invited = map[string]struct{}{}
			c.EnterMode = EnterKey
			c.Key = arg
			return changed()
		}
		if c.EnterMode != EnterKey && c.Key == "" {
			return unchanged()
		}
		c.EnterMode = EnterNone
		c.Key = ""
		return changed()

	case 'l':
		if sign == '+' {
			if arg == "" {
				return failure(numeric.New(numeric.NeedMoreParams, nil, ""))
			}
			limit, err := strconv.Atoi(arg)
			if err != nil || limit < 0 {
				return failure(numeric.New(numeric.InvalidLimit, []string{arg}, ""))
			}
			if c.Limit == limit {
				return unchanged()
			}
			c.Limit = limit
			return changed()
		}
		if c.Limit == 0 {
			return unchanged()
		}
		c.Limit = 0
		return changed()

	case 'i':
		if sign == '+' {
			if c.EnterMode == EnterInvite {
				return unchanged()
			}
			c.Key = ""
			c.EnterMode = EnterInvite
			return changed()
		}
		if c.EnterMode != EnterInvite {
			return unchanged()
		}
		c.EnterMode = EnterNone
		c.Invited = map[string]struct{}{}
		return changed()

	case 'o':
		if arg == "" {
			return failure(numeric.New(numeric.NeedMoreParams, nil, ""))
		}
		return c.setOperator(sign, arg, actor)

	case 't':
		if sign == '+' {
			if c.OperatorSettableTopic {
				return unchanged()
			}
			c.OperatorSettableTopic = true
			return changed()
		}
		if !c.OperatorSettableTopic {
			return unchanged()
		}
		c.OperatorSettableTopic = false
		return changed()

	case 's':
		if sign == '+' {
			if c.Secret {
				return unchanged()
			}
			c.Secret = true
			return changed()
		}
		if !c.Secret {
			return unchanged()
		}
		c.Secret = false
		return changed()

	case 'b':
		return c.setBan(sign, arg)
	}

	return failure(numeric.New(numeric.UnknownMode, []string{string(letter)}, ""))
}

func (c *Channel) setOperator(sign byte, target, actor string) ModeResult {
	if sign == '+' {
		if !c.IsMember(target) {
			return failure(numeric.New(numeric.NoSuchNick, []string{c.Name, target}, ""))
		}
		if c.IsOperator(target) {
			return unchanged()
		}
		c.Operators[target] = struct{}{}
		return changed()
	}

	// Self-deop is a no-op, the same as self-kick: it must never leave a
	// non-empty channel with no operator left (invariant I3).
	if target == actor {
		return unchanged()
	}

	// Deop of a non-member fails; deop of a non-operator member is a no-op.
	if !c.IsMember(target) {
		return failure(numeric.New(numeric.NoSuchNick, []string{c.Name, target}, ""))
	}
	if !c.IsOperator(target) {
		return unchanged()
	}
	delete(c.Operators, target)
	return changed()
}

func (c *Channel) setBan(sign byte, arg string) ModeResult {
	if sign == '+' {
		if arg == "" {
			return failure(numeric.New(numeric.NeedMoreParams, nil, ""))
		}
		if c.isBanned(arg) {
			return unchanged()
		}
		c.Banned[arg] = struct{}{}
		return changed()
	}

	if arg == "" {
		if len(c.Banned) == 0 {
			return unchanged()
		}
		c.Banned = map[string]struct{}{}
		return changed()
	}

	if !c.isBanned(arg) {
		return unchanged()
	}
	delete(c.Banned, arg)
	return changed()
}

// MemberNicks returns the channel's member nicknames, operators first,
// sorted only by that grouping (stable iteration order is not otherwise
// guaranteed) - used by NAMES formatting.
func (c *Channel) MemberNicks() []string {
	nicks := make([]string, 0, len(c.Members))
	for nick := range c.Members {
		if c.IsOperator(nick) {
			nicks = append(nicks, nick)
		}
	}
	for nick := range c.Members {
		if !c.IsOperator(nick) {
			nicks = append(nicks, nick)
		}
	}
	return nicks
}
