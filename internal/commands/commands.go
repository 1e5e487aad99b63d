// Package commands implements the per-command handler library a logged-in
// user's Client Handler dispatches into (section 4.5). Each handler takes
// the parsed wire.Message, the acting session, and a Context bundling the
// shared Coordinator and this server's federation Role, and replies
// directly to the actor's session - it never returns an error for a
// logical failure; those become numeric.Reply values written straight to
// the wire, matching how command.go's handlers in the teacher work.
package commands

import (
	"strconv"
	"strings"

	"github.com/horgh/chatd/internal/channel"
	"github.com/horgh/chatd/internal/chatuser"
	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/numeric"
	"github.com/horgh/chatd/internal/serverrole"
	"github.com/horgh/chatd/internal/session"
	"github.com/horgh/chatd/internal/wire"
)

// Context bundles what every handler needs: the shared state and this
// server's federation role.
type Context struct {
	Coord *coordinator.Coordinator
	Role  serverrole.Role
}

func (ctx *Context) reply(s *session.Session, r numeric.Reply) {
	s.Send(r.ToWireMessage())
}

// splitGroup returns group[0], or "" if group is empty - a convenience for
// reading an optional first element of a wire.ParamGroup.
func splitGroup(m wire.Message, i int) string {
	if i >= len(m.Params) || len(m.Params[i]) == 0 {
		return ""
	}
	return m.Params[i][0]
}

func groupOrNil(m wire.Message, i int) []string {
	if i >= len(m.Params) {
		return nil
	}
	return []string(m.Params[i])
}

// actorUser resolves the chatuser.User behind whoever is acting in m. For a
// user session s.Identity is itself the acting nick. For a peer session
// s.Identity holds the peer server's name, not a nick - coordinator.
// RegisterPeerSession key it that way - so the acting nick there is instead
// m.Prefix, the identity federate() stamped on the message before forwarding
// it. Returns nil if no such user is known locally; every caller must check.
func (ctx *Context) actorUser(s *session.Session, m wire.Message) *chatuser.User {
	nick := s.Identity
	if s.Kind == session.KindPeer {
		nick = m.Prefix
	}
	u, _ := ctx.Coord.User(nick)
	return u
}

// federate forwards msg, prefixed with actor, to every linked peer except
// homeServer. Excluding the message's own home server keeps a federated
// event from bouncing back to the server it originated from (section 4.6):
// for a locally-originated event homeServer is this server's own name,
// which never matches a peer, so nothing is actually excluded; for an event
// arriving from a peer and re-dispatched locally, homeServer is that peer's
// name and it's skipped.
func (ctx *Context) federate(actor, homeServer string, msg wire.Message) {
	_ = ctx.Role.NotifyAllBut(msg.WithPrefix(actor), homeServer)
}

// Nick handles the NICK command post-registration: renaming an existing
// logged-in user. Registration-time NICK is handled by the connhandler
// package instead, since an unregistered connection has no User yet.
func (ctx *Context) Nick(s *session.Session, m wire.Message) {
	newNick := splitGroup(m, 0)
	if newNick == "" {
		ctx.reply(s, numeric.New(numeric.NoNicknameGiven, nil, ""))
		return
	}
	if !chatuser.IsValidNick(newNick) {
		ctx.reply(s, numeric.New(numeric.ErroneusNickname, []string{newNick}, ""))
		return
	}

	oldNick := s.Identity
	actor, _ := ctx.Coord.User(oldNick)
	if actor == nil {
		return
	}
	if !ctx.Coord.RenameUser(oldNick, newNick) {
		ctx.reply(s, numeric.New(numeric.NicknameInUse, []string{newNick}, ""))
		return
	}

	notice := wire.Message{
		Prefix:  oldNick,
		Command: "NICK",
		Params:  []wire.ParamGroup{{newNick}},
	}
	s.Send(notice)
	ctx.federate(oldNick, actor.HomeServer, notice)
}

// Privmsg handles PRIVMSG (and, via the same logic, NOTICE - section
// 4.5). isNotice suppresses numeric error replies, since NOTICE must never
// generate an automatic reply.
func (ctx *Context) Privmsg(s *session.Session, m wire.Message, isNotice bool) {
	receivers := groupOrNil(m, 0)
	text := splitGroup(m, 1)

	if len(receivers) == 0 || receivers[0] == "" {
		if !isNotice {
			ctx.reply(s, numeric.New(numeric.NoRecipient, []string{m.Command}, ""))
		}
		return
	}
	if text == "" {
		if !isNotice {
			ctx.reply(s, numeric.New(numeric.NoTextToSend, nil, ""))
		}
		return
	}

	command := "PRIVMSG"
	if isNotice {
		command = "NOTICE"
	}

	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}

	for _, recv := range receivers {
		if strings.HasPrefix(recv, "#") || strings.HasPrefix(recv, "&") {
			ctx.sendToChannel(s, actor, recv, text, command, isNotice)
			continue
		}
		ctx.sendToUser(s, actor, recv, text, command, isNotice)
	}
}

func (ctx *Context) sendToChannel(s *session.Session, actor *chatuser.User, chanName, text, command string, isNotice bool) {
	ch, ok := ctx.Coord.Channel(chanName)
	if !ok {
		if !isNotice {
			ctx.reply(s, numeric.New(numeric.NoSuchNick, []string{chanName}, ""))
		}
		return
	}
	if !ch.IsMember(actor.Nickname) {
		if !isNotice {
			ctx.reply(s, numeric.New(numeric.NotOnChannel, []string{chanName}, ""))
		}
		return
	}

	msg := wire.Message{
		Prefix:  actor.NickUhost(),
		Command: command,
		Params:  []wire.ParamGroup{{chanName}, {text}},
	}

	for _, nick := range ch.MemberNicks() {
		if nick == actor.Nickname {
			continue
		}
		if sess, ok := ctx.Coord.UserSession(nick); ok {
			sess.Send(msg)
		}
	}

	if channel.IsFederated(chanName) {
		ctx.federate(actor.Nickname, actor.HomeServer, msg)
	}
}

func (ctx *Context) sendToUser(s *session.Session, actor *chatuser.User, nick, text, command string, isNotice bool) {
	target, ok := ctx.Coord.User(nick)
	if !ok {
		if !isNotice {
			ctx.reply(s, numeric.New(numeric.NoSuchNick, []string{nick}, ""))
		}
		return
	}

	msg := wire.Message{
		Prefix:  actor.NickUhost(),
		Command: command,
		Params:  []wire.ParamGroup{{nick}, {text}},
	}

	if sess, ok := ctx.Coord.UserSession(nick); ok {
		sess.Send(msg)
	} else if target.HomeServer != ctx.Coord.ServerName {
		_ = ctx.Role.SendToServer(msg.WithPrefix(actor.Nickname), target.HomeServer)
	}

	if target.IsAway() && !isNotice {
		ctx.reply(s, numeric.New(numeric.Away, []string{nick}, target.Away))
	}
}

// Join handles JOIN: one or more comma-clustered channel names in
// params[0], with an optional aligned cluster of keys in params[1].
func (ctx *Context) Join(s *session.Session, m wire.Message) {
	names := groupOrNil(m, 0)
	if len(names) == 0 {
		ctx.reply(s, numeric.New(numeric.NeedMoreParams, []string{"JOIN"}, ""))
		return
	}
	keys := groupOrNil(m, 1)

	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}

	for i, name := range names {
		if !channel.IsValidName(name) {
			ctx.reply(s, numeric.New(numeric.NoSuchChannel, []string{name}, ""))
			continue
		}
		key := ""
		if i < len(keys) {
			key = keys[i]
		}

		ch, created := ctx.Coord.GetOrCreateChannel(name, *actor)
		var r numeric.Reply
		if created {
			r = ch.TopicReply()
		} else {
			r = ch.Join(*actor, key)
		}

		if r.HasCode(numeric.Topic, numeric.NoTopic) {
			actor.AddChannel(channel.CanonicalizeName(name))
			ctx.announceJoin(s, actor, ch)
		}

		// A JOIN forwarded by a peer server has no local client to answer.
		if s.Kind == session.KindPeer {
			continue
		}

		ctx.reply(s, r)

		if r.HasCode(numeric.Topic, numeric.NoTopic) {
			ctx.sendNames(s, ch)
		}
	}
}

func (ctx *Context) announceJoin(s *session.Session, actor *chatuser.User, ch *channel.Channel) {
	msg := wire.Message{
		Prefix:  actor.NickUhost(),
		Command: "JOIN",
		Params:  []wire.ParamGroup{{ch.Name}},
	}
	for _, nick := range ch.MemberNicks() {
		if nick == actor.Nickname {
			continue
		}
		if sess, ok := ctx.Coord.UserSession(nick); ok {
			sess.Send(msg)
		}
	}
	if channel.IsFederated(ch.Name) {
		ctx.federate(actor.Nickname, actor.HomeServer, msg)
	}
}

func (ctx *Context) sendNames(s *session.Session, ch *channel.Channel) {
	for _, nick := range ch.MemberNicks() {
		prefix := ""
		if ch.IsOperator(nick) {
			prefix = "@"
		}
		ctx.reply(s, numeric.New(numeric.NameReply, []string{"=", ch.Name}, prefix+nick))
	}
	ctx.reply(s, numeric.New(numeric.EndOfNames, []string{ch.Name}, ""))
}

// Part handles PART: a comma-clustered list of channels to leave.
func (ctx *Context) Part(s *session.Session, m wire.Message) {
	names := groupOrNil(m, 0)
	if len(names) == 0 {
		ctx.reply(s, numeric.New(numeric.NeedMoreParams, []string{"PART"}, ""))
		return
	}

	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}

	for _, name := range names {
		ch, ok := ctx.Coord.Channel(name)
		if !ok {
			ctx.reply(s, numeric.New(numeric.NoSuchChannel, []string{name}, ""))
			continue
		}

		msg := wire.Message{
			Prefix:  actor.NickUhost(),
			Command: "PART",
			Params:  []wire.ParamGroup{{ch.Name}},
		}

		members := ch.MemberNicks()
		if errReply := ch.Part(actor.Nickname); errReply != nil {
			ctx.reply(s, *errReply)
			continue
		}
		actor.RemoveChannel(channel.CanonicalizeName(name))

		s.Send(msg)
		for _, nick := range members {
			if nick == actor.Nickname {
				continue
			}
			if sess, ok := ctx.Coord.UserSession(nick); ok {
				sess.Send(msg)
			}
		}
		if channel.IsFederated(ch.Name) {
			ctx.federate(actor.Nickname, actor.HomeServer, msg)
		}
		ctx.Coord.DropChannelIfEmpty(ch.Name)
	}
}

// Names handles NAMES for an explicit channel list, or every channel the
// actor can see if none is given.
func (ctx *Context) Names(s *session.Session, m wire.Message) {
	names := groupOrNil(m, 0)
	if len(names) == 0 {
		names = ctx.Coord.ChannelNames()
	}
	for _, name := range names {
		ch, ok := ctx.Coord.Channel(name)
		if !ok || ch.Secret {
			continue
		}
		ctx.sendNames(s, ch)
	}
}

// List handles LIST: a summary line per channel (or per requested
// channel).
func (ctx *Context) List(s *session.Session, m wire.Message) {
	ctx.reply(s, numeric.New(numeric.ListStart, nil, ""))

	names := groupOrNil(m, 0)
	if len(names) == 0 {
		names = ctx.Coord.ChannelNames()
	}
	for _, name := range names {
		ch, ok := ctx.Coord.Channel(name)
		if !ok || ch.Secret {
			continue
		}
		ctx.reply(s, numeric.New(numeric.List, []string{ch.Name, strconv.Itoa(len(ch.Members))}, ch.Topic))
	}

	ctx.reply(s, numeric.New(numeric.ListEnd, nil, ""))
}

// Invite handles INVITE <nick> <channel>.
func (ctx *Context) Invite(s *session.Session, m wire.Message) {
	target := splitGroup(m, 0)
	chanName := splitGroup(m, 1)
	if target == "" || chanName == "" {
		ctx.reply(s, numeric.New(numeric.NeedMoreParams, []string{"INVITE"}, ""))
		return
	}

	ch, ok := ctx.Coord.Channel(chanName)
	if !ok {
		ctx.reply(s, numeric.New(numeric.NoSuchChannel, []string{chanName}, ""))
		return
	}
	if _, ok := ctx.Coord.User(target); !ok {
		ctx.reply(s, numeric.New(numeric.NoSuchNick, []string{target}, ""))
		return
	}

	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}
	if errReply := ch.Invite(target, actor.Nickname); errReply != nil {
		ctx.reply(s, *errReply)
		return
	}

	ctx.reply(s, numeric.New(numeric.Inviting, []string{target, chanName}, ""))

	notice := wire.Message{
		Prefix:  actor.NickUhost(),
		Command: "INVITE",
		Params:  []wire.ParamGroup{{target}, {chanName}},
	}
	if sess, ok := ctx.Coord.UserSession(target); ok {
		sess.Send(notice)
	}
	if channel.IsFederated(chanName) {
		ctx.federate(actor.Nickname, actor.HomeServer, notice)
	}
}

// Topic handles TOPIC <channel> [:<text>]. With no text it returns the
// current topic; with text it sets it, subject to +t.
func (ctx *Context) Topic(s *session.Session, m wire.Message) {
	chanName := splitGroup(m, 0)
	if chanName == "" {
		ctx.reply(s, numeric.New(numeric.NeedMoreParams, []string{"TOPIC"}, ""))
		return
	}
	ch, ok := ctx.Coord.Channel(chanName)
	if !ok {
		ctx.reply(s, numeric.New(numeric.NoSuchChannel, []string{chanName}, ""))
		return
	}

	if len(m.Params) < 2 {
		ctx.reply(s, ch.TopicReply())
		return
	}

	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}
	text := splitGroup(m, 1)
	r, changed := ch.SetTopic(actor.Nickname, text)
	ctx.reply(s, r)
	if !changed {
		return
	}

	msg := wire.Message{
		Prefix:  actor.NickUhost(),
		Command: "TOPIC",
		Params:  []wire.ParamGroup{{chanName}, {text}},
	}
	for _, nick := range ch.MemberNicks() {
		if nick == actor.Nickname {
			continue
		}
		if sess, ok := ctx.Coord.UserSession(nick); ok {
			sess.Send(msg)
		}
	}
	if channel.IsFederated(chanName) {
		ctx.federate(actor.Nickname, actor.HomeServer, msg)
	}
}

// Kick handles KICK <channel> <nick> [:<comment>].
func (ctx *Context) Kick(s *session.Session, m wire.Message) {
	chanName := splitGroup(m, 0)
	target := splitGroup(m, 1)
	if chanName == "" || target == "" {
		ctx.reply(s, numeric.New(numeric.NeedMoreParams, []string{"KICK"}, ""))
		return
	}
	ch, ok := ctx.Coord.Channel(chanName)
	if !ok {
		ctx.reply(s, numeric.New(numeric.NoSuchChannel, []string{chanName}, ""))
		return
	}

	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}
	members := ch.MemberNicks()
	if errReply := ch.Kick(target, actor.Nickname); errReply != nil {
		ctx.reply(s, *errReply)
		return
	}

	if u, ok := ctx.Coord.User(target); ok {
		u.RemoveChannel(channel.CanonicalizeName(chanName))
	}

	msg := wire.Message{
		Prefix:  actor.NickUhost(),
		Command: "KICK",
		Params:  []wire.ParamGroup{{chanName}, {target}},
	}
	for _, nick := range members {
		if sess, ok := ctx.Coord.UserSession(nick); ok {
			sess.Send(msg)
		}
	}
	if channel.IsFederated(chanName) {
		ctx.federate(actor.Nickname, actor.HomeServer, msg)
	}
	ctx.Coord.DropChannelIfEmpty(chanName)
}

// Mode handles MODE <channel> <(+|-)letter> [arg].
func (ctx *Context) Mode(s *session.Session, m wire.Message) {
	target := splitGroup(m, 0)
	if target == "" {
		ctx.reply(s, numeric.New(numeric.NeedMoreParams, []string{"MODE"}, ""))
		return
	}

	ch, ok := ctx.Coord.Channel(target)
	if !ok {
		ctx.reply(s, numeric.New(numeric.NoSuchChannel, []string{target}, ""))
		return
	}

	tokenGroup := groupOrNil(m, 1)
	if len(tokenGroup) == 0 {
		ctx.reply(s, numeric.New(numeric.ModeSet, []string{target, "+"}, ""))
		return
	}
	token := tokenGroup[0]
	if len(token) < 2 {
		ctx.reply(s, numeric.New(numeric.UnknownMode, []string{token}, ""))
		return
	}
	sign := token[0]
	letter := token[1]

	arg := ""
	if len(tokenGroup) > 1 {
		arg = tokenGroup[1]
	} else if len(m.Params) > 2 {
		arg = splitGroup(m, 2)
	}

	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}
	res := ch.SetMode(actor.Nickname, sign, letter, arg)
	if res.Error != nil {
		ctx.reply(s, *res.Error)
		return
	}
	if !res.Changed {
		return
	}

	modeArgs := []string{target, string(sign) + string(letter)}
	if arg != "" {
		modeArgs = append(modeArgs, arg)
	}
	ctx.reply(s, numeric.New(numeric.ModeSet, modeArgs, ""))

	msg := wire.Message{
		Prefix:  actor.NickUhost(),
		Command: "MODE",
		Params:  []wire.ParamGroup{{target}, {string(sign) + string(letter)}},
	}
	if arg != "" {
		msg.Params = append(msg.Params, wire.ParamGroup{arg})
	}

	for _, nick := range ch.MemberNicks() {
		if nick == actor.Nickname {
			continue
		}
		if sess, ok := ctx.Coord.UserSession(nick); ok {
			sess.Send(msg)
		}
	}
	if channel.IsFederated(target) {
		ctx.federate(actor.Nickname, actor.HomeServer, msg)
	}
}

// Away handles AWAY [:<text>] - absent text clears it.
func (ctx *Context) Away(s *session.Session, m wire.Message) {
	text := splitGroup(m, 0)
	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}

	if !actor.SetAway(text) {
		return
	}

	if text == "" {
		ctx.reply(s, numeric.New(numeric.Unaway, nil, ""))
	} else {
		ctx.reply(s, numeric.New(numeric.NowAway, nil, ""))
	}

	msg := wire.Message{
		Prefix:  actor.Nickname,
		Command: "AWAY",
	}
	if text != "" {
		msg.Params = []wire.ParamGroup{{text}}
	}
	ctx.federate(actor.Nickname, actor.HomeServer, msg)
}

// Who handles WHO <channel>: member listing for a channel the actor is on.
func (ctx *Context) Who(s *session.Session, m wire.Message) {
	chanName := splitGroup(m, 0)
	if chanName == "" {
		ctx.reply(s, numeric.New(numeric.NeedMoreParams, []string{"WHO"}, ""))
		return
	}
	ch, ok := ctx.Coord.Channel(chanName)
	if !ok {
		ctx.reply(s, numeric.New(numeric.NoSuchChannel, []string{chanName}, ""))
		return
	}
	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}
	if !ch.IsMember(actor.Nickname) {
		ctx.reply(s, numeric.New(numeric.NotOnChannel, []string{chanName}, ""))
		return
	}

	for _, nick := range ch.MemberNicks() {
		u, ok := ctx.Coord.User(nick)
		if !ok {
			continue
		}
		flag := "H"
		if ch.IsOperator(nick) {
			flag += "@"
		}
		ctx.reply(s, numeric.New(numeric.WhoReply, []string{
			chanName, u.Username, u.Host, u.HomeServer, u.Nickname, flag,
		}, "0 "+u.RealName))
	}
	ctx.reply(s, numeric.New(numeric.EndOfWho, nil, ""))
}

// Whois handles WHOIS <nick>.
func (ctx *Context) Whois(s *session.Session, m wire.Message) {
	nick := splitGroup(m, 0)
	if nick == "" {
		ctx.reply(s, numeric.New(numeric.NoNicknameGiven, nil, ""))
		return
	}
	u, ok := ctx.Coord.User(nick)
	if !ok {
		ctx.reply(s, numeric.New(numeric.NoSuchNick, []string{nick}, ""))
		return
	}

	ctx.reply(s, numeric.New(numeric.WhoisUser, []string{u.Nickname, u.Username, u.Host, "*"}, u.RealName))
	ctx.reply(s, numeric.New(numeric.WhoisServer, []string{u.Nickname, u.HomeServer}, ""))
	if u.IsAway() {
		ctx.reply(s, numeric.New(numeric.Away, []string{u.Nickname}, u.Away))
	}

	var channels []string
	for name := range u.Channels {
		channels = append(channels, name)
	}
	if len(channels) > 0 {
		ctx.reply(s, numeric.New(numeric.WhoisChannels, []string{u.Nickname}, strings.Join(channels, " ")))
	}

	ctx.reply(s, numeric.New(numeric.EndOfWhois, []string{u.Nickname}, ""))
}

// Oper handles OPER <nick> <password>: promotes the actor to server
// operator if the credential matches the admin credential in ServerData.
func (ctx *Context) Oper(s *session.Session, m wire.Message) {
	nick := splitGroup(m, 0)
	pass := splitGroup(m, 1)
	if nick == "" || pass == "" {
		ctx.reply(s, numeric.New(numeric.NeedMoreParams, []string{"OPER"}, ""))
		return
	}

	if nick != ctx.Coord.Data.AdminNick || pass != ctx.Coord.Data.AdminPassword {
		ctx.reply(s, numeric.New(numeric.NoPrivileges, nil, ""))
		return
	}

	ctx.Coord.Operator = s.Identity
	ctx.reply(s, numeric.New(numeric.YoureOper, nil, ""))
}

// Quit handles QUIT [:<reason>]: removes the user from every channel it
// was on, tells each co-member once, unregisters its session, and
// federates the departure.
func (ctx *Context) Quit(s *session.Session, m wire.Message) {
	reason := splitGroup(m, 0)
	actor := ctx.actorUser(s, m)
	if actor == nil {
		return
	}

	msg := wire.Message{
		Prefix:  actor.NickUhost(),
		Command: "QUIT",
	}
	if reason != "" {
		msg.Params = []wire.ParamGroup{{reason}}
	}

	told := map[string]struct{}{}
	for chanName := range actor.Channels {
		ch, ok := ctx.Coord.Channel(chanName)
		if !ok {
			continue
		}
		ch.Part(actor.Nickname)
		for _, nick := range ch.MemberNicks() {
			if _, already := told[nick]; already {
				continue
			}
			told[nick] = struct{}{}
			if sess, ok := ctx.Coord.UserSession(nick); ok {
				sess.Send(msg)
			}
		}
		ctx.Coord.DropChannelIfEmpty(chanName)
	}

	ctx.Coord.UnregisterUserSession(actor.Nickname)
	ctx.Coord.RemoveUser(actor.Nickname)
	ctx.federate(actor.Nickname, actor.HomeServer, msg)
	s.Close()
}

// Squit handles SQUIT <server-name> [:<comment>] (section 4.6). Only the
// recorded server operator may request it. If the named server is this
// one, every local user is told QUIT, peers are notified, and the
// coordinator's Shutdown channel is signalled so main can exit cleanly.
// Otherwise the request is forwarded toward the named peer.
func (ctx *Context) Squit(s *session.Session, m wire.Message) {
	targetServer := splitGroup(m, 0)
	comment := splitGroup(m, 1)
	actorNick := m.Prefix

	if ctx.Coord.Operator == "" || ctx.Coord.Operator != actorNick {
		ctx.reply(s, numeric.New(numeric.NoPrivileges, nil, ""))
		return
	}

	if targetServer != ctx.Coord.ServerName {
		if !ctx.Coord.ServerExists(targetServer) {
			ctx.reply(s, numeric.New(numeric.NoSuchServer, []string{targetServer}, ""))
			return
		}
		_ = ctx.Role.SendToServer(m, targetServer)
		return
	}

	quit := wire.Message{Command: "QUIT"}
	if comment != "" {
		quit.Params = []wire.ParamGroup{{comment}}
	}
	for _, u := range ctx.Coord.Users() {
		if sess, ok := ctx.Coord.UserSession(u.Nickname); ok {
			sess.Send(quit)
		}
	}

	notice := m
	notice.Prefix = ""
	_ = ctx.Role.Notify(notice)

	select {
	case ctx.Coord.Shutdown <- comment:
	default:
	}
}

// PeerRegistration handles a REGISTRATION message arriving from a peer
// server: a remote user the coordinator hasn't heard of yet is inserted
// into the local user table (section 4.6's REGISTRATION fan-out).
func (ctx *Context) PeerRegistration(s *session.Session, m wire.Message) {
	nick := m.Prefix
	if nick == "" || len(m.Params) == 0 || len(m.Params[0]) < 4 {
		return
	}
	if _, exists := ctx.Coord.User(nick); exists {
		return
	}

	// params[0]: host, username, home-server, credential; params[1]: realname.
	fields := m.Params[0]
	realname := splitGroup(m, 1)
	u := chatuser.New(nick, fields[1], realname, fields[0], fields[2], fields[3])
	ctx.Coord.AddUser(u)
}

// PeerUsersInfo handles USERS_INFO: the main server streams its full user
// inventory to a newly linked peer this way (section 4.7).
func (ctx *Context) PeerUsersInfo(s *session.Session, m wire.Message) {
	ctx.PeerRegistration(s, m)
}

// PeerChannelInfo handles CHANNEL_INFO: the main server streams its full
// channel inventory to a newly linked peer this way (section 4.7). Each
// member named becomes a local member of a freshly created (or
// already-present) channel, without re-announcing the joins.
func (ctx *Context) PeerChannelInfo(s *session.Session, m wire.Message) {
	name := splitGroup(m, 0)
	if name == "" {
		return
	}
	members := groupOrNil(m, 1)
	if len(members) == 0 {
		return
	}

	first, ok := ctx.Coord.User(members[0])
	if !ok {
		return
	}
	ch, _ := ctx.Coord.GetOrCreateChannel(name, *first)

	for _, nick := range members {
		u, ok := ctx.Coord.User(nick)
		if !ok || ch.IsMember(nick) {
			continue
		}
		ch.Join(*u, "")
		u.AddChannel(channel.CanonicalizeName(name))
	}
}

// IsOperator handles the cross-server IS_OPERATOR query (section 4.6): a
// secondary asking whether a nick holds operator status on the main. A
// secondary forwards the query upstream via Notify; the main answers
// directly with an IS_OPERATOR_REPLY addressed back to the asking server.
func (ctx *Context) IsOperator(s *session.Session, m wire.Message) {
	nick := splitGroup(m, 0)
	if nick == "" {
		return
	}

	if !ctx.Role.IsMain() {
		_ = ctx.Role.Notify(m)
		return
	}

	answer := "no"
	if ctx.Coord.Operator != "" && chatuser.CanonicalizeNick(ctx.Coord.Operator) == chatuser.CanonicalizeNick(nick) {
		answer = "yes"
	}
	s.Send(wire.Message{
		Command: "IS_OPERATOR_REPLY",
		Params:  []wire.ParamGroup{{nick, answer}},
	})
}

// ServerExists handles the federation-internal SERVER_EXISTS query (section
// 4.8, spec's command vocabulary in section 6): routes m toward the server
// named in its first parameter via this server's Role - a Secondary
// forwards upstream toward the main, which forwards it onward directly if
// it holds a link to that server.
func (ctx *Context) ServerExists(s *session.Session, m wire.Message) {
	_ = ctx.Role.CheckServerExistance(m)
}
