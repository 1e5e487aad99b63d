// Package connhandler owns a freshly accepted socket through the
// login/registration handshake (section 4.4), before any Client Handler
// dispatch loop exists for it. It reads exactly four lines to resolve an
// identity - an action line, then PASS/NICK/USER (or, for SERVER, just the
// peer name) - retrying from the action line on a recoverable failure.
package connhandler

import (
	"bufio"
	"io"
	"log"

	"github.com/horgh/chatd/internal/chaterr"
	"github.com/horgh/chatd/internal/chatuser"
	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/numeric"
	"github.com/horgh/chatd/internal/serverrole"
	"github.com/horgh/chatd/internal/wire"
)

// Outcome is what a successful handshake resolved to.
type Outcome struct {
	IsServer bool

	// For a user outcome.
	User *chatuser.User

	// For a server outcome.
	PeerServerName string
}

// Handler drives one connection's login/registration handshake.
type Handler struct {
	Reader     *bufio.Reader
	Writer     io.Writer
	RemoteHost string
	Coord      *coordinator.Coordinator
	Role       serverrole.Role
}

// New builds a Handler reading from conn.
func New(conn io.ReadWriter, remoteHost string, coord *coordinator.Coordinator, role serverrole.Role) *Handler {
	return &Handler{
		Reader:     bufio.NewReader(conn),
		Writer:     conn,
		RemoteHost: remoteHost,
		Coord:      coord,
		Role:       role,
	}
}

func (h *Handler) readMessage() (wire.Message, error) {
	line, err := h.Reader.ReadString('\n')
	if err != nil {
		return wire.Message{}, chaterr.New(chaterr.Critical, "read", err)
	}
	msg, err := wire.Parse(line)
	if err != nil {
		return wire.Message{}, chaterr.New(chaterr.NonCritical, "parse", err)
	}
	return msg, nil
}

func (h *Handler) sendReply(r numeric.Reply) error {
	_, err := io.WriteString(h.Writer, r.ToWireMessage().Encode())
	if err != nil {
		return chaterr.New(chaterr.Critical, "write", err)
	}
	return nil
}

// Run drives the handshake loop until it resolves an Outcome or hits an
// unrecoverable error.
func (h *Handler) Run() (*Outcome, error) {
	log.Printf("connection from %s: handshake starting", h.RemoteHost)
	for {
		outcome, retry, err := h.attempt()
		if err != nil {
			log.Printf("connection from %s: handshake failed: %s", h.RemoteHost, err)
			return nil, err
		}
		if outcome != nil {
			log.Printf("connection from %s: handshake done", h.RemoteHost)
			return outcome, nil
		}
		if !retry {
			log.Printf("connection from %s: handshake aborted", h.RemoteHost)
			return nil, chaterr.Newf(chaterr.Critical, "handshake", "aborted")
		}
	}
}

// attempt reads one action line and its following fields. retry is true
// when the failure is recoverable (the caller should read a new action
// line); outcome is non-nil only on success.
func (h *Handler) attempt() (*Outcome, bool, error) {
	actionMsg, err := h.readMessage()
	if err != nil {
		if opErr, ok := err.(*chaterr.OpError); ok && opErr.Severity == chaterr.NonCritical {
			return nil, true, nil
		}
		return nil, false, err
	}

	switch actionMsg.Command {
	case "LOGIN":
		return h.login()
	case "REGISTRATION":
		return h.register()
	case "SERVER":
		return h.server(actionMsg)
	default:
		_ = h.sendReply(numeric.New(numeric.NeedMoreParams, []string{actionMsg.Command}, "expected LOGIN, REGISTRATION, or SERVER"))
		return nil, true, nil
	}
}

// readPassNickUser reads the PASS, NICK, and USER lines common to both
// LOGIN and REGISTRATION. Missing required USER fields is unrecoverable
// (section 4.4); anything else is retryable.
func (h *Handler) readPassNickUser() (credential, nick, username, realname string, retry bool, err error) {
	passMsg, err := h.readMessage()
	if err != nil {
		return "", "", "", "", true, nil
	}
	if passMsg.Command != "PASS" || passMsg.ParamCount() == 0 {
		_ = h.sendReply(numeric.New(numeric.NeedMoreParams, []string{"PASS"}, ""))
		return "", "", "", "", true, nil
	}
	credential = passMsg.Param(0)

	nickMsg, err := h.readMessage()
	if err != nil {
		return "", "", "", "", true, nil
	}
	if nickMsg.Command != "NICK" || nickMsg.ParamCount() == 0 {
		_ = h.sendReply(numeric.New(numeric.NoNicknameGiven, nil, ""))
		return "", "", "", "", true, nil
	}
	nick = nickMsg.Param(0)

	userMsg, err := h.readMessage()
	if err != nil {
		return "", "", "", "", true, nil
	}
	// USER <username,host,home-server> :<realname> - a 3-element cluster
	// naming the user, then a trailing realname group.
	if userMsg.Command != "USER" || len(userMsg.Params) < 2 || len(userMsg.Params[0]) < 3 {
		_ = h.sendReply(numeric.New(numeric.NeedMoreParams, []string{"USER"}, ""))
		return "", "", "", "", false, chaterr.Newf(chaterr.Critical, "handshake", "missing required USER fields")
	}
	username = userMsg.Params[0][0]
	realname = userMsg.Param(len(userMsg.Params) - 1)

	return credential, nick, username, realname, false, nil
}

func (h *Handler) register() (*Outcome, bool, error) {
	credential, nick, username, realname, retry, err := h.readPassNickUser()
	if retry || err != nil {
		return nil, retry, err
	}

	if !chatuser.IsValidNick(nick) {
		_ = h.sendReply(numeric.New(numeric.ErroneusNickname, []string{nick}, ""))
		return nil, true, nil
	}

	if _, exists := h.Coord.User(nick); exists {
		_ = h.sendReply(numeric.New(numeric.NickCollision, []string{nick}, ""))
		return nil, true, nil
	}

	u := chatuser.New(nick, username, realname, h.RemoteHost, h.Coord.ServerName, credential)
	if !h.Coord.AddUser(u) {
		_ = h.sendReply(numeric.New(numeric.NickCollision, []string{nick}, ""))
		return nil, true, nil
	}

	if h.Coord.Data.IsMain() {
		_ = h.Coord.Data.AppendUser(u)
		_ = h.Role.Notify(registrationMessage(u))
	}

	_ = h.sendReply(numeric.New(numeric.CorrectRegistration, []string{nick}, ""))
	return &Outcome{User: u}, false, nil
}

// registrationMessage builds the REGISTRATION message fanned out to peers
// so they learn of a newly registered local user (section 4.6), in the
// same host/username/home-server/credential + realname shape
// commands.PeerRegistration expects.
func registrationMessage(u *chatuser.User) wire.Message {
	return wire.Message{
		Prefix:  u.Nickname,
		Command: "REGISTRATION",
		Params: []wire.ParamGroup{
			{u.Host, u.Username, u.HomeServer, u.Credential},
			{u.RealName},
		},
	}
}

func (h *Handler) login() (*Outcome, bool, error) {
	credential, nick, username, realname, retry, err := h.readPassNickUser()
	if retry || err != nil {
		return nil, retry, err
	}

	u, exists := h.Coord.User(nick)
	if !exists || u.Credential != credential || u.HomeServer != h.Coord.ServerName {
		_ = h.sendReply(numeric.New(numeric.InvalidLogin, nil, ""))
		return nil, true, nil
	}

	if _, online := h.Coord.UserSession(nick); online {
		_ = h.sendReply(numeric.New(numeric.NickCollision, []string{nick}, ""))
		return nil, true, nil
	}

	u.Username = username
	u.RealName = realname
	u.Host = h.RemoteHost

	_ = h.sendReply(numeric.New(numeric.CorrectLogin, []string{nick}, ""))
	return &Outcome{User: u}, false, nil
}

func (h *Handler) server(actionMsg wire.Message) (*Outcome, bool, error) {
	if actionMsg.ParamCount() == 0 {
		_ = h.sendReply(numeric.New(numeric.NeedMoreParams, []string{"SERVER"}, ""))
		return nil, true, nil
	}
	peerName := actionMsg.Param(0)

	if h.Coord.ServerExists(peerName) {
		_ = h.sendReply(numeric.New(numeric.AlreadyRegistred, []string{peerName}, ""))
		return nil, false, chaterr.Newf(chaterr.NonCritical, "server", "peer %s already registered", peerName)
	}

	return &Outcome{IsServer: true, PeerServerName: peerName}, false, nil
}
