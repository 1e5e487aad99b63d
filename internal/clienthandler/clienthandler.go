// Package clienthandler runs the per-session read/dispatch loop (section
// 4.5) once a connection has resolved an identity via connhandler. It
// alternates between reading the socket (with a short read deadline so
// the goroutine can interleave) and draining the session's inbound queue,
// without letting either source block the other.
package clienthandler

import (
	"bufio"
	"io"
	"log"
	"net"
	"time"

	"github.com/horgh/chatd/internal/commands"
	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/numeric"
	"github.com/horgh/chatd/internal/serverrole"
	"github.com/horgh/chatd/internal/session"
	"github.com/horgh/chatd/internal/wire"
)

// readTimeout bounds how long a socket read blocks before the loop checks
// the outbound queue again.
const readTimeout = 100 * time.Millisecond

// Handler drives one session's socket<->coordinator relay.
type Handler struct {
	Conn    net.Conn
	Session *session.Session
	Coord   *coordinator.Coordinator
	Role    serverrole.Role

	reader *bufio.Reader
}

// New builds a Handler for an already-registered session.
func New(conn net.Conn, s *session.Session, coord *coordinator.Coordinator, role serverrole.Role) *Handler {
	return &Handler{
		Conn:    conn,
		Session: s,
		Coord:   coord,
		Role:    role,
		reader:  bufio.NewReader(conn),
	}
}

// Run drains the socket and the outbound queue until a critical error or
// clean disconnect. When the outbound queue is closed (as QUIT does), Run
// first writes every message still queued, so a QUIT's final replies reach
// the client; on a parse error or a socket read error it returns without
// draining the queue.
func (h *Handler) Run() {
	log.Printf("session %s (%s): handler starting", h.Session.Identity, h.Session.RemoteAddr)
	defer log.Printf("session %s (%s): handler shutting down", h.Session.Identity, h.Session.RemoteAddr)
	defer func() { _ = h.Conn.Close() }()

	userCtx := &commands.Context{Coord: h.Coord, Role: h.Role}

	for {
		_ = h.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		line, err := h.reader.ReadString('\n')
		if err == nil {
			if !h.handleLine(userCtx, line) {
				h.cleanupDisconnect()
				return
			}
		} else if !isTimeout(err) {
			h.cleanupDisconnect()
			return
		}

		if !h.drainOutbound() {
			return
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// handleLine parses and dispatches one line. Per section 7, a parse failure
// is CRITICAL: re-synchronizing on a malformed stream is undefined, so
// handleLine reports false to tell Run to tear this session down instead of
// silently dropping the bad line and continuing.
func (h *Handler) handleLine(ctx *commands.Context, line string) bool {
	msg, err := wire.Parse(line)
	if err != nil {
		log.Printf("session %s (%s): parse error, closing: %s", h.Session.Identity, h.Session.RemoteAddr, err)
		return false
	}
	if msg.Prefix == "" {
		msg = msg.WithPrefix(h.Session.Identity)
	}

	if h.Session.Kind == session.KindPeer {
		h.dispatchPeer(ctx, msg)
		return true
	}
	h.dispatchUser(ctx, msg)
	return true
}

func (h *Handler) dispatchUser(ctx *commands.Context, msg wire.Message) {
	switch msg.Command {
	case "NICK":
		ctx.Nick(h.Session, msg)
	case "PRIVMSG":
		ctx.Privmsg(h.Session, msg, false)
	case "NOTICE":
		ctx.Privmsg(h.Session, msg, true)
	case "JOIN":
		ctx.Join(h.Session, msg)
	case "NAMES":
		ctx.Names(h.Session, msg)
	case "LIST":
		ctx.List(h.Session, msg)
	case "PART":
		ctx.Part(h.Session, msg)
	case "INVITE":
		ctx.Invite(h.Session, msg)
	case "MODE":
		ctx.Mode(h.Session, msg)
	case "OPER":
		ctx.Oper(h.Session, msg)
	case "WHO":
		ctx.Who(h.Session, msg)
	case "WHOIS":
		ctx.Whois(h.Session, msg)
	case "TOPIC":
		ctx.Topic(h.Session, msg)
	case "KICK":
		ctx.Kick(h.Session, msg)
	case "AWAY":
		ctx.Away(h.Session, msg)
	case "QUIT":
		ctx.Quit(h.Session, msg)
	case "SQUIT":
		ctx.Squit(h.Session, msg)
	default:
		h.Session.Send(numeric.New(numeric.NoSuchNick, []string{msg.Command}, "unknown command").ToWireMessage())
	}
}

// dispatchPeer handles the federation-internal command table (section
// 4.5's peer-session dispatch list). Most of these mutate local state the
// same way a user-originated command would, but arrive already prefixed
// with the originating actor's identity rather than this session's own.
func (h *Handler) dispatchPeer(ctx *commands.Context, msg wire.Message) {
	switch msg.Command {
	case "JOIN":
		ctx.Join(h.Session, msg)
	case "REGISTRATION":
		ctx.PeerRegistration(h.Session, msg)
	case "SQUIT":
		ctx.Squit(h.Session, msg)
	case "PRIVMSG":
		ctx.Privmsg(h.Session, msg, false)
	case "USERS_INFO":
		ctx.PeerUsersInfo(h.Session, msg)
	case "CHANNEL_INFO":
		ctx.PeerChannelInfo(h.Session, msg)
	case "KICK":
		ctx.Kick(h.Session, msg)
	case "MODE":
		ctx.Mode(h.Session, msg)
	case "PART":
		ctx.Part(h.Session, msg)
	case "TOPIC":
		ctx.Topic(h.Session, msg)
	case "INVITE":
		ctx.Invite(h.Session, msg)
	case "AWAY":
		ctx.Away(h.Session, msg)
	case "IS_OPERATOR":
		ctx.IsOperator(h.Session, msg)
	case "SERVER_EXISTS":
		ctx.ServerExists(h.Session, msg)
	default:
		// Unknown peer command: silently dropped (section 4.5).
	}
}

// drainOutbound writes every message currently queued for this session,
// without blocking if the queue is empty. Returns false if the queue was
// closed (the coordinator tore this session down), signalling Run to
// return after a final flush.
func (h *Handler) drainOutbound() bool {
	for {
		select {
		case msg, ok := <-h.Session.Out:
			if !ok {
				return false
			}
			if _, err := io.WriteString(h.Conn, msg.Encode()); err != nil {
				return false
			}
		default:
			return true
		}
	}
}

func (h *Handler) cleanupDisconnect() {
	log.Printf("session %s (%s): socket closed, cleaning up", h.Session.Identity, h.Session.RemoteAddr)
	switch h.Session.Kind {
	case session.KindUser:
		quit := wire.Message{Command: "QUIT"}
		ctx := &commands.Context{Coord: h.Coord, Role: h.Role}
		ctx.Quit(h.Session, quit.WithPrefix(h.Session.Identity))
	case session.KindPeer:
		h.Coord.UnregisterPeerSession(h.Session.Identity)
	}
}
