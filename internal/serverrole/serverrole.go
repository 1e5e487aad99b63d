// Package serverrole implements the Main/Secondary split of the star
// topology (section 4.8): a Main server fans a message out to every
// directly linked peer, while a Secondary only ever has one upstream link
// and forwards everything there. Both roles share the same interface so
// the coordinator and client handler don't need to know which one they're
// running.
package serverrole

import (
	"github.com/horgh/chatd/internal/chaterr"
	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/session"
	"github.com/horgh/chatd/internal/wire"
)

// Role is what a server's federation fan-out does with an outbound
// message, independent of whether this process is the Main server or one
// of its Secondaries.
type Role interface {
	// Notify sends msg to every linked peer.
	Notify(msg wire.Message) error
	// NotifyAllBut sends msg to every linked peer except skipServer (used to
	// avoid bouncing a message back to the peer it arrived from).
	NotifyAllBut(msg wire.Message, skipServer string) error
	// SendToServer sends msg to exactly one named peer. Returns a
	// NonCritical chaterr.OpError if that peer isn't linked.
	SendToServer(msg wire.Message, serverName string) error
	// CheckServerExistance is the IS_OPERATOR/SERVER_EXISTS style probe:
	// forward msg toward the server named in its first parameter if we know
	// a path to it.
	CheckServerExistance(msg wire.Message) error
	// IsMain reports whether this process is the top of the star topology.
	IsMain() bool
	// AcceptPeer finishes onboarding a just-linked peer server session: a
	// Main rebroadcasts the SERVER announcement and streams its user and
	// channel inventory to the new peer (section 4.7); a Secondary has
	// nothing further to do, since only the Main accepts inbound links.
	AcceptPeer(peerName string, peerSession *session.Session)
}

// Main is the Role for the top of the star topology: every other server
// links directly to it, so fan-out reaches every linked peer directly.
type Main struct {
	Coord *coordinator.Coordinator
}

func sendTo(c *coordinator.Coordinator, serverName string, msg wire.Message) error {
	peer, ok := c.PeerSession(serverName)
	if !ok {
		return chaterr.Newf(chaterr.NonCritical, "send_to_server", "server %s doesn't exist", serverName)
	}
	if !peer.Send(msg) {
		return chaterr.Newf(chaterr.Critical, "send_to_server", "couldn't send to %s", serverName)
	}
	return nil
}

// Notify implements Role.
func (m *Main) Notify(msg wire.Message) error {
	for name, peer := range m.Coord.PeerSessions() {
		if !peer.Send(msg) {
			return chaterr.Newf(chaterr.Critical, "notify", "couldn't send to %s", name)
		}
	}
	return nil
}

// NotifyAllBut implements Role.
func (m *Main) NotifyAllBut(msg wire.Message, skipServer string) error {
	for name, peer := range m.Coord.PeerSessions() {
		if name == skipServer {
			continue
		}
		if !peer.Send(msg) {
			return chaterr.Newf(chaterr.Critical, "notify_all_but", "couldn't send to %s", name)
		}
	}
	return nil
}

// SendToServer implements Role.
func (m *Main) SendToServer(msg wire.Message, serverName string) error {
	return sendTo(m.Coord, serverName, msg)
}

// CheckServerExistance implements Role.
func (m *Main) CheckServerExistance(msg wire.Message) error {
	if len(msg.Params) == 0 || len(msg.Params[0]) == 0 {
		return chaterr.Newf(chaterr.NonCritical, "check_server_existance", "missing server name parameter")
	}
	return sendTo(m.Coord, msg.Params[0][0], msg)
}

// IsMain implements Role.
func (*Main) IsMain() bool { return true }

// AcceptPeer implements Role: rebroadcast the link announcement to every
// other peer, then stream this server's full user and channel inventory
// to the new one.
func (m *Main) AcceptPeer(peerName string, peerSession *session.Session) {
	announce := wire.Message{
		Prefix:  m.Coord.ServerName,
		Command: "SERVER",
		Params:  []wire.ParamGroup{{peerName}},
	}
	_ = m.NotifyAllBut(announce, peerName)

	for _, u := range m.Coord.Users() {
		peerSession.Send(wire.Message{
			Prefix:  u.Nickname,
			Command: "USERS_INFO",
			Params: []wire.ParamGroup{
				{u.Host, u.Username, u.HomeServer, u.Credential},
				{u.RealName},
			},
		})
	}

	for _, name := range m.Coord.ChannelNames() {
		ch, ok := m.Coord.Channel(name)
		if !ok {
			continue
		}
		peerSession.Send(wire.Message{
			Command: "CHANNEL_INFO",
			Params:  []wire.ParamGroup{{ch.Name}, wire.ParamGroup(ch.MemberNicks())},
		})
	}
}

// Secondary is the Role for every non-Main server: it has exactly one
// upstream link (its main server) and forwards everything there, since it
// has no direct knowledge of any other server in the topology.
type Secondary struct {
	Coord       *coordinator.Coordinator
	UpstreamName string
}

// Notify implements Role: a Secondary's only peer is its upstream.
func (s *Secondary) Notify(msg wire.Message) error {
	return sendTo(s.Coord, s.UpstreamName, msg)
}

// NotifyAllBut implements Role. Since a Secondary has only one link, this
// is Notify unless that link is the one being skipped.
func (s *Secondary) NotifyAllBut(msg wire.Message, skipServer string) error {
	if skipServer == s.UpstreamName {
		return nil
	}
	return s.Notify(msg)
}

// SendToServer implements Role: any destination not this process's own
// name is reachable only via the single upstream link.
func (s *Secondary) SendToServer(msg wire.Message, serverName string) error {
	return s.Notify(msg)
}

// CheckServerExistance implements Role: forward upstream and let the Main
// server resolve whether the named server actually exists.
func (s *Secondary) CheckServerExistance(msg wire.Message) error {
	return s.Notify(msg)
}

// IsMain implements Role.
func (*Secondary) IsMain() bool { return false }

// AcceptPeer implements Role: a Secondary never accepts inbound SERVER
// links (only the Main does, per the star topology), so there is nothing
// to onboard.
func (*Secondary) AcceptPeer(string, *session.Session) {}
