package commands_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/horgh/chatd/internal/chatuser"
	"github.com/horgh/chatd/internal/commands"
	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/serverdata"
	"github.com/horgh/chatd/internal/serverrole"
	"github.com/horgh/chatd/internal/session"
	"github.com/horgh/chatd/internal/wire"
)

func newTestCoordinator(name string) *coordinator.Coordinator {
	data := &serverdata.ServerData{
		ServerName:    name,
		ServerAddress: "127.0.0.1:0",
		AdminNick:     "admin",
		AdminPassword: "hunter2",
		Users:         map[string]*chatuser.User{},
		Channels:      map[string]struct{}{},
	}
	return coordinator.New(name, data)
}

func newPeer(coord *coordinator.Coordinator, name string) *session.Session {
	s := session.New("127.0.0.1:0")
	coord.RegisterPeerSession(name, s)
	return s
}

// recvOne returns the next message queued for s, if any, without blocking -
// sessions are only ever written to synchronously by the handlers under
// test here, so nothing is in flight when this runs.
func recvOne(s *session.Session) (wire.Message, bool) {
	select {
	case m := <-s.Out:
		return m, true
	default:
		return wire.Message{}, false
	}
}

// TestPeerDispatchedJoinResolvesActorFromPrefix exercises the defect where a
// peer session's Identity is the linked server's name, not a nickname: JOIN
// arriving from a peer must resolve the acting user from the message prefix
// instead of treating the peer session's own identity as a nickname.
func TestPeerDispatchedJoinResolvesActorFromPrefix(t *testing.T) {
	coord := newTestCoordinator("main.example.org")
	role := &serverrole.Main{Coord: coord}
	ctx := &commands.Context{Coord: coord, Role: role}

	homeServer := newPeer(coord, "other.example.org")
	otherPeer := newPeer(coord, "third.example.org")

	alice := chatuser.New("alice", "alice", "Alice Example", "host.example.org", "other.example.org", "pw")
	coord.AddUser(alice)

	// The peer session's Identity is "other.example.org", never "alice" -
	// actorUser must read the acting nick from m.Prefix instead, or this
	// panics on a nil *chatuser.User.
	require.NotPanics(t, func() {
		ctx.Join(homeServer, wire.Message{
			Prefix:  "alice",
			Command: "JOIN",
			Params:  []wire.ParamGroup{{"#chan"}},
		})
	})

	ch, ok := coord.Channel("#chan")
	require.True(t, ok, "channel should have been created")
	require.True(t, ch.IsMember("alice"), "alice should be a member after the peer-forwarded JOIN")

	// The event must fan back out to every OTHER peer, but never bounce back
	// to the server it came from.
	msg, got := recvOne(otherPeer)
	require.True(t, got, "the other peer should receive the federated JOIN")
	require.Equal(t, "JOIN", msg.Command)
	require.Equal(t, "alice", msg.Prefix)

	_, got = recvOne(homeServer)
	require.False(t, got, "the originating peer must not receive its own event back")
}

// TestLocalEventFederatesToEveryPeer confirms a locally-originated event (the
// actor's home server is this server) still reaches every linked peer -
// NotifyAllBut's skip argument only ever matches a peer name for
// peer-forwarded events, never for local ones.
func TestLocalEventFederatesToEveryPeer(t *testing.T) {
	coord := newTestCoordinator("main.example.org")
	role := &serverrole.Main{Coord: coord}
	ctx := &commands.Context{Coord: coord, Role: role}

	peerA := newPeer(coord, "a.example.org")
	peerB := newPeer(coord, "b.example.org")

	op := chatuser.New("op", "op", "Operator", "host.example.org", "main.example.org", "pw")
	coord.AddUser(op)
	s := session.New("127.0.0.1:0")
	coord.RegisterUserSession("op", s)

	ctx.Join(s, wire.Message{Command: "JOIN", Params: []wire.ParamGroup{{"#chan"}}})

	for _, p := range []*session.Session{peerA, peerB} {
		msg, got := recvOne(p)
		require.True(t, got, "every linked peer should see a locally-originated JOIN")
		require.Equal(t, "JOIN", msg.Command)
	}
}

// TestTopicIdempotentFederation covers the §4.6 idempotency gate: re-setting
// a channel's topic to the exact text it already has must not fan out to
// peers a second time.
func TestTopicIdempotentFederation(t *testing.T) {
	coord := newTestCoordinator("main.example.org")
	role := &serverrole.Main{Coord: coord}
	ctx := &commands.Context{Coord: coord, Role: role}

	peer := newPeer(coord, "peer.example.org")

	op := chatuser.New("op", "op", "Operator", "host.example.org", "main.example.org", "pw")
	coord.AddUser(op)
	s := session.New("127.0.0.1:0")
	coord.RegisterUserSession("op", s)

	ctx.Join(s, wire.Message{Command: "JOIN", Params: []wire.ParamGroup{{"#chan"}}})
	_, _ = recvOne(peer) // drain the JOIN fan-out

	ctx.Topic(s, wire.Message{Command: "TOPIC", Params: []wire.ParamGroup{{"#chan"}, {"hello"}}})
	_, got := recvOne(peer)
	require.True(t, got, "first TOPIC set should federate")

	ctx.Topic(s, wire.Message{Command: "TOPIC", Params: []wire.ParamGroup{{"#chan"}, {"hello"}}})
	_, got = recvOne(peer)
	require.False(t, got, "re-setting the same topic text must not federate again")
}

// TestModeSelfDeopDoesNotFederate confirms the self-deop no-op doesn't
// produce a spurious MODE fan-out (it made no local change).
func TestModeSelfDeopDoesNotFederate(t *testing.T) {
	coord := newTestCoordinator("main.example.org")
	role := &serverrole.Main{Coord: coord}
	ctx := &commands.Context{Coord: coord, Role: role}

	peer := newPeer(coord, "peer.example.org")

	op := chatuser.New("op", "op", "Operator", "host.example.org", "main.example.org", "pw")
	coord.AddUser(op)
	s := session.New("127.0.0.1:0")
	coord.RegisterUserSession("op", s)

	ctx.Join(s, wire.Message{Command: "JOIN", Params: []wire.ParamGroup{{"#chan"}}})
	_, _ = recvOne(peer) // drain the JOIN fan-out

	ctx.Mode(s, wire.Message{Command: "MODE", Params: []wire.ParamGroup{{"#chan"}, {"-o"}, {"op"}}})

	_, got := recvOne(peer)
	require.False(t, got, "self-deop must not federate a MODE change")

	ch, ok := coord.Channel("#chan")
	require.True(t, ok)
	require.True(t, ch.IsOperator("op"), "op should remain operator after self-deop")
}
