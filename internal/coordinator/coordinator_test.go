package coordinator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/horgh/chatd/internal/chatuser"
	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/serverdata"
	"github.com/horgh/chatd/internal/session"
)

func newCoord(name string) *coordinator.Coordinator {
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

func TestAddUserRejectsDuplicateNick(t *testing.T) {
	coord := newCoord("main.example.org")

	u := chatuser.New("alice", "alice", "Alice", "host", "main.example.org", "pw")
	require.True(t, coord.AddUser(u))

	dup := chatuser.New("Alice", "alice2", "Alice Two", "host2", "main.example.org", "pw2")
	require.False(t, coord.AddUser(dup), "nicknames are matched case-insensitively")
}

func TestRenameUserMovesSessionKeyToo(t *testing.T) {
	coord := newCoord("main.example.org")

	u := chatuser.New("alice", "alice", "Alice", "host", "main.example.org", "pw")
	coord.AddUser(u)
	s := session.New("127.0.0.1:0")
	coord.RegisterUserSession("alice", s)

	require.True(t, coord.RenameUser("alice", "alicia"))

	_, ok := coord.User("alice")
	require.False(t, ok, "old nickname should no longer resolve")
	renamed, ok := coord.User("alicia")
	require.True(t, ok)
	require.Equal(t, "alicia", renamed.Nickname)

	_, ok = coord.UserSession("alice")
	require.False(t, ok, "old session key should be gone")
	gotSession, ok := coord.UserSession("alicia")
	require.True(t, ok, "session should have moved to the new key")
	require.Equal(t, "alicia", gotSession.Identity)
}

func TestRenameUserFailsOnCollision(t *testing.T) {
	coord := newCoord("main.example.org")
	coord.AddUser(chatuser.New("alice", "alice", "Alice", "host", "main.example.org", "pw"))
	coord.AddUser(chatuser.New("bob", "bob", "Bob", "host", "main.example.org", "pw"))

	require.False(t, coord.RenameUser("alice", "bob"))
	u, _ := coord.User("alice")
	require.Equal(t, "alice", u.Nickname, "failed rename must not mutate the existing user")
}

func TestDropChannelIfEmptyOnlyDropsEmpty(t *testing.T) {
	coord := newCoord("main.example.org")
	alice := chatuser.New("alice", "alice", "Alice", "host", "main.example.org", "pw")
	coord.AddUser(alice)

	ch, created := coord.GetOrCreateChannel("#chan", *alice)
	require.True(t, created)

	coord.DropChannelIfEmpty("#chan")
	_, ok := coord.Channel("#chan")
	require.True(t, ok, "non-empty channel must survive")

	require.Nil(t, ch.Part("alice"))
	coord.DropChannelIfEmpty("#chan")
	_, ok = coord.Channel("#chan")
	require.False(t, ok, "channel left with no members must be dropped")
}

func TestServerExistsKnowsSelfAndLinkedPeers(t *testing.T) {
	coord := newCoord("main.example.org")
	require.True(t, coord.ServerExists("main.example.org"), "a server always knows itself")
	require.False(t, coord.ServerExists("ghost.example.org"))

	coord.RegisterPeerSession("peer.example.org", session.New("127.0.0.1:0"))
	require.True(t, coord.ServerExists("peer.example.org"))
}

func TestUnregisterPeerSessionDropsIt(t *testing.T) {
	coord := newCoord("main.example.org")
	coord.RegisterPeerSession("peer.example.org", session.New("127.0.0.1:0"))
	require.True(t, coord.ServerExists("peer.example.org"))

	coord.UnregisterPeerSession("peer.example.org")
	require.False(t, coord.ServerExists("peer.example.org"))
}
