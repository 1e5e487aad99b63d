package listener_test

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/horgh/chatd/internal/chatuser"
	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/listener"
	"github.com/horgh/chatd/internal/serverdata"
	"github.com/horgh/chatd/internal/serverrole"
)

// testClient is a minimal line-oriented client over a real TCP connection,
// driving the scenarios from section 8 against a real listener.Listener -
// no subprocess, no built chatd binary, just this package's own types wired
// together the way cmd/chatd wires them.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *testClient) recvLine() string {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err, "expected a line before the deadline")
	return line
}

// drainUntilCode reads and discards lines until one starting with the given
// numeric code (inclusive), used to skip a multi-reply bracket (e.g. NAMES'
// 353 entries up through its 366 ENDOFNAMES) the test doesn't otherwise
// assert on directly.
func (c *testClient) drainUntilCode(code string) {
	for {
		line := c.recvLine()
		if strings.HasPrefix(line, code+" ") {
			return
		}
	}
}

func (c *testClient) close() {
	_ = c.conn.Close()
}

// startServer builds a Main-role Coordinator and Listener the same way
// cmd/chatd's run() does, bound to an ephemeral port, and returns its
// address once it's accepting connections.
func startServer(t *testing.T, name string) (addr string, coord *coordinator.Coordinator) {
	data := &serverdata.ServerData{
		ServerName:    name,
		ServerAddress: "127.0.0.1:0",
		AdminNick:     "admin",
		AdminPassword: "adminpass",
		Users:         map[string]*chatuser.User{},
		Channels:      map[string]struct{}{},
	}
	coord = coordinator.New(name, data)
	role := &serverrole.Main{Coord: coord}

	// Bind once to learn an ephemeral port, then release it so
	// listener.Listener.Run can bind the same address itself.
	probe, err := net.Listen("tcp", data.ServerAddress)
	require.NoError(t, err)
	addr = probe.Addr().String()
	require.NoError(t, probe.Close())

	l := &listener.Listener{Addr: addr, Coord: coord, Role: role}
	go func() {
		_ = l.Run()
	}()
	// Give the accept loop a moment to bind before clients dial in.
	for i := 0; i < 50; i++ {
		if conn, err := net.Dial("tcp", addr); err == nil {
			_ = conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return addr, coord
}

// registerUser completes the REGISTRATION handshake for nick and returns the
// connected client, positioned right after its RPL_CORRECTREGISTRATION.
func registerUser(t *testing.T, addr, nick, password string) *testClient {
	c := dial(t, addr)
	c.send("REGISTRATION")
	c.send("PASS " + password)
	c.send("NICK " + nick)
	c.send("USER " + nick + ",127.0.0.1,main_server :" + nick + " Realname")
	require.Equal(t, "3 "+nick+" :Registration successful\r\n", c.recvLine())
	return c
}

// join sends JOIN <channel>, returns the topic/no-topic reply line, and
// drains the NAMES/ENDOFNAMES bracket that follows it on a successful join
// so the client's queue is left positioned at the next genuinely new event.
func join(c *testClient, channel string) string {
	c.send("JOIN " + channel)
	line := c.recvLine()
	if strings.HasPrefix(line, "331 ") || strings.HasPrefix(line, "332 ") {
		c.drainUntilCode("366")
	}
	return line
}

// TestLoginHappyPath mirrors section 8 scenario 1.
func TestLoginHappyPath(t *testing.T) {
	addr, _ := startServer(t, "main_server")

	reg := registerUser(t, addr, "ari", "password123")
	defer reg.close()

	c := dial(t, addr)
	defer c.close()
	c.send("LOGIN")
	c.send("PASS password123")
	c.send("NICK ari")
	c.send("USER ari,127.0.0.1,main_server :Ariana Salese")

	require.Equal(t, "2 ari :Login successful\r\n", c.recvLine())
}

// TestChannelEcho mirrors section 8 scenario 2: two members join a channel
// and see each other's PRIVMSG.
func TestChannelEcho(t *testing.T) {
	addr, _ := startServer(t, "main_server")

	ari := registerUser(t, addr, "ari", "pw1")
	defer ari.close()
	juani := registerUser(t, addr, "juanireil", "pw2")
	defer juani.close()

	require.Equal(t, "331 #canal :No topic is set\r\n", join(ari, "#canal"))
	require.Equal(t, "331 #canal :No topic is set\r\n", join(juani, "#canal"))
	require.Equal(t, ":juanireil!~juanireil@127.0.0.1 JOIN #canal\r\n", ari.recvLine())

	juani.send("PRIVMSG #canal :Hola grupo")
	require.Equal(t, ":juanireil!~juanireil@127.0.0.1 PRIVMSG #canal :Hola grupo\r\n", ari.recvLine())
}

// TestInviteOnlyChannel mirrors section 8 scenario 3.
func TestInviteOnlyChannel(t *testing.T) {
	addr, _ := startServer(t, "main_server")

	ari := registerUser(t, addr, "ari", "pw1")
	defer ari.close()
	juani := registerUser(t, addr, "juanireil", "pw2")
	defer juani.close()

	require.Equal(t, "331 #canal :No topic is set\r\n", join(ari, "#canal"))

	ari.send("MODE #canal +i")
	require.Equal(t, "9 #canal +i :Mode was set correctly\r\n", ari.recvLine())

	juani.send("JOIN #canal")
	require.Equal(t, "473 #canal :Cannot join channel (+i)\r\n", juani.recvLine())

	ari.send("INVITE juanireil #canal")
	require.Equal(t, "341 juanireil #canal\r\n", ari.recvLine())
	require.Equal(t, ":ari!~ari@127.0.0.1 INVITE juanireil #canal\r\n", juani.recvLine())

	require.Equal(t, "331 #canal :No topic is set\r\n", join(juani, "#canal"))
}

// TestKeyEnforcement mirrors section 8 scenario 4.
func TestKeyEnforcement(t *testing.T) {
	addr, _ := startServer(t, "main_server")

	ari := registerUser(t, addr, "ari", "pw1")
	defer ari.close()
	juani := registerUser(t, addr, "juanireil", "pw2")
	defer juani.close()

	require.Equal(t, "331 #canal :No topic is set\r\n", join(ari, "#canal"))

	ari.send("MODE #canal +k pass")
	require.Equal(t, "9 #canal +k pass :Mode was set correctly\r\n", ari.recvLine())

	juani.send("JOIN #canal")
	require.Equal(t, "476 :The channel has a key\r\n", juani.recvLine())

	juani.send("JOIN #canal wrong")
	require.Equal(t, "475 #canal :Cannot join channel (+k)\r\n", juani.recvLine())

	require.Equal(t, "331 #canal :No topic is set\r\n", join(juani, "#canal pass"))
}

// TestTopicAndOperatorSettable mirrors section 8 scenario 5.
func TestTopicAndOperatorSettable(t *testing.T) {
	addr, _ := startServer(t, "main_server")

	ari := registerUser(t, addr, "ari", "pw1")
	defer ari.close()
	juani := registerUser(t, addr, "juanireil", "pw2")
	defer juani.close()

	require.Equal(t, "331 #canal :No topic is set\r\n", join(ari, "#canal"))
	require.Equal(t, "331 #canal :No topic is set\r\n", join(juani, "#canal"))
	require.Equal(t, ":juanireil!~juanireil@127.0.0.1 JOIN #canal\r\n", ari.recvLine())

	juani.send("TOPIC #canal :Nuevo topic de juani")
	require.Equal(t, "332 #canal :Nuevo topic de juani\r\n", juani.recvLine())
	require.Equal(t, ":juanireil!~juanireil@127.0.0.1 TOPIC #canal :Nuevo topic de juani\r\n", ari.recvLine())

	ari.send("TOPIC #canal")
	require.Equal(t, "332 #canal :Nuevo topic de juani\r\n", ari.recvLine())

	ari.send("MODE #canal +t")
	require.Equal(t, "9 #canal +t :Mode was set correctly\r\n", ari.recvLine())
	require.Equal(t, ":ari!~ari@127.0.0.1 MODE #canal +t\r\n", juani.recvLine())

	juani.send("TOPIC #canal :X")
	require.Equal(t, "482 #canal :You're not channel operator\r\n", juani.recvLine())
}

// TestMalformedLineClosesSession mirrors section 8 scenario 6: a colon
// inside a non-trailing parameter is a parse error, and the parser
// rejecting it must tear down the session (section 7: CRITICAL).
func TestMalformedLineClosesSession(t *testing.T) {
	addr, _ := startServer(t, "main_server")

	c := registerUser(t, addr, "wiz", "pw1")
	defer c.close()

	c.send("INVITE Wiz #Twilight:_Zone,#Rust")

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := c.conn.Read(buf)
	require.Error(t, err, "the session must close on a malformed line instead of replying")
}
