// Package listener implements the Connection Listener (section 4.8): it
// binds a TCP socket, and for each accepted connection spawns a goroutine
// that runs a Connection Handler through to registration, then hands the
// resolved session off to a Client Handler loop. It also dials out to the
// configured main server, for a process running as a Secondary.
package listener

import (
	"log"
	"net"

	"github.com/horgh/chatd/internal/clienthandler"
	"github.com/horgh/chatd/internal/connhandler"
	"github.com/horgh/chatd/internal/coordinator"
	"github.com/horgh/chatd/internal/serverrole"
	"github.com/horgh/chatd/internal/session"
	"github.com/horgh/chatd/internal/wire"
)

// Listener accepts connections and spins up a Connection Handler for each.
type Listener struct {
	Addr  string
	Coord *coordinator.Coordinator
	Role  serverrole.Role
}

// New builds a Listener.
func New(addr string, coord *coordinator.Coordinator, role serverrole.Role) *Listener {
	return &Listener{Addr: addr, Coord: coord, Role: role}
}

// Run binds Addr and accepts connections until the coordinator's Shutdown
// channel fires or the listener socket errors.
func (l *Listener) Run() error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	defer func() { _ = ln.Close() }()

	stopping := make(chan struct{})
	go func() {
		<-l.Coord.Shutdown
		close(stopping)
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stopping:
				return nil
			default:
				return err
			}
		}
		go l.handleConnection(conn)
	}
}

func (l *Listener) handleConnection(conn net.Conn) {
	remoteHost := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(remoteHost); err == nil {
		remoteHost = host
	}
	log.Printf("connection accepted from %s", remoteHost)
	defer log.Printf("connection from %s: handler goroutine exiting", remoteHost)

	ch := connhandler.New(conn, remoteHost, l.Coord, l.Role)
	outcome, err := ch.Run()
	if err != nil {
		log.Printf("connection from %s failed registration: %s", remoteHost, err)
		_ = conn.Close()
		return
	}

	s := session.New(remoteHost)

	if outcome.IsServer {
		l.Coord.RegisterPeerSession(outcome.PeerServerName, s)
		l.Role.AcceptPeer(outcome.PeerServerName, s)
	} else {
		l.Coord.RegisterUserSession(outcome.User.Nickname, s)
	}

	clienthandler.New(conn, s, l.Coord, l.Role).Run()
}

// ConnectToMain dials a Secondary's configured main server, performs the
// outbound SERVER handshake, and registers the resulting peer session.
// Grounded on secondary_server.rs's connect_to_main_server: the
// connection is established eagerly at startup rather than waited for.
func ConnectToMain(addr, mainName, thisServerName string, coord *coordinator.Coordinator, role serverrole.Role) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	hello := wire.Message{Command: "SERVER", Params: []wire.ParamGroup{{thisServerName}}}
	if _, err := conn.Write([]byte(hello.Encode())); err != nil {
		_ = conn.Close()
		return err
	}

	s := session.New(conn.RemoteAddr().String())
	coord.RegisterPeerSession(mainName, s)

	go clienthandler.New(conn, s, coord, role).Run()
	return nil
}
