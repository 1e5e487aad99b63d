package dcc

import (
	"encoding/binary"
	"io"
	"log"
	"net"
	"time"

	"github.com/pkg/errors"
)

// chunkSize is the maximum number of bytes the sender writes per read,
// per section 4.10's file transfer framing.
const chunkSize = 1024

// acceptTimeout bounds how long a passive DCC listener waits for the
// peer to connect before giving up.
const acceptTimeout = 10 * time.Second

// Listen opens a passive listener on an ephemeral loopback port for a
// DCC_CHAT or DCC_SEND offer. It does not wait for the peer; Accept does,
// returning ErrAcceptTimeout if nothing connects within acceptTimeout.
func Listen() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

// ErrAcceptTimeout is returned by Accept when no peer connects within
// acceptTimeout; the caller should notify the would-be sender that the
// connection was rejected, per section 4.10.
var ErrAcceptTimeout = errors.New("dcc: no connection accepted within timeout")

// Accept waits for exactly one connection on ln, enforcing
// acceptTimeout.
func Accept(ln net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	log.Printf("dcc: listener on %s starting accept", ln.Addr())
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		log.Printf("dcc: listener on %s accept returned, err=%v", ln.Addr(), r.err)
		return r.conn, r.err
	case <-time.After(acceptTimeout):
		_ = ln.Close()
		log.Printf("dcc: listener on %s timed out waiting for peer", ln.Addr())
		return nil, ErrAcceptTimeout
	}
}

// SendFile writes src to peer in chunkSize chunks, reading a four-byte
// big-endian ack after every chunk, starting at offset (0 for a fresh
// transfer, the resume point otherwise). Transfer ends when src.Read
// returns io.EOF; SendFile then closes peer (if it's an io.Closer) so
// the receiver's blocked Read unblocks with EOF of its own.
func SendFile(peer io.ReadWriter, src io.ReadSeeker, offset int64) (int64, error) {
	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			return 0, errors.Wrap(err, "seeking to resume offset")
		}
	}

	buf := make([]byte, chunkSize)
	ackBuf := make([]byte, 4)
	var sent int64

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := peer.Write(buf[:n]); werr != nil {
				return sent, errors.Wrap(werr, "writing chunk")
			}
			if _, rerr := io.ReadFull(peer, ackBuf); rerr != nil {
				return sent, errors.Wrap(rerr, "reading ack")
			}
			acked := binary.BigEndian.Uint32(ackBuf)
			if int(acked) != n {
				return sent, errors.Errorf("short ack: sent %d, acked %d", n, acked)
			}
			sent += int64(n)
		}
		if err == io.EOF {
			if closer, ok := peer.(io.Closer); ok {
				_ = closer.Close()
			}
			return sent, nil
		}
		if err != nil {
			return sent, errors.Wrap(err, "reading source file")
		}
	}
}

// ReceiveFile reads chunks from peer and writes them to dst, acking
// every chunk back on peer, starting at offset. Stops when peer.Read
// returns io.EOF (the sender closed its side).
func ReceiveFile(peer io.ReadWriter, dst io.WriteSeeker, offset int64) (int64, error) {
	if offset > 0 {
		if _, err := dst.Seek(offset, io.SeekStart); err != nil {
			return 0, errors.Wrap(err, "seeking to resume offset")
		}
	}

	buf := make([]byte, chunkSize)
	ackBuf := make([]byte, 4)
	var received int64

	for {
		n, err := peer.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return received, errors.Wrap(werr, "writing to destination")
			}
			binary.BigEndian.PutUint32(ackBuf, uint32(n))
			if _, aerr := peer.Write(ackBuf); aerr != nil {
				return received, errors.Wrap(aerr, "writing ack")
			}
			received += int64(n)
		}
		if err == io.EOF {
			return received, nil
		}
		if err != nil {
			return received, errors.Wrap(err, "reading from peer")
		}
	}
}
