// Package dcc implements the out-of-band DCC chat/file transfer payload
// grammar (section 4.10). The server core never parses or dispatches any
// of this: DCC offers travel end-client to end-client as opaque PRIVMSG
// trailing text, and this package is only ever imported by client-side
// code, never by internal/commands or internal/clienthandler.
package dcc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies which DCC payload a line carries.
type Kind string

// The five payload kinds named in section 4.10.
const (
	KindChat   Kind = "DCC_CHAT"
	KindSend   Kind = "DCC_SEND"
	KindAccept Kind = "DCC_ACCEPT"
	KindResume Kind = "DCC_RESUME"
	KindClose  Kind = "DCC_CLOSE"
)

// Offer is a parsed DCC payload. Not every field applies to every Kind;
// see the constructors and String for which ones each uses.
type Offer struct {
	Kind Kind
	Name string // DCC_SEND/ACCEPT/RESUME: the file name
	IP   string
	Port int
	Size int64  // DCC_SEND only: total file size in bytes
	Offset int64 // DCC_ACCEPT/DCC_RESUME only: resume offset
}

// Chat builds a DCC_CHAT offer: the sender is passively listening at
// ip:port.
func Chat(ip string, port int) Offer {
	return Offer{Kind: KindChat, IP: ip, Port: port}
}

// Send builds a DCC_SEND offer of a file of size bytes.
func Send(name, ip string, port int, size int64) Offer {
	return Offer{Kind: KindSend, Name: name, IP: ip, Port: port, Size: size}
}

// Accept builds a DCC_ACCEPT reply: the receiver accepts a resumed
// transfer starting at offset.
func Accept(name, ip string, port int, offset int64) Offer {
	return Offer{Kind: KindAccept, Name: name, IP: ip, Port: port, Offset: offset}
}

// Resume builds a DCC_RESUME request asking the sender to resume from
// offset.
func Resume(name, ip string, port int, offset int64) Offer {
	return Offer{Kind: KindResume, Name: name, IP: ip, Port: port, Offset: offset}
}

// Close builds a DCC_CLOSE, tearing down an active DCC chat.
func Close() Offer {
	return Offer{Kind: KindClose}
}

// String renders the offer as PRIVMSG trailing text, matching the
// grammar's literal field order.
func (o Offer) String() string {
	switch o.Kind {
	case KindChat:
		return fmt.Sprintf("%s chat %s %d", KindChat, o.IP, o.Port)
	case KindSend:
		return fmt.Sprintf("%s %s %s %d %d", KindSend, o.Name, o.IP, o.Port, o.Size)
	case KindAccept:
		return fmt.Sprintf("%s %s %s %d %d", KindAccept, o.Name, o.IP, o.Port, o.Offset)
	case KindResume:
		return fmt.Sprintf("%s %s %s %d %d", KindResume, o.Name, o.IP, o.Port, o.Offset)
	case KindClose:
		return string(KindClose)
	default:
		return ""
	}
}

// Parse reads a DCC payload out of a PRIVMSG trailing parameter.
func Parse(text string) (Offer, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Offer{}, errors.New("empty DCC payload")
	}

	switch Kind(fields[0]) {
	case KindChat:
		if len(fields) != 4 || fields[1] != "chat" {
			return Offer{}, errors.Errorf("malformed DCC_CHAT: %q", text)
		}
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return Offer{}, errors.Wrap(err, "parsing DCC_CHAT port")
		}
		return Chat(fields[2], port), nil

	case KindSend:
		if len(fields) != 5 {
			return Offer{}, errors.Errorf("malformed DCC_SEND: %q", text)
		}
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return Offer{}, errors.Wrap(err, "parsing DCC_SEND port")
		}
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return Offer{}, errors.Wrap(err, "parsing DCC_SEND size")
		}
		return Send(fields[1], fields[2], port, size), nil

	case KindAccept:
		if len(fields) != 5 {
			return Offer{}, errors.Errorf("malformed DCC_ACCEPT: %q", text)
		}
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return Offer{}, errors.Wrap(err, "parsing DCC_ACCEPT port")
		}
		offset, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return Offer{}, errors.Wrap(err, "parsing DCC_ACCEPT offset")
		}
		return Accept(fields[1], fields[2], port, offset), nil

	case KindResume:
		if len(fields) != 5 {
			return Offer{}, errors.Errorf("malformed DCC_RESUME: %q", text)
		}
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return Offer{}, errors.Wrap(err, "parsing DCC_RESUME port")
		}
		offset, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return Offer{}, errors.Wrap(err, "parsing DCC_RESUME offset")
		}
		return Resume(fields[1], fields[2], port, offset), nil

	case KindClose:
		if len(fields) != 1 {
			return Offer{}, errors.Errorf("malformed DCC_CLOSE: %q", text)
		}
		return Close(), nil

	default:
		return Offer{}, errors.Errorf("unknown DCC payload kind: %q", fields[0])
	}
}
