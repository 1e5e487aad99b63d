// Package serverdata loads and persists the server's identity, admin
// credential, and registered-user store (section 4.9) from the
// semicolon-delimited record format: lines beginning with "S;" (server
// config), "A;" (admin credential), or "U;" (a registered user).
package serverdata

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/horgh/chatd/internal/chatuser"
)

const (
	serverIdentifier = "S"
	adminIdentifier  = "A"
	userIdentifier   = "U"
)

// MainLink identifies the upstream server a secondary server links to:
// its name and the address to dial to reach it.
type MainLink struct {
	ServerName string
	Address    string
}

// ServerData is everything read once at startup from the server's data
// file(s) (and, for a main server, its separate registered-users file).
// The coordinator owns the only live copy; ServerData itself is just the
// loader and the on-disk append path.
type ServerData struct {
	ServerAddress string
	ServerName    string
	AdminNick     string
	AdminPassword string

	FilePath      string
	UsersFilePath string

	// Main is set on a secondary server to name the server it links to; nil
	// on a main server (is_main in the original).
	Main *MainLink

	Users    map[string]*chatuser.User
	Channels map[string]struct{}
}

// Load reads path (the server's own data file) and, if this turns out to
// be a main server, its users file too, populating a ServerData. It
// returns an error if the server config section is missing required
// fields, matching the original's "server info incomplete" check.
func Load(path string) (*ServerData, error) {
	sd := &ServerData{
		FilePath: path,
		Users:    map[string]*chatuser.User{},
		Channels: map[string]struct{}{},
	}

	if err := sd.readFileInto(path); err != nil {
		return nil, errors.Wrapf(err, "reading server data file %s", path)
	}

	if sd.IsMain() && sd.UsersFilePath != "" {
		if err := sd.readFileInto(sd.UsersFilePath); err != nil {
			return nil, errors.Wrapf(err, "reading users file %s", sd.UsersFilePath)
		}
	}

	if sd.ServerAddress == "" || sd.ServerName == "" || sd.AdminNick == "" ||
		sd.AdminPassword == "" {
		return nil, errors.New("server info incomplete")
	}

	return sd, nil
}

// IsMain reports whether this server has no upstream link - i.e., it's
// the top of the star topology (section 4.8).
func (sd *ServerData) IsMain() bool {
	return sd.Main == nil
}

func (sd *ServerData) readFileInto(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, ";")
		if err := sd.parseLine(fields); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (sd *ServerData) parseLine(fields []string) error {
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case serverIdentifier:
		return sd.parseServerLine(fields)
	case adminIdentifier:
		return sd.parseAdminLine(fields)
	case userIdentifier:
		return sd.parseUserLine(fields)
	default:
		return errors.Errorf("invalid config file line: %v", fields)
	}
}

// parseServerLine handles "S;name;address;main-name|none;main-address|users-file-path".
func (sd *ServerData) parseServerLine(fields []string) error {
	if len(fields) < 5 {
		return errors.Errorf("malformed S; line: %v", fields)
	}

	name := fields[1]
	address := fields[2]
	mainName := fields[3]

	sd.ServerName = name
	sd.ServerAddress = address

	if mainName != "none" {
		sd.Main = &MainLink{ServerName: mainName, Address: fields[4]}
		sd.UsersFilePath = ""
	} else {
		sd.Main = nil
		sd.UsersFilePath = fields[4]
	}

	return nil
}

// parseAdminLine handles "A;password;nickname".
func (sd *ServerData) parseAdminLine(fields []string) error {
	if len(fields) < 3 {
		return errors.Errorf("malformed A; line: %v", fields)
	}
	sd.AdminPassword = fields[1]
	sd.AdminNick = fields[2]
	return nil
}

// parseUserLine handles
// "U;nickname;address;username;real_name;server_name;password".
func (sd *ServerData) parseUserLine(fields []string) error {
	if len(fields) < 7 {
		return errors.Errorf("malformed U; line: %v", fields)
	}
	u := chatuser.New(fields[1], fields[3], fields[4], fields[2], fields[5], fields[6])
	sd.Users[u.Nickname] = u
	return nil
}

// AppendUser records a newly registered user to the users file so it
// survives a restart. Only called on a main server (only it owns a users
// file; section 4.9).
func (sd *ServerData) AppendUser(u *chatuser.User) error {
	f, err := os.OpenFile(sd.UsersFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening users file for append")
	}
	defer func() { _ = f.Close() }()

	line := fmt.Sprintf("%s;%s;%s;%s;%s;%s;%s\n",
		userIdentifier, u.Nickname, u.Host, u.Username, u.RealName, u.HomeServer, u.Credential)

	if _, err := f.WriteString(line); err != nil {
		return errors.Wrap(err, "writing user record")
	}
	return nil
}
