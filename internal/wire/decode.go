package wire

import (
	"fmt"
	"strings"
)

// ErrMalformed is returned (wrapped with more detail) for any line that
// fails to parse. All parse failures are equivalent from the caller's
// perspective: the session that sent the line must be torn down (section 7 -
// parse errors are CRITICAL).
var ErrMalformed = fmt.Errorf("malformed line")

// Parse parses a single CRLF-terminated protocol line into a Message.
//
// The grammar (section 4.1):
//
//	line    = [ ":" prefix SP ] command *( SP params ) CRLF
//	params  = cluster / ":" trailing
//	cluster = token *( "," token )
//
// A cluster token may not contain space, comma, CR, LF, or a colon.
// The trailing form is only valid as the very last parameter group and may
// contain spaces (but not CR or LF).
func Parse(line string) (Message, error) {
	if !strings.HasSuffix(line, "\r\n") {
		return Message{}, fmt.Errorf("%w: no CRLF ending", ErrMalformed)
	}
	body := line[:len(line)-2]

	if err := checkNoBareEOL(body); err != nil {
		return Message{}, err
	}

	msg := Message{}
	rest := body

	if strings.HasPrefix(rest, ":") {
		prefix, remainder, err := parsePrefix(rest)
		if err != nil {
			return Message{}, fmt.Errorf("%w: bad prefix: %s", ErrMalformed, err)
		}
		msg.Prefix = prefix
		rest = remainder
	}

	command, remainder, err := parseCommand(rest)
	if err != nil {
		return Message{}, fmt.Errorf("%w: bad command: %s", ErrMalformed, err)
	}
	msg.Command = command
	rest = remainder

	params, err := parseParams(rest)
	if err != nil {
		return Message{}, fmt.Errorf("%w: bad params: %s", ErrMalformed, err)
	}
	msg.Params = params

	return msg, nil
}

// checkNoBareEOL rejects any stray CR or LF inside the line body. The line
// passed in has already had its trailing CRLF stripped, so any CR or LF
// remaining is a bare one - invalid per section 4.1 / property P2.
func checkNoBareEOL(body string) error {
	if strings.ContainsAny(body, "\r\n") {
		return fmt.Errorf("%w: bare CR or LF in line", ErrMalformed)
	}
	return nil
}

// parsePrefix parses the leading ":prefix " portion. rest begins with ':'.
// Returns the prefix (without ':') and the remainder of the line starting
// right after the separating space.
func parsePrefix(rest string) (string, string, error) {
	idx := strings.IndexByte(rest, ' ')
	if idx == -1 {
		return "", "", fmt.Errorf("prefix with no following command")
	}
	prefix := rest[1:idx]
	if prefix == "" {
		return "", "", fmt.Errorf("empty prefix")
	}
	return prefix, strings.TrimLeft(rest[idx:], " "), nil
}

// parseCommand parses the command token, upper-casing it. rest must not
// begin with a space (leading whitespace should already have been trimmed
// by the caller).
func parseCommand(rest string) (string, string, error) {
	idx := strings.IndexByte(rest, ' ')
	var token, remainder string
	if idx == -1 {
		token = rest
		remainder = ""
	} else {
		token = rest[:idx]
		remainder = strings.TrimLeft(rest[idx:], " ")
	}

	if token == "" {
		return "", "", fmt.Errorf("empty command")
	}
	for _, c := range token {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return "", "", fmt.Errorf("invalid character in command: %q", c)
		}
	}

	return strings.ToUpper(token), remainder, nil
}

// parseParams parses the parameter groups out of rest, which is whatever
// remains of the line after the command (with leading spaces already
// trimmed off by the caller, but interior groups are separated by single or
// multiple spaces which we trim as we go).
func parseParams(rest string) ([]ParamGroup, error) {
	var groups []ParamGroup

	for rest != "" {
		if len(groups) >= MaxParamGroups {
			return nil, fmt.Errorf("too many parameter groups")
		}

		if strings.HasPrefix(rest, ":") {
			trailing := rest[1:]
			if strings.ContainsAny(trailing, "\r\n") {
				return nil, fmt.Errorf("CR or LF in trailing parameter")
			}
			groups = append(groups, ParamGroup{trailing})
			return groups, nil
		}

		idx := strings.IndexByte(rest, ' ')
		var field string
		if idx == -1 {
			field = rest
			rest = ""
		} else {
			field = rest[:idx]
			rest = strings.TrimLeft(rest[idx:], " ")
		}

		if field == "" {
			return nil, fmt.Errorf("empty parameter field")
		}

		group, err := parseCluster(field)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, nil
}

// parseCluster splits a single non-trailing parameter field on commas and
// validates that no element contains a forbidden character: space (can't
// happen here since we already split on space), comma is the separator
// itself, CR, LF, or a colon anywhere in the element.
func parseCluster(field string) (ParamGroup, error) {
	parts := strings.Split(field, ",")
	group := make(ParamGroup, 0, len(parts))

	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty element in parameter cluster")
		}
		if strings.ContainsAny(p, "\r\n:") {
			return nil, fmt.Errorf("forbidden character in non-trailing parameter: %q", p)
		}
		group = append(group, p)
	}

	return group, nil
}
