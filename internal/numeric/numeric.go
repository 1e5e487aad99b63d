// Package numeric holds the well-known three-digit server-to-client reply
// codes (section 6) and their serialization.
package numeric

import (
	"strings"

	"github.com/horgh/chatd/internal/wire"
)

// Code is a numeric reply number. Stored as a string since some (1-9) are
// not zero-padded to three digits in this protocol, unlike RFC 1459/2812.
type Code string

// The complete numeric vocabulary from section 6.
const (
	InvalidLogin        Code = "1"
	CorrectLogin         Code = "2"
	CorrectRegistration  Code = "3"
	InvalidLimit         Code = "8"
	ModeSet              Code = "9"
	Away                 Code = "301"
	Unaway               Code = "305"
	NowAway              Code = "306"
	WhoisUser            Code = "311"
	WhoisServer          Code = "312"
	WhoisOperator        Code = "313"
	EndOfWho             Code = "315"
	EndOfWhois           Code = "318"
	WhoisChannels        Code = "319"
	ListStart            Code = "321"
	List                 Code = "322"
	ListEnd              Code = "323"
	NoTopic              Code = "331"
	Topic                Code = "332"
	Inviting             Code = "341"
	WhoReply             Code = "352"
	NameReply            Code = "353"
	EndOfNames           Code = "366"
	YoureOper            Code = "381"
	NoSuchNick           Code = "401"
	NoSuchServer         Code = "402"
	NoSuchChannel        Code = "403"
	TooManyChannels      Code = "405"
	NoRecipient          Code = "411"
	NoTextToSend         Code = "412"
	NoNicknameGiven      Code = "431"
	ErroneusNickname     Code = "432"
	NicknameInUse        Code = "433"
	NickCollision        Code = "436"
	NotOnChannel         Code = "442"
	UserOnChannel        Code = "443"
	NeedMoreParams       Code = "461"
	AlreadyRegistred     Code = "462"
	PasswdMismatch       Code = "464"
	KeySet               Code = "467"
	ChannelIsFull        Code = "471"
	UnknownMode          Code = "472"
	InviteOnlyChan       Code = "473"
	BannedFromChan       Code = "474"
	BadChannelKey        Code = "475"
	ChannelHasKey        Code = "476"
	NoPrivileges         Code = "481"
	ChanOPrivsNeeded     Code = "482"
)

// defaultMessages holds the human-readable message body that accompanies a
// code when the caller doesn't supply one of its own (some replies, like
// RPL_TOPIC or RPL_WHOISUSER, always need a caller-supplied body instead).
var defaultMessages = map[Code]string{
	InvalidLogin:        "No such user registered",
	CorrectLogin:        "Login successful",
	CorrectRegistration: "Registration successful",
	InvalidLimit:        "limit is invalid",
	ModeSet:             "Mode was set correctly",
	EndOfWho:            "End of WHO list",
	EndOfWhois:          "End of /WHOIS list",
	WhoisChannels:       "channel name",
	ListStart:           "Users  Name",
	ListEnd:             "End of /LIST",
	NoTopic:             "No topic is set",
	WhoReply:            "WHO reply",
	EndOfNames:          "End of /NAMES list",
	YoureOper:           "You are now an IRC operator",
	NoSuchNick:          "No such nick/channel",
	NoSuchServer:        "No such server",
	NoSuchChannel:       "No such channel",
	TooManyChannels:     "You have joined too many channels",
	NoRecipient:         "No recipient given",
	NoTextToSend:        "No text to send",
	NoNicknameGiven:     "No nickname given",
	ErroneusNickname:    "Erroneus nickname",
	NicknameInUse:       "Nickname is already in use",
	NickCollision:       "Nickname collision KILL",
	NotOnChannel:        "You're not on that channel",
	UserOnChannel:       "is already on channel",
	NeedMoreParams:      "Not enough parameters",
	AlreadyRegistred:    "You may not reregister",
	PasswdMismatch:      "Password incorrect",
	KeySet:              "Channel key already set",
	ChannelIsFull:       "Cannot join channel (+l)",
	UnknownMode:         "is unknown mode char to me",
	InviteOnlyChan:      "Cannot join channel (+i)",
	BannedFromChan:      "Cannot join channel (+b)",
	BadChannelKey:       "Cannot join channel (+k)",
	ChannelHasKey:       "The channel has a key",
	NoPrivileges:        "Permission Denied - You're not an IRC operator",
	ChanOPrivsNeeded:    "You're not channel operator",
	WhoisServer:         "server info",
	WhoisOperator:       "is an irc operator",
	Unaway:              "You are no longer marked as being away",
	NowAway:             "You have been marked as being away",
}

// Reply is a numeric reply ready to be addressed to a client and written to
// the wire: `<number> <arg>* [:<message>] CRLF`.
type Reply struct {
	Code    Code
	Args    []string
	Message string
}

// New builds a Reply. If message is "", the code's default message (if any)
// is used.
func New(code Code, args []string, message string) Reply {
	if message == "" {
		message = defaultMessages[code]
	}
	return Reply{Code: code, Args: args, Message: message}
}

// HasCode reports whether r's code is any of the given codes. Used by
// commands.Join to tell a successful join (a topic reply) from an error
// reply, and by the channel tests.
func (r Reply) HasCode(codes ...Code) bool {
	for _, c := range codes {
		if r.Code == c {
			return true
		}
	}
	return false
}

// ToWireMessage builds the wire.Message form of this reply: `<number>
// <arg>* [:<message>] CRLF`, with Args serialized verbatim and no
// implicit target. A reply that needs to name its recipient (e.g. the
// nick a login/registration succeeded for) carries that nick as an
// explicit entry in Args - the serialization layer never injects one.
func (r Reply) ToWireMessage() wire.Message {
	params := make([]wire.ParamGroup, 0, len(r.Args)+1)
	for _, a := range r.Args {
		params = append(params, wire.ParamGroup{a})
	}
	if r.Message != "" {
		params = append(params, wire.ParamGroup{r.Message})
	}

	return wire.Message{
		Command: string(r.Code),
		Params:  params,
	}
}

// String renders the reply as a human-readable line for logs and for the
// literal "<number> <arg>* [:<message>]" form used in the scenario fixtures
// in section 8.
func (r Reply) String() string {
	var b strings.Builder
	b.WriteString(string(r.Code))
	for _, a := range r.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	if r.Message != "" {
		b.WriteString(" :")
		b.WriteString(r.Message)
	}
	return b.String()
}
