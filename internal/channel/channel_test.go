package channel

import (
	"testing"

	"github.com/horgh/chatd/internal/chatuser"
	"github.com/horgh/chatd/internal/numeric"
)

func testUser(nick string) chatuser.User {
	return *chatuser.New(nick, "u"+nick, nick+" Real Name", "host.example.org", "server1", "pw")
}

func TestJoinPartInvariants(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	if !c.IsOperator("op") {
		t.Fatalf("creator should be operator")
	}

	bob := testUser("bob")
	r := c.Join(bob, "")
	if r.HasCode(numeric.BannedFromChan, numeric.InviteOnlyChan, numeric.BadChannelKey) {
		t.Fatalf("unexpected join failure: %+v", r)
	}
	if !c.IsMember("bob") {
		t.Fatalf("bob should be a member after Join")
	}

	// Last operator departs; invariant I3 says another member is promoted.
	if errReply := c.Part("op"); errReply != nil {
		t.Fatalf("unexpected part failure: %+v", errReply)
	}
	if c.IsMember("op") {
		t.Fatalf("op should no longer be a member")
	}
	if !c.IsOperator("bob") {
		t.Fatalf("bob should have been promoted to operator (invariant I3)")
	}

	if errReply := c.Part("bob"); errReply != nil {
		t.Fatalf("unexpected part failure: %+v", errReply)
	}
	if !c.IsEmpty() {
		t.Fatalf("channel should be empty after last member parts (invariant I1)")
	}
}

func TestJoinRejectsWrongKey(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	res := c.SetMode("op", '+', 'k', "sesame")
	if res.Error != nil {
		t.Fatalf("unexpected error setting key: %+v", res.Error)
	}
	if !res.Changed {
		t.Fatalf("setting key should report changed")
	}

	bob := testUser("bob")
	r := c.Join(bob, "wrong")
	if r.Code != numeric.BadChannelKey {
		t.Fatalf("expected ERR_BADCHANNELKEY, got %+v", r)
	}
	if c.IsMember("bob") {
		t.Fatalf("bob should not have joined with wrong key")
	}

	r = c.Join(bob, "sesame")
	if !c.IsMember("bob") {
		t.Fatalf("bob should have joined with correct key, got %+v", r)
	}
}

func TestEnterModeMutualExclusion(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	c.SetMode("op", '+', 'i', "")
	if c.EnterMode != EnterInvite {
		t.Fatalf("expected EnterInvite, got %v", c.EnterMode)
	}

	// Setting +k while invite-only clears invites and switches to EnterKey.
	res := c.SetMode("op", '+', 'k', "sesame")
	if !res.Changed || c.EnterMode != EnterKey {
		t.Fatalf("expected switch to EnterKey, got %+v mode=%v", res, c.EnterMode)
	}
	if c.Key != "sesame" {
		t.Fatalf("expected key to be set")
	}

	res = c.SetMode("op", '+', 'i', "")
	if !res.Changed || c.EnterMode != EnterInvite {
		t.Fatalf("expected switch back to EnterInvite, got %+v mode=%v", res, c.EnterMode)
	}
	if c.Key != "" {
		t.Fatalf("expected key to be cleared when switching to invite-only")
	}
}

func TestModeIdempotency(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	res := c.SetMode("op", '+', 's', "")
	if !res.Changed {
		t.Fatalf("first +s should report changed")
	}
	res = c.SetMode("op", '+', 's', "")
	if res.Changed {
		t.Fatalf("second +s should report unchanged (property P4/idempotency)")
	}

	res = c.SetMode("op", '-', 's', "")
	if !res.Changed {
		t.Fatalf("-s after +s should report changed")
	}
	res = c.SetMode("op", '-', 's', "")
	if res.Changed {
		t.Fatalf("second -s should report unchanged")
	}
}

func TestKickSelfIsNoop(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	if errReply := c.Kick("op", "op"); errReply != nil {
		t.Fatalf("self-kick should be a no-op, got %+v", errReply)
	}
	if !c.IsMember("op") {
		t.Fatalf("op should remain a member after self-kick")
	}
}

func TestKickRequiresOperator(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)
	bob := testUser("bob")
	c.Join(bob, "")

	carol := testUser("carol")
	c.Join(carol, "")

	errReply := c.Kick("carol", "bob")
	if errReply == nil || errReply.Code != numeric.ChanOPrivsNeeded {
		t.Fatalf("expected ERR_CHANOPRIVSNEEDED, got %+v", errReply)
	}
	if !c.IsMember("carol") {
		t.Fatalf("carol should still be a member")
	}
}

func TestBanClearAll(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	c.SetMode("op", '+', 'b', "bob")
	c.SetMode("op", '+', 'b', "carol")
	if len(c.Banned) != 2 {
		t.Fatalf("expected 2 bans, got %d", len(c.Banned))
	}

	res := c.SetMode("op", '-', 'b', "")
	if !res.Changed || len(c.Banned) != 0 {
		t.Fatalf("bare -b should clear all bans, got %d remaining", len(c.Banned))
	}
}

func TestDeopNonMemberFails(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	res := c.SetMode("op", '-', 'o', "ghost")
	if res.Error == nil || res.Error.Code != numeric.NoSuchNick {
		t.Fatalf("expected ERR_NOSUCHNICK deopping a non-member, got %+v", res)
	}
}

func TestTopicLock(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)
	bob := testUser("bob")
	c.Join(bob, "")

	c.SetMode("op", '+', 't', "")

	r, changed := c.SetTopic("bob", "new topic")
	if r.Code != numeric.ChanOPrivsNeeded {
		t.Fatalf("expected ERR_CHANOPRIVSNEEDED, got %+v", r)
	}
	if changed {
		t.Fatalf("rejected topic change should report unchanged")
	}

	r, changed = c.SetTopic("op", "new topic")
	if r.Code != numeric.Topic {
		t.Fatalf("expected RPL_TOPIC, got %+v", r)
	}
	if !changed {
		t.Fatalf("first topic change should report changed")
	}
	if c.Topic != "new topic" {
		t.Fatalf("topic not updated: %q", c.Topic)
	}
}

func TestTopicIdempotency(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	_, changed := c.SetTopic("op", "same topic")
	if !changed {
		t.Fatalf("first topic set should report changed")
	}

	_, changed = c.SetTopic("op", "same topic")
	if changed {
		t.Fatalf("re-setting the same topic text should report unchanged")
	}
}

func TestDeopSelfIsNoop(t *testing.T) {
	op := testUser("op")
	c := New("#chan", op)

	res := c.SetMode("op", '-', 'o', "op")
	if res.Error != nil {
		t.Fatalf("self-deop should not error, got %+v", res.Error)
	}
	if res.Changed {
		t.Fatalf("self-deop should report unchanged")
	}
	if !c.IsOperator("op") {
		t.Fatalf("op should remain operator after self-deop (invariant I3)")
	}
}
