package filter

import (
	"testing"

	"github.com/tinyland-inc/tgminer/pkg/bus"
)

func TestPattern_FullAnchor(t *testing.T) {
	p := MustCompile("Test")
	if ok, _ := p.Match("Test Group"); ok {
		t.Error("pattern matched a prefix; want full-string match")
	}
	if ok, _ := p.Match("Test"); !ok {
		t.Error("pattern did not match exact value")
	}

	p = MustCompile("Test.*")
	if ok, _ := p.Match("Test Group!"); !ok {
		t.Error("Test.* should match Test Group!")
	}
	if ok, _ := p.Match("My Test Group"); ok {
		t.Error("Test.* should not match a value that only contains Test")
	}
}

func TestPattern_NegativeLookahead(t *testing.T) {
	p := MustCompile(`(?!.*\.exe$).*`)

	tests := map[string]bool{
		"malware.exe": false,
		"report.pdf":  true,
		"":            true,
		"exe.txt":     true,
	}
	for name, want := range tests {
		got, err := p.Match(name)
		if err != nil {
			t.Fatalf("match %q: %v", name, err)
		}
		if got != want {
			t.Errorf("Match(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPattern_EmptyIsMatchAll(t *testing.T) {
	p := MustCompile("")
	if p.String() != MatchAll {
		t.Errorf("String() = %q, want %q", p.String(), MatchAll)
	}
	if ok, _ := p.Match(""); !ok {
		t.Error("default pattern must match the empty string")
	}
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile("(unclosed"); err == nil {
		t.Error("expected compile error")
	}
}

func TestNewChain_UnknownField(t *testing.T) {
	if _, err := NewChain(KindDirect, map[string]string{"title": ".*"}); err == nil {
		t.Error("expected error for a group-only field on a direct chain")
	}
	if _, err := NewChain(Kind("nope"), nil); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestChain_EmptyNeverRejects(t *testing.T) {
	for _, kind := range []Kind{KindGroup, KindDirect, KindUser} {
		c, err := NewChain(kind, nil)
		if err != nil {
			t.Fatalf("NewChain(%s): %v", kind, err)
		}
		for _, f := range []Fields{
			nil,
			{},
			SenderFields("", "", 0),
			GroupFields("anything", "anything", -100123, "u", "A", 9),
		} {
			if reject, err := c.Rejects(f); reject || err != nil {
				t.Errorf("%s chain rejected %v (err %v)", kind, f, err)
			}
		}
	}

	var nilChain *Chain
	if reject, _ := nilChain.Rejects(Fields{}); reject {
		t.Error("nil chain rejected")
	}
}

func TestChain_Conjunction(t *testing.T) {
	c, err := NewChain(KindGroup, map[string]string{
		FieldTitle:    "Test.*",
		FieldUsername: "alice|bob",
	})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	tests := []struct {
		name   string
		fields Fields
		reject bool
	}{
		{"both match", GroupFields("Test Group!", "test-group", 1, "alice", "Alice", 7), false},
		{"title fails", GroupFields("Other", "other", 1, "alice", "Alice", 7), true},
		{"username fails", GroupFields("Test Group!", "test-group", 1, "carol", "Carol", 7), true},
		{"missing username", GroupFields("Test Group!", "test-group", 1, "", "Alice", 7), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Rejects(tt.fields)
			if err != nil {
				t.Fatalf("Rejects: %v", err)
			}
			if got != tt.reject {
				t.Errorf("Rejects() = %v, want %v", got, tt.reject)
			}
		})
	}
}

func TestChain_UnsetFieldIsEmptyString(t *testing.T) {
	c, err := NewChain(KindUser, map[string]string{FieldAlias: ""})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if reject, _ := c.Rejects(SenderFields("", "", 1)); reject {
		t.Error("default rule must accept an unset alias")
	}

	strict, _ := NewChain(KindUser, map[string]string{FieldAlias: ".+"})
	if reject, _ := strict.Rejects(SenderFields("", "", 1)); !reject {
		t.Error(".+ must reject an unset alias")
	}
}

func TestPolicy_Dispatch(t *testing.T) {
	p, err := NewPolicy(
		map[string]string{FieldTitle: "Allowed"},
		map[string]string{FieldUsername: "friend"},
		map[string]string{FieldID: "[0-9]+"},
	)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	sender := SenderFields("friend", "Friend", 10)
	group := GroupFields("Allowed", "allowed", 5, "friend", "Friend", 10)

	if reject, _ := p.Rejects(bus.PeerGroup, group, sender); reject {
		t.Error("group event rejected")
	}
	if reject, _ := p.Rejects(bus.PeerChannel, group, sender); reject {
		t.Error("channel event rejected")
	}

	// The group chain must not be consulted for direct chats.
	if reject, _ := p.Rejects(bus.PeerDirect, sender, sender); reject {
		t.Error("direct event rejected")
	}

	stranger := SenderFields("stranger", "", 11)
	if reject, _ := p.Rejects(bus.PeerDirect, stranger, stranger); !reject {
		t.Error("direct chain should reject stranger")
	}

	// The user chain applies regardless of conversation kind.
	negativeID := SenderFields("friend", "Friend", -3)
	if reject, _ := p.Rejects(bus.PeerGroup, group, negativeID); !reject {
		t.Error("user chain should reject negative sender id")
	}

	if _, err := p.Rejects(bus.PeerKind("bogus"), group, sender); err == nil {
		t.Error("expected error for unknown conversation kind")
	}
}
