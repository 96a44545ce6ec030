// Package filter implements the conjunctive field filters that decide
// whether an event is mined.
//
// A Chain holds one compiled pattern per configured field. An event passes
// a chain only if every pattern matches its field in full; a field the event
// does not carry is matched as "". A chain without rules passes everything.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/tinyland-inc/tgminer/pkg/bus"
)

// MatchAll is the default pattern for every field.
const MatchAll = ".*"

const matchTimeout = time.Second

// Kind selects which field set a chain is evaluated against.
type Kind string

const (
	KindGroup  Kind = "group"
	KindDirect Kind = "direct"
	KindUser   Kind = "user"
)

const (
	FieldTitle     = "title"
	FieldTitleSlug = "title_slug"
	FieldID        = "id"
	FieldUsername  = "username"
	FieldUserAlias = "user_alias"
	FieldUserID    = "user_id"
	FieldAlias     = "alias"
)

var kindFields = map[Kind][]string{
	KindGroup:  {FieldTitle, FieldTitleSlug, FieldID, FieldUsername, FieldUserAlias, FieldUserID},
	KindDirect: {FieldUsername, FieldAlias, FieldID},
	KindUser:   {FieldUsername, FieldAlias, FieldID},
}

// Fields returns the field names a chain of the given kind accepts.
func (k Kind) Fields() []string {
	return append([]string(nil), kindFields[k]...)
}

// Pattern is a compiled, fully anchored match expression. Lookaround is
// supported, so `(?!.*\.exe$).*` rejects names ending in .exe.
type Pattern struct {
	source string
	re     *regexp2.Regexp
}

// Compile anchors expr at both ends and compiles it. An empty expr is MatchAll.
func Compile(expr string) (*Pattern, error) {
	if expr == "" {
		expr = MatchAll
	}
	re, err := regexp2.Compile(`\A(?:`+expr+`)\z`, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	re.MatchTimeout = matchTimeout
	return &Pattern{source: expr, re: re}, nil
}

// MustCompile is Compile that panics on error. For tests and constants.
func MustCompile(expr string) *Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether s matches the whole pattern. A nil Pattern matches
// everything.
func (p *Pattern) Match(s string) (bool, error) {
	if p == nil {
		return true, nil
	}
	ok, err := p.re.MatchString(s)
	if err != nil {
		return false, fmt.Errorf("match %q against %q: %w", s, p.source, err)
	}
	return ok, nil
}

func (p *Pattern) String() string {
	if p == nil {
		return MatchAll
	}
	return p.source
}

// Rule binds a pattern to a field name.
type Rule struct {
	Field   string
	Pattern *Pattern
}

// Chain is an immutable conjunction of rules.
type Chain struct {
	kind  Kind
	rules []Rule
}

// NewChain compiles patterns (field name -> expression) into a chain of the
// given kind. Unknown field names are an error.
func NewChain(kind Kind, patterns map[string]string) (*Chain, error) {
	allowed, ok := kindFields[kind]
	if !ok {
		return nil, fmt.Errorf("unknown filter kind %q", kind)
	}

	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &Chain{kind: kind, rules: make([]Rule, 0, len(names))}
	for _, name := range names {
		if !contains(allowed, name) {
			return nil, fmt.Errorf("%s filter: unknown field %q (allowed: %v)", kind, name, allowed)
		}
		p, err := Compile(patterns[name])
		if err != nil {
			return nil, fmt.Errorf("%s filter %q: %w", kind, name, err)
		}
		c.rules = append(c.rules, Rule{Field: name, Pattern: p})
	}
	return c, nil
}

func (c *Chain) Kind() Kind { return c.kind }

// Rules returns a copy of the chain's rules.
func (c *Chain) Rules() []Rule {
	if c == nil {
		return nil
	}
	return append([]Rule(nil), c.rules...)
}

// Rejects reports whether any rule fails to match its field. A nil or empty
// chain never rejects.
func (c *Chain) Rejects(fields Fields) (bool, error) {
	if c == nil {
		return false, nil
	}
	for _, r := range c.rules {
		ok, err := r.Pattern.Match(fields[r.Field])
		if err != nil {
			return true, fmt.Errorf("%s filter %q: %w", c.kind, r.Field, err)
		}
		if !ok {
			return true, nil
		}
	}
	return false, nil
}

// Fields maps field names to the stringified values of one event.
type Fields map[string]string

// GroupFields builds the field set for group and channel conversations.
func GroupFields(title, titleSlug string, chatID int64, username, userAlias string, userID int64) Fields {
	return Fields{
		FieldTitle:     title,
		FieldTitleSlug: titleSlug,
		FieldID:        strconv.FormatInt(chatID, 10),
		FieldUsername:  username,
		FieldUserAlias: userAlias,
		FieldUserID:    strconv.FormatInt(userID, 10),
	}
}

// SenderFields builds the field set used by both the direct and user chains.
func SenderFields(username, alias string, senderID int64) Fields {
	return Fields{
		FieldUsername: username,
		FieldAlias:    alias,
		FieldID:       strconv.FormatInt(senderID, 10),
	}
}

// Policy groups the three chains. It is built once at startup and shared
// read-only by all ingestion workers.
type Policy struct {
	Group  *Chain
	Direct *Chain
	User   *Chain
}

// NewPolicy compiles the three pattern maps.
func NewPolicy(group, direct, user map[string]string) (*Policy, error) {
	g, err := NewChain(KindGroup, group)
	if err != nil {
		return nil, err
	}
	d, err := NewChain(KindDirect, direct)
	if err != nil {
		return nil, err
	}
	u, err := NewChain(KindUser, user)
	if err != nil {
		return nil, err
	}
	return &Policy{Group: g, Direct: d, User: u}, nil
}

// Rejects applies the conversation chain selected by kind (group chain for
// groups and channels, direct chain for one-to-one chats) and then the user
// chain to the sender. The event is accepted only if both pass.
func (p *Policy) Rejects(kind bus.PeerKind, conversation, sender Fields) (bool, error) {
	var conv *Chain
	switch kind {
	case bus.PeerGroup, bus.PeerChannel:
		conv = p.Group
	case bus.PeerDirect:
		conv = p.Direct
	default:
		return true, fmt.Errorf("unknown conversation kind %q", kind)
	}

	if reject, err := conv.Rejects(conversation); reject || err != nil {
		return reject, err
	}
	return p.User.Rejects(sender)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
