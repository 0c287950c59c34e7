package chat

import (
	"fmt"
	"regexp"
	"strings"
)

// ChannelName is a normalized (lower-cased, no leading '#') broadcaster login.
type ChannelName string

// NormalizeChannel trims whitespace and a leading '#' and lower-cases name.
func NormalizeChannel(name string) ChannelName {
	n := strings.TrimSpace(name)
	n = strings.TrimPrefix(n, "#")
	return ChannelName(strings.ToLower(n))
}

// String returns the channel name.
func (c ChannelName) String() string { return string(c) }

// Filter is the compiled match pattern. It is built once per run and shared
// read-only by every watcher.
type Filter struct {
	re *regexp.Regexp
}

// NewFilter compiles pattern.
func NewFilter(pattern string) (*Filter, error) {
	if pattern == "" {
		return nil, fmt.Errorf("filter pattern empty")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", pattern, err)
	}
	return &Filter{re: re}, nil
}

// Pattern returns the source pattern.
func (f *Filter) Pattern() string { return f.re.String() }

// Match reports whether text contains a match.
func (f *Filter) Match(text string) bool { return f.re.MatchString(text) }

// Apply builds a Message when text matches. It is the only way to obtain a
// non-zero Message, so a Message always carries matching text.
func (f *Filter) Apply(channel ChannelName, nickname, text string) (Message, bool) {
	if !f.re.MatchString(text) {
		return Message{}, false
	}
	return Message{channel: channel, nickname: nickname, text: text}, true
}

// Message is one matched chat line. Immutable.
type Message struct {
	channel  ChannelName
	nickname string
	text     string
}

func (m Message) Channel() ChannelName { return m.channel }
func (m Message) Nickname() string     { return m.nickname }
func (m Message) Text() string         { return m.text }

// String renders the output line format "<channel> | <sender>: <text>".
func (m Message) String() string {
	return fmt.Sprintf("%s | %s: %s", m.channel, m.nickname, m.text)
}
