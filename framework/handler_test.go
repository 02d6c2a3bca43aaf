package framework

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		prefix, content string
		name, args      string
		ok              bool
	}{
		{"!", "!play never gonna give you up", "play", "never gonna give you up", true},
		{"!", "  !p   lofi beats  ", "play", "lofi beats", true},
		{"!", "!DC", "leave", "", true},
		{"!", "!play\nsong on a new line", "play", "song on a new line", true},
		{"!", "!s", "skip", "", true},
		{"!", "!q", "queue", "", true},
		{"!", "!np", "nowplaying", "", true},
		{"!", "!dance", "dance", "", true},
		{"!", "hello !play x", "", "", false},
		{"!", "!", "", "", false},
		{"!", "! play", "", "", false},
		{"?", "!play x", "", "", false},
		{"mb ", "mb play x", "play", "x", true},
	}
	for _, tt := range tests {
		name, args, ok := parseCommand(tt.prefix, tt.content)
		if name != tt.name || args != tt.args || ok != tt.ok {
			t.Errorf("parseCommand(%q, %q) = %q, %q, %v; want %q, %q, %v",
				tt.prefix, tt.content, name, args, ok, tt.name, tt.args, tt.ok)
		}
	}
}

func TestHelpText(t *testing.T) {
	all := helpText("!", "")
	for _, u := range helpTopics {
		if !strings.Contains(all, "`!"+u.name+"`") {
			t.Errorf("help is missing %s:\n%s", u.name, all)
		}
	}

	if got := helpText("!", "p"); got != "`!play <URL or search query>` - Plays a song or adds to queue. Alias: p" {
		t.Errorf("help p = %q", got)
	}
	if got := helpText("!", "!skip"); !strings.HasPrefix(got, "`!skip` - ") {
		t.Errorf("help !skip = %q", got)
	}
	if got := helpText("!", "dance"); !strings.Contains(got, "No command called `dance`") {
		t.Errorf("help dance = %q", got)
	}
}
