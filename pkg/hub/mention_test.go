package hub

import (
	"reflect"
	"testing"
)

func TestExtractInitialMention(t *testing.T) {
	cases := []struct {
		text     string
		wantName string
		wantRest string
	}{
		{"", "", ""},
		{"hello there", "", "hello there"},
		{"@alice can you help", "alice", "can you help"},
		{"<@U123> look at this", "U123", "look at this"},
		{"@alice", "alice", ""},
		{"  @alice hi", "alice", "hi"},
		{"not @alice addressed", "", "not @alice addressed"},
	}

	for _, c := range cases {
		name, rest := ExtractInitialMention(c.text)
		if name != c.wantName || rest != c.wantRest {
			t.Errorf("ExtractInitialMention(%q) = (%q, %q), want (%q, %q)", c.text, name, rest, c.wantName, c.wantRest)
		}
	}
}

func TestExtractThreadReferences(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"no references here", nil},
		{"see thread:abc-123 for context", []string{"abc-123"}},
		{"thread:a and thread:b", []string{"a", "b"}},
		{"THREAD:not-matched", nil},
	}

	for _, c := range cases {
		got := ExtractThreadReferences(c.text)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ExtractThreadReferences(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestReplaceAllMentions(t *testing.T) {
	resolve := func(id string) string {
		if id == "U1" {
			return "alice"
		}
		return id
	}

	cases := []struct {
		text string
		want string
	}{
		{"", ""},
		{"hello <@U1>, meet @bob", "hello alice, meet bob"},
		{"no mentions", "no mentions"},
	}

	for _, c := range cases {
		got := ReplaceAllMentions(c.text, resolve)
		if got != c.want {
			t.Errorf("ReplaceAllMentions(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}
