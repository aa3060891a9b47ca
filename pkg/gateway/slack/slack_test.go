package slack

import "testing"

func TestResolveUserNameCacheHit(t *testing.T) {
	g := &Gateway{}
	g.userNames.Store("U123", "alice")

	if got := g.resolveUserName("U123"); got != "alice" {
		t.Errorf("resolveUserName(cached) = %q, want %q", got, "alice")
	}
}
