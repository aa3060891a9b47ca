package permission

import (
	"testing"

	"github.com/hybridchat/hub/pkg/hub"
)

func TestGetPermissionMissingReturnsFalse(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok := s.GetPermission("tool", "alice", "sess-1"); ok {
		t.Errorf("expected no permission recorded yet")
	}
}

func TestSetPermissionDenyAndOnceAreNotPersisted(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.SetPermission("tool", "alice", "sess-1", hub.PermissionDeny); err != nil {
		t.Fatalf("SetPermission(Deny): %v", err)
	}
	if err := s.SetPermission("tool", "alice", "sess-1", hub.PermissionOnce); err != nil {
		t.Fatalf("SetPermission(Once): %v", err)
	}

	if _, ok := s.GetPermission("tool", "alice", "sess-1"); ok {
		t.Errorf("Deny/Once should never be recalled on a later lookup")
	}
}

func TestSetPermissionSessionScoped(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.SetPermission("tool", "alice", "sess-1", hub.PermissionSession); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	level, ok := s.GetPermission("tool", "alice", "sess-1")
	if !ok || level != hub.PermissionSession {
		t.Errorf("GetPermission in sess-1 = (%v, %v), want (Session, true)", level, ok)
	}

	if _, ok := s.GetPermission("tool", "alice", "sess-2"); ok {
		t.Errorf("session-scoped grant should not apply to a different session")
	}
}

func TestSetPermissionAlwaysSupersedesSession(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.SetPermission("tool", "alice", "sess-1", hub.PermissionSession); err != nil {
		t.Fatalf("SetPermission(Session): %v", err)
	}
	if err := s.SetPermission("tool", "alice", "sess-1", hub.PermissionAlways); err != nil {
		t.Fatalf("SetPermission(Always): %v", err)
	}

	level, ok := s.GetPermission("tool", "alice", "sess-2")
	if !ok || level != hub.PermissionAlways {
		t.Errorf("GetPermission in an unrelated session = (%v, %v), want (Always, true)", level, ok)
	}
}

func TestNewReloadsPersistedEntries(t *testing.T) {
	dir := t.TempDir()

	s1, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.SetPermission("tool", "alice", "sess-1", hub.PermissionAlways); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen New: %v", err)
	}

	level, ok := s2.GetPermission("tool", "alice", "sess-1")
	if !ok || level != hub.PermissionAlways {
		t.Errorf("reopened store GetPermission = (%v, %v), want (Always, true)", level, ok)
	}
}
