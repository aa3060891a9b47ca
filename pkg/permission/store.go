// Package permission implements the hub's Permission Store: a persisted
// (tool, user, session?) -> remembered permission decision map, grounded on
// the original hygroup/user/default/permission.py TinyDB store and adapted
// to this repo's plain atomic-JSON-file idiom (pkg/state).
package permission

import (
	"path/filepath"
	"sync"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/state"
)

// entry is a single persisted permission row. SessionID is nil for the
// permanent (Always) scope.
type entry struct {
	ToolName  string             `json:"tool_name"`
	Username  string             `json:"username"`
	SessionID *string            `json:"session_id"`
	Level     hub.PermissionLevel `json:"permission"`
}

// Store is a TinyDB-free, file-backed Permission Store: a flat JSON array
// on disk, fully loaded in memory and guarded by a mutex, matching the
// scale this hub runs at (spec §5: single process, no multi-node).
type Store struct {
	mu      sync.Mutex
	path    string
	entries []entry
}

// New loads (or initializes) a Store backed by dataDir/permissions.json.
func New(dataDir string) (*Store, error) {
	s := &Store{path: filepath.Join(dataDir, "permissions.json")}
	if state.Exists(s.path) {
		if err := state.LoadJSON(s.path, &s.entries); err != nil {
			logger.WarnCF("permission", "failed to load permission store, starting empty", map[string]interface{}{"error": err.Error()})
			s.entries = nil
		}
	}
	return s, nil
}

// GetPermission implements spec §4.5's lookup: the permanent entry for
// (tool, user) wins over the session-scoped entry; absent both, it returns
// (0, false).
func (s *Store) GetPermission(toolName, username, sessionID string) (hub.PermissionLevel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ToolName == toolName && e.Username == username && e.SessionID == nil {
			return e.Level, true
		}
	}
	for _, e := range s.entries {
		if e.ToolName == toolName && e.Username == username && e.SessionID != nil && *e.SessionID == sessionID {
			return e.Level, true
		}
	}
	return 0, false
}

// SetPermission implements spec §4.5's update rule. Levels Deny/Once are a
// no-op (never persisted, never shadow an existing decision). Level Always
// removes every existing row for (tool, user) before inserting the
// permanent one, so at most one row survives per (tool, user). Level
// Session upserts on (tool, user, session).
func (s *Store) SetPermission(toolName, username, sessionID string, level hub.PermissionLevel) error {
	if level != hub.PermissionSession && level != hub.PermissionAlways {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch level {
	case hub.PermissionAlways:
		filtered := s.entries[:0]
		for _, e := range s.entries {
			if e.ToolName == toolName && e.Username == username {
				continue
			}
			filtered = append(filtered, e)
		}
		s.entries = append(filtered, entry{ToolName: toolName, Username: username, SessionID: nil, Level: level})
	case hub.PermissionSession:
		sid := sessionID
		updated := false
		for i, e := range s.entries {
			if e.ToolName == toolName && e.Username == username && e.SessionID != nil && *e.SessionID == sid {
				s.entries[i].Level = level
				updated = true
				break
			}
		}
		if !updated {
			s.entries = append(s.entries, entry{ToolName: toolName, Username: username, SessionID: &sid, Level: level})
		}
	}

	return state.SaveAtomic(s.path, s.entries)
}
