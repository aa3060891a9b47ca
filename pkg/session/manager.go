package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/hybridchat/hub/pkg/hub"
	"github.com/hybridchat/hub/pkg/logger"
	"github.com/hybridchat/hub/pkg/reqchannel"
	"github.com/hybridchat/hub/pkg/state"
)

// AgentFactory produces the set of agents a freshly created session starts
// with (spec §4.4 SessionManager.create_session).
type AgentFactory func() []hub.Agent

// Dependencies bundles the collaborators every Session a Manager creates is
// wired with. A nil Registry, Secrets, Permissions or NewSelector disables
// that concern (e.g. a nil NewSelector disables the selection subprocess
// entirely). Requests has no nil check: it is called whenever a
// permission, feedback or confirmation request arises.
type Dependencies struct {
	Registry     hub.AgentRegistry
	Secrets      SecretsProvider
	Permissions  PermissionStore
	Requests     reqchannel.Channel
	NewSelector  func() Selector
	AgentFactory AgentFactory
}

// Manager is the Session Manager: it creates sessions, persists and
// restores their state as one JSON document per session under RootDir, and
// loads other sessions' logs as read-only Threads (spec §4.4).
type Manager struct {
	deps    Dependencies
	rootDir string
	bgCtx   context.Context

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager rooted at rootDir (created lazily on first
// save). bgCtx governs the lifetime of every session's workers; the loops
// started via Sync and SyncCron stop when the ctx passed to them is done.
func NewManager(bgCtx context.Context, rootDir string, deps Dependencies) *Manager {
	return &Manager{
		deps:     deps,
		rootDir:  rootDir,
		bgCtx:    bgCtx,
		sessions: map[string]*Session{},
	}
}

// CreateSession builds a fresh Session with the given id, seeded with the
// agents from factory (or the Manager's default AgentFactory if nil).
func (m *Manager) CreateSession(id string, factory AgentFactory) *Session {
	var selector Selector
	if m.deps.NewSelector != nil {
		selector = m.deps.NewSelector()
	}

	sess := New(m.bgCtx, id, m, m.deps.Registry, m.deps.Secrets, m.deps.Permissions, m.deps.Requests, selector)

	if factory == nil {
		factory = m.deps.AgentFactory
	}
	if factory != nil {
		for _, agent := range factory() {
			sess.AddAgent(agent)
		}
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	return sess
}

// LoadSession restores a previously saved session, or returns (nil, nil) if
// none was ever saved under id (spec §4.4 SessionManager.load_session).
func (m *Manager) LoadSession(ctx context.Context, id string, factory AgentFactory) (*Session, error) {
	if !m.SessionSaved(id) {
		return nil, nil
	}

	sess := m.CreateSession(id, factory)

	doc, err := m.LoadSessionState(id)
	if err != nil {
		return nil, fmt.Errorf("loading session %q: %w", id, err)
	}
	if err := sess.Load(doc); err != nil {
		return nil, fmt.Errorf("restoring session %q: %w", id, err)
	}
	return sess, nil
}

// Get returns a previously created-or-loaded session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *Manager) sessionPath(id string) string {
	return filepath.Join(m.rootDir, id+".json")
}

// SessionSaved reports whether a session document exists on disk for id.
func (m *Manager) SessionSaved(id string) bool {
	return state.Exists(m.sessionPath(id))
}

// SaveSessionState persists doc as id's session document, atomically.
func (m *Manager) SaveSessionState(id string, doc documentState) error {
	return state.SaveAtomic(m.sessionPath(id), doc)
}

// LoadSessionState reads id's persisted session document.
func (m *Manager) LoadSessionState(id string) (documentState, error) {
	var doc documentState
	if err := state.LoadJSON(m.sessionPath(id), &doc); err != nil {
		return documentState{}, err
	}
	return doc, nil
}

// LoadThread loads another session's log as a read-only Thread (spec §6
// `thread:<id>` references).
func (m *Manager) LoadThread(id string) (hub.Thread, error) {
	doc, err := m.LoadSessionState(id)
	if err != nil {
		return hub.Thread{}, err
	}
	return hub.Thread{SessionID: id, Messages: doc.Messages}, nil
}

// LoadThreads loads every session id in ids that has ever been saved,
// silently skipping ids with no saved document (spec §4.4
// SessionManager.load_threads).
func (m *Manager) LoadThreads(ids []string) []hub.Thread {
	threads := make([]hub.Thread, 0, len(ids))
	for _, id := range ids {
		if !m.SessionSaved(id) {
			continue
		}
		thread, err := m.LoadThread(id)
		if err != nil {
			logger.WarnCF("sessionmgr", "failed to load thread", map[string]interface{}{"session_id": id, "error": err.Error()})
			continue
		}
		threads = append(threads, thread)
	}
	return threads
}

func (m *Manager) saveSession(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	doc, err := sess.Save()
	if err != nil {
		logger.ErrorCF("sessionmgr", "failed to build session state", map[string]interface{}{"session_id": id, "error": err.Error()})
		return
	}
	if err := m.SaveSessionState(id, doc); err != nil {
		logger.ErrorCF("sessionmgr", "failed to persist session state", map[string]interface{}{"session_id": id, "error": err.Error()})
	}
}

// Sync starts a background checkpoint loop for session id: an immediate
// save if none exists yet, then a save every interval until ctx is
// cancelled (spec §4.4 Session.sync / SessionManager's periodic
// checkpointing).
func (m *Manager) Sync(ctx context.Context, id string, interval time.Duration) {
	if !m.SessionSaved(id) {
		m.saveSession(id)
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.saveSession(id)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SyncCron starts a background checkpoint loop driven by a cron
// expression (e.g. "*/30 * * * * *" with seconds support) instead of a
// bare interval, using adhocore/gronx's tick evaluation. Ticks are
// evaluated once per second; a tick whose cron expression matches the
// current minute triggers a save.
func (m *Manager) SyncCron(ctx context.Context, id, cronExpr string) error {
	expr := gronx.New()
	if !expr.IsValid(cronExpr) {
		return fmt.Errorf("invalid sync cron expression %q", cronExpr)
	}

	if !m.SessionSaved(id) {
		m.saveSession(id)
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				due, err := expr.IsDue(cronExpr)
				if err != nil {
					logger.WarnCF("sessionmgr", "cron evaluation failed", map[string]interface{}{"error": err.Error()})
					continue
				}
				if due {
					m.saveSession(id)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
