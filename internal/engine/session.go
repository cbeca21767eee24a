package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState is the accumulated working-memory set for one session:
// how often each item surfaced, which were confirmed used, and the
// namespaces involved.
type SessionState struct {
	SessionID  uuid.UUID
	Namespaces []string
	Counts     map[uuid.UUID]int
	Used       map[uuid.UUID]bool
	LastSeen   time.Time
}

// SessionTracker accumulates per-session working-memory usage in process.
// Consolidation drains it at session boundaries.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*SessionState
	now      func() time.Time
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{
		sessions: make(map[uuid.UUID]*SessionState),
		now:      time.Now,
	}
}

// Observe records that the given items surfaced in a retrieval for the
// session. Unknown sessions are created lazily.
func (t *SessionTracker) Observe(sessionID uuid.UUID, namespaces []string, ids []uuid.UUID) {
	if sessionID == uuid.Nil || len(ids) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.sessions[sessionID]
	if st == nil {
		st = &SessionState{
			SessionID: sessionID,
			Counts:    make(map[uuid.UUID]int),
			Used:      make(map[uuid.UUID]bool),
		}
		t.sessions[sessionID] = st
	}
	for _, ns := range namespaces {
		if !contains(st.Namespaces, ns) {
			st.Namespaces = append(st.Namespaces, ns)
		}
	}
	for _, id := range ids {
		st.Counts[id]++
	}
	st.LastSeen = t.now()
}

// MarkUsed flags items confirmed used by an outcome report.
func (t *SessionTracker) MarkUsed(sessionID uuid.UUID, ids []uuid.UUID) {
	if sessionID == uuid.Nil || len(ids) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.sessions[sessionID]
	if st == nil {
		return
	}
	for _, id := range ids {
		st.Used[id] = true
	}
	st.LastSeen = t.now()
}

// Close removes and returns the session's accumulated state, nil if the
// session was never observed.
func (t *SessionTracker) Close(sessionID uuid.UUID) *SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	return st
}

// Idle returns sessions with no activity since the cutoff.
func (t *SessionTracker) Idle(cutoff time.Time) []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []uuid.UUID
	for id, st := range t.sessions {
		if st.LastSeen.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
