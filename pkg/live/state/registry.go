package state

import "sync"

// Registry keeps sessions addressable by ID across reconnects and enforces a
// single live connection per session: activating a session that already has a
// live connection cancels the old one first.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	active   map[string]*activation
	seq      uint64
}

type activation struct {
	id     uint64
	cancel func()
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		active:   make(map[string]*activation),
	}
}

// Session returns the session for id, creating it on first use. Reconnects
// land here and pick up the retained history and resume handle.
func (r *Registry) Session(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		sess = NewSession(id)
		r.sessions[id] = sess
	}
	return sess
}

func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Activate marks a session as having a live connection. cancel is invoked,
// outside the lock, if a later connection claims the same session. The
// returned release is idempotent and only clears the registration it made.
func (r *Registry) Activate(sessionID string, cancel func()) (release func()) {
	r.mu.Lock()
	old := r.active[sessionID]
	r.seq++
	entry := &activation{id: r.seq, cancel: cancel}
	r.active[sessionID] = entry
	r.mu.Unlock()

	if old != nil && old.cancel != nil {
		old.cancel()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if current, ok := r.active[sessionID]; ok && current.id == entry.id {
				delete(r.active, sessionID)
			}
			r.mu.Unlock()
		})
	}
}

// Remove drops a session's retained state. Used on explicit session end;
// dropped connections keep their session for rehydration.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
