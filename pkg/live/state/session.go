// Package state holds per-session conversation state that must survive a
// dropped WebSocket: transcript history, the provider resume handle, the
// pending work-order request awaiting badge verification, and the most recent
// camera frame for evidence capture.
package state

import "sync"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one completed conversational turn. Parts are ordered text
// fragments; audio is never retained.
type Turn struct {
	Role  string
	Parts []string
}

// PendingWorkOrder is a work-order request parked until a badge is verified.
type PendingWorkOrder struct {
	Equipment   string
	Priority    string
	Description string
}

// Session is safe for concurrent use. One live connection drives it at a
// time, but HTTP reads (summaries, transcripts) can race the receive loop.
type Session struct {
	ID string

	mu           sync.Mutex
	history      []Turn
	resumeHandle string
	pending      *PendingWorkOrder
	lastFrame    []byte
}

func NewSession(id string) *Session {
	return &Session{ID: id}
}

// AppendTurn records a completed turn. Empty text is dropped so history never
// accumulates blank entries from audio-only turns.
func (s *Session) AppendTurn(role, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Parts: []string{text}})
}

// History returns a deep copy of the transcript.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	for i, turn := range s.history {
		out[i] = Turn{Role: turn.Role, Parts: append([]string(nil), turn.Parts...)}
	}
	return out
}

func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *Session) SetResumeHandle(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeHandle = handle
}

func (s *Session) ResumeHandle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeHandle
}

func (s *Session) SetPendingWorkOrder(p PendingWorkOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &p
}

// PendingWorkOrder returns the parked request without clearing it; a failed
// badge scan must leave it in place for a retry.
func (s *Session) PendingWorkOrder() (PendingWorkOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingWorkOrder{}, false
	}
	return *s.pending, true
}

func (s *Session) ClearPendingWorkOrder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// SetLastFrame buffers the newest camera frame, replacing any previous one.
func (s *Session) SetLastFrame(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFrame = append([]byte(nil), frame...)
}

func (s *Session) LastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFrame == nil {
		return nil
	}
	return append([]byte(nil), s.lastFrame...)
}
