package session

import (
	"strings"
	"sync"
	"time"
)

// turnAccumulator collects streamed model output into one conversational
// turn. A turn closes on the provider's explicit completion signal, or after
// idleTimeout with no new fragments when that signal never arrives. The
// completion callback fires exactly once per turn regardless of which path
// closes it, or whether both do.
type turnAccumulator struct {
	idleTimeout time.Duration
	onComplete  func(text string)

	mu         sync.Mutex
	inProgress bool
	parts      []string
	idle       *time.Timer
}

func newTurnAccumulator(idleTimeout time.Duration, onComplete func(string)) *turnAccumulator {
	return &turnAccumulator{idleTimeout: idleTimeout, onComplete: onComplete}
}

// observe records one output fragment and pushes the idle deadline out. Audio
// fragments call this with empty text: they keep the turn alive but add
// nothing to the transcript.
func (a *turnAccumulator) observe(text string) {
	a.mu.Lock()
	a.inProgress = true
	if text != "" {
		a.parts = append(a.parts, text)
	}
	if a.idle != nil {
		a.idle.Stop()
	}
	a.idle = time.AfterFunc(a.idleTimeout, a.finalize)
	a.mu.Unlock()
}

// finalize closes the in-progress turn. Safe to call with no turn open.
func (a *turnAccumulator) finalize() {
	a.mu.Lock()
	if !a.inProgress {
		a.mu.Unlock()
		return
	}
	a.inProgress = false
	if a.idle != nil {
		a.idle.Stop()
		a.idle = nil
	}
	text := strings.Join(a.parts, "")
	a.parts = nil
	callback := a.onComplete
	a.mu.Unlock()

	if callback != nil {
		callback(text)
	}
}

// stop discards any open turn without firing the callback.
func (a *turnAccumulator) stop() {
	a.mu.Lock()
	if a.idle != nil {
		a.idle.Stop()
		a.idle = nil
	}
	a.inProgress = false
	a.parts = nil
	a.mu.Unlock()
}
