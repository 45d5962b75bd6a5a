package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SunnyYadav16/field-vision/pkg/live/state"
	"github.com/SunnyYadav16/field-vision/pkg/live/tools"
)

type EventType string

const (
	EventAudio        EventType = "audio"
	EventText         EventType = "text"
	EventToolCall     EventType = "tool_call"
	EventTurnComplete EventType = "turn_complete"
	EventError        EventType = "error"
)

// Event is one unit of model output delivered to the connection bridge.
type Event struct {
	Type          EventType
	Audio         []byte
	AudioMIMEType string
	Text          string
	ToolName      string
	ToolArgs      map[string]any
	Err           string
}

const (
	inputAudioMIMEType  = "audio/pcm;rate=16000"
	outputAudioMIMEType = "audio/pcm;rate=24000"
	videoFrameMIMEType  = "image/jpeg"
)

// Options configures one Manager. Zero values fall back to the defaults
// below, which match the client capture formats.
type Options struct {
	Logger            *slog.Logger
	Dialer            Dialer
	Tools             *tools.Registry
	Model             string
	SystemInstruction string
	ManualContext     string

	MaxAudioChunkBytes int
	MaxVideoFrameBytes int
	MaxTextChars       int
	TurnIdleTimeout    time.Duration
	HeartbeatInterval  time.Duration
	EventQueueSize     int
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxAudioChunkBytes <= 0 {
		o.MaxAudioChunkBytes = 32 << 10
	}
	if o.MaxVideoFrameBytes <= 0 {
		o.MaxVideoFrameBytes = 512 << 10
	}
	if o.MaxTextChars <= 0 {
		o.MaxTextChars = 4000
	}
	if o.TurnIdleTimeout <= 0 {
		o.TurnIdleTimeout = 2500 * time.Millisecond
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 10 * time.Second
	}
	if o.EventQueueSize <= 0 {
		o.EventQueueSize = 128
	}
}

// Manager owns one live model stream for one session. Input methods are
// silent no-ops while disconnected so callers never have to gate on
// connection state. The receive loop is the only goroutine that touches
// model output; callers consume it through Events.
type Manager struct {
	logger *slog.Logger
	opts   Options
	sess   *state.Session

	events chan Event
	turns  *turnAccumulator

	sendMu sync.Mutex
	stream Stream

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected atomic.Bool
	errOnce   sync.Once
	discOnce  sync.Once
}

func NewManager(sess *state.Session, opts Options) *Manager {
	opts.applyDefaults()
	m := &Manager{
		logger: opts.Logger.With("session_id", sess.ID),
		opts:   opts,
		sess:   sess,
		events: make(chan Event, opts.EventQueueSize),
	}
	m.turns = newTurnAccumulator(opts.TurnIdleTimeout, m.completeTurn)
	return m
}

func (m *Manager) Session() *state.Session { return m.sess }
func (m *Manager) Events() <-chan Event    { return m.events }
func (m *Manager) Connected() bool         { return m.connected.Load() }

// Connect dials the provider, replays retained history, and starts the
// receive and heartbeat loops.
func (m *Manager) Connect(ctx context.Context) error {
	if m.connected.Load() {
		return errors.New("session already connected")
	}

	cfg := StreamConfig{
		Model:             m.opts.Model,
		SystemInstruction: composeInstruction(m.opts.SystemInstruction, m.opts.ManualContext),
		ResumeHandle:      m.sess.ResumeHandle(),
	}
	if m.opts.Tools != nil {
		cfg.Tools = m.opts.Tools.Declarations()
	}

	stream, err := m.opts.Dialer.Dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect live stream: %w", err)
	}
	m.stream = stream
	m.ctx, m.cancel = context.WithCancel(context.Background())

	// Replay the transcript as one batched turn so the model keeps context
	// across reconnects without re-running any tool side effects.
	if history := m.sess.History(); len(history) > 0 {
		if err := stream.SendTurns(m.ctx, history, true); err != nil {
			m.logger.Warn("history replay failed", "turns", len(history), "error", err)
		} else {
			m.logger.Info("history replayed", "turns", len(history))
		}
	}

	m.connected.Store(true)
	m.wg.Add(2)
	go m.receiveLoop()
	go m.heartbeatLoop()

	m.logger.Info("live session connected", "model", m.opts.Model, "resumed", cfg.ResumeHandle != "")
	return nil
}

// Disconnect tears the stream down and waits for the loops to exit. Safe to
// call repeatedly and before Connect.
func (m *Manager) Disconnect() {
	m.discOnce.Do(func() {
		m.connected.Store(false)
		if m.cancel == nil {
			return
		}
		m.cancel()
		if m.stream != nil {
			_ = m.stream.Close()
		}
		m.wg.Wait()
		m.turns.stop()
		m.logger.Info("live session disconnected", "history_turns", m.sess.HistoryLen())
	})
}

// SendAudio forwards one microphone chunk. Oversized chunks are truncated to
// the limit rather than dropped so speech keeps flowing.
func (m *Manager) SendAudio(data []byte) {
	if len(data) == 0 || !m.connected.Load() {
		return
	}
	if len(data) > m.opts.MaxAudioChunkBytes {
		m.logger.Warn("audio chunk truncated", "bytes", len(data), "max", m.opts.MaxAudioChunkBytes)
		data = data[:m.opts.MaxAudioChunkBytes]
	}
	if err := m.sendRealtime(Blob{MIMEType: inputAudioMIMEType, Data: data}); err != nil {
		m.logger.Warn("audio send failed", "error", err)
	}
}

// SendVideoFrame buffers the frame for evidence capture and forwards it.
// Oversized frames are rejected outright: a partial JPEG is useless.
func (m *Manager) SendVideoFrame(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(data) > m.opts.MaxVideoFrameBytes {
		m.logger.Warn("video frame dropped", "bytes", len(data), "max", m.opts.MaxVideoFrameBytes)
		return
	}
	m.sess.SetLastFrame(data)
	if !m.connected.Load() {
		return
	}
	if err := m.sendRealtime(Blob{MIMEType: videoFrameMIMEType, Data: data}); err != nil {
		m.logger.Warn("video frame send failed", "error", err)
	}
}

// SendText forwards a typed message as a complete user turn and records it in
// the transcript.
func (m *Manager) SendText(text string) {
	text = strings.TrimSpace(text)
	if text == "" || !m.connected.Load() {
		return
	}
	if runes := []rune(text); len(runes) > m.opts.MaxTextChars {
		m.logger.Warn("text message truncated", "chars", len(runes), "max", m.opts.MaxTextChars)
		text = string(runes[:m.opts.MaxTextChars])
	}
	m.sess.AppendTurn(state.RoleUser, text)

	turn := state.Turn{Role: state.RoleUser, Parts: []string{text}}
	m.sendMu.Lock()
	err := m.stream.SendTurns(m.ctx, []state.Turn{turn}, true)
	m.sendMu.Unlock()
	if err != nil {
		m.logger.Warn("text send failed", "error", err)
	}
}

func (m *Manager) sendRealtime(blob Blob) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return m.stream.SendRealtime(m.ctx, blob)
}

func (m *Manager) receiveLoop() {
	defer m.wg.Done()
	for {
		ev, err := m.stream.Receive()
		if err != nil {
			m.connected.Store(false)
			if m.ctx.Err() != nil {
				return
			}
			// Preserve whatever the model said before the stream died.
			m.turns.finalize()
			if errors.Is(err, io.EOF) {
				m.logger.Info("live stream ended by provider")
				m.emitError("live stream ended")
			} else {
				m.logger.Error("live stream receive failed", "error", err)
				m.emitError("live session error: " + err.Error())
			}
			return
		}
		m.handleServerEvent(ev)
	}
}

func (m *Manager) handleServerEvent(ev ServerEvent) {
	if ev.ResumeHandle != "" {
		m.sess.SetResumeHandle(ev.ResumeHandle)
		m.logger.Debug("resume handle refreshed")
	}
	if ev.GoAway {
		m.logger.Warn("provider going away, reconnect advised")
	}

	for _, blob := range ev.Audio {
		m.turns.observe("")
		mime := blob.MIMEType
		if mime == "" {
			mime = outputAudioMIMEType
		}
		m.emit(Event{Type: EventAudio, Audio: blob.Data, AudioMIMEType: mime})
	}
	if ev.TextDelta != "" {
		m.turns.observe(ev.TextDelta)
		m.emit(Event{Type: EventText, Text: ev.TextDelta})
	}
	if len(ev.FunctionCalls) > 0 {
		m.handleFunctionCalls(ev.FunctionCalls)
	}
	// Interruption cuts the model off mid-turn; both cases close the turn.
	if ev.TurnComplete || ev.Interrupted {
		m.turns.finalize()
	}
}

func (m *Manager) handleFunctionCalls(calls []FunctionCall) {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		m.emit(Event{Type: EventToolCall, ToolName: call.Name, ToolArgs: call.Args})
		var response map[string]any
		if m.opts.Tools != nil {
			response = m.opts.Tools.Dispatch(m.ctx, m.sess, call.Name, call.Args)
		} else {
			response = map[string]any{"status": "error", "message": "no tools available"}
		}
		results = append(results, ToolResult{ID: call.ID, Name: call.Name, Response: response})
	}

	m.sendMu.Lock()
	err := m.stream.SendToolResponses(m.ctx, results)
	m.sendMu.Unlock()
	if err != nil {
		m.logger.Error("tool response send failed", "calls", len(results), "error", err)
	}
}

// completeTurn is the accumulator callback: commit the turn's text to history
// and tell the client the model finished speaking.
func (m *Manager) completeTurn(text string) {
	m.sess.AppendTurn(state.RoleModel, text)
	m.emit(Event{Type: EventTurnComplete})
}

func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}
			m.sendMu.Lock()
			err := m.stream.SendHeartbeat(m.ctx)
			m.sendMu.Unlock()
			if err != nil {
				m.logger.Debug("heartbeat failed", "error", err)
			}
		}
	}
}

// emit delivers an event to the bridge. Audio is droppable under
// backpressure; everything else blocks until the bridge catches up or the
// session shuts down.
func (m *Manager) emit(ev Event) {
	if ev.Type == EventAudio {
		select {
		case m.events <- ev:
		default:
			m.logger.Warn("event queue full, audio dropped")
		}
		return
	}
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

func (m *Manager) emitError(message string) {
	m.errOnce.Do(func() {
		m.emit(Event{Type: EventError, Err: message})
	})
}
