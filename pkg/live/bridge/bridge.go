// Package bridge connects one browser WebSocket to one live session: it
// decodes client frames into session input, forwards session events back as
// protocol messages, and keeps the audit trail informed of session
// boundaries.
package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/SunnyYadav16/field-vision/pkg/audit"
	"github.com/SunnyYadav16/field-vision/pkg/auth"
	"github.com/SunnyYadav16/field-vision/pkg/live/protocol"
	"github.com/SunnyYadav16/field-vision/pkg/live/session"
	"github.com/SunnyYadav16/field-vision/pkg/live/state"
	"github.com/SunnyYadav16/field-vision/pkg/live/tools"
	"github.com/SunnyYadav16/field-vision/pkg/manuals"
)

// Options carries the per-session tunables the bridge hands to each Manager
// plus its own socket timings.
type Options struct {
	Model             string
	SystemInstruction string
	ManualContext     string

	MaxAudioChunkBytes int
	MaxVideoFrameBytes int
	MaxTextChars       int
	TurnIdleTimeout    time.Duration
	HeartbeatInterval  time.Duration

	PingInterval time.Duration
	WriteTimeout time.Duration
	QueueSize    int
}

func (o *Options) applyDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 20 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 128
	}
}

type Bridge struct {
	logger   *slog.Logger
	sessions *state.Registry
	tools    *tools.Registry
	dialer   session.Dialer
	trail    *audit.Trail
	opts     Options
}

func New(logger *slog.Logger, sessions *state.Registry, toolRegistry *tools.Registry, dialer session.Dialer, trail *audit.Trail, opts Options) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	return &Bridge{
		logger:   logger,
		sessions: sessions,
		tools:    toolRegistry,
		dialer:   dialer,
		trail:    trail,
		opts:     opts,
	}
}

// HandleConnection owns conn until the client goes away. The caller has
// already authenticated the upgrade; claims identify the operator.
func (b *Bridge) HandleConnection(conn *websocket.Conn, claims *auth.Claims) {
	c := &clientConn{
		bridge:   b,
		conn:     conn,
		claims:   claims,
		connID:   uuid.NewString(),
		outbound: make(chan []byte, b.opts.QueueSize),
		done:     make(chan struct{}),
	}
	c.logger = b.logger.With("connection_id", c.connID)
	c.run()
}

type clientConn struct {
	bridge *Bridge
	logger *slog.Logger
	conn   *websocket.Conn
	claims *auth.Claims
	connID string

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	manager   *session.Manager
	release   func()
	sessionID string
}

func (c *clientConn) run() {
	c.logger.Info("client connected", "user_id", c.userID())
	go c.writeLoop()
	defer c.shutdown()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("client read failed", "error", err)
			}
			return
		}
		msg, err := protocol.DecodeClientMessage(raw)
		if err != nil {
			c.sendError(err.Error())
			continue
		}
		switch m := msg.(type) {
		case protocol.StartSession:
			c.handleStart(m)
		case protocol.EndSession:
			c.handleEnd()
		case protocol.AudioData:
			if mgr := c.currentManager(); mgr != nil {
				if data, ok := c.decodeB64(m.DataB64, "audio_data"); ok {
					mgr.SendAudio(data)
				}
			}
		case protocol.VideoFrame:
			if mgr := c.currentManager(); mgr != nil {
				if data, ok := c.decodeB64(m.DataB64, "video_frame"); ok {
					mgr.SendVideoFrame(data)
				}
			}
		case protocol.TextMessage:
			if mgr := c.currentManager(); mgr != nil {
				mgr.SendText(m.Text)
			}
		}
	}
}

func (c *clientConn) handleStart(msg protocol.StartSession) {
	c.mu.Lock()
	already := c.manager != nil
	c.mu.Unlock()
	if already {
		c.sendError("session already started")
		return
	}

	manual := c.bridge.opts.ManualContext
	if msg.ManualContext != nil {
		if err := manuals.Validate(*msg.ManualContext); err != nil {
			c.sendError("manual context rejected: " + err.Error())
			return
		}
		manual = *msg.ManualContext
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := c.bridge.sessions.Session(sessionID)
	if msg.ResumeHandle != "" && sess.ResumeHandle() == "" {
		sess.SetResumeHandle(msg.ResumeHandle)
	}

	opts := session.Options{
		Logger:             c.bridge.logger,
		Dialer:             c.bridge.dialer,
		Tools:              c.bridge.tools,
		Model:              c.bridge.opts.Model,
		SystemInstruction:  c.bridge.opts.SystemInstruction,
		ManualContext:      manual,
		MaxAudioChunkBytes: c.bridge.opts.MaxAudioChunkBytes,
		MaxVideoFrameBytes: c.bridge.opts.MaxVideoFrameBytes,
		MaxTextChars:       c.bridge.opts.MaxTextChars,
		TurnIdleTimeout:    c.bridge.opts.TurnIdleTimeout,
		HeartbeatInterval:  c.bridge.opts.HeartbeatInterval,
	}
	if msg.SystemInstruction != "" {
		opts.SystemInstruction = msg.SystemInstruction
	}

	mgr := session.NewManager(sess, opts)
	// The dial context must outlive the handshake: provider streams stay
	// bound to it for their whole lifetime.
	if err := mgr.Connect(context.Background()); err != nil {
		c.logger.Error("session connect failed", "session_id", sessionID, "error", err)
		c.sendError("could not start live session")
		return
	}

	// Claiming the session kicks any previous connection still attached.
	release := c.bridge.sessions.Activate(sessionID, c.shutdown)

	c.mu.Lock()
	c.manager = mgr
	c.release = release
	c.sessionID = sessionID
	c.mu.Unlock()

	go c.forwardEvents(mgr)

	if c.bridge.trail != nil {
		_, err := c.bridge.trail.Record(context.Background(), sessionID, "session_started", 1,
			"live session started", audit.SourceSystem, map[string]any{"connection_id": c.connID, "user_id": c.userID()})
		if err != nil {
			c.logger.Warn("session start not audited", "error", err)
		}
	}

	c.send(protocol.TypeSessionStarted, protocol.SessionStarted{
		SessionID: sessionID,
		Message:   "FieldVision session active",
	})
	if turns := sess.HistoryLen(); turns > 0 {
		c.send(protocol.TypeStatus, protocol.Status{
			Message: fmt.Sprintf("restored %d prior turns", turns),
		})
	}
	c.logger.Info("session started", "session_id", sessionID, "resumed", msg.SessionID != "")
}

func (c *clientConn) handleEnd() {
	c.mu.Lock()
	mgr := c.manager
	release := c.release
	sessionID := c.sessionID
	c.manager = nil
	c.release = nil
	c.mu.Unlock()

	if mgr == nil {
		c.sendError("no active session")
		return
	}
	mgr.Disconnect()
	if release != nil {
		release()
	}

	var summary any
	if c.bridge.trail != nil {
		if _, err := c.bridge.trail.Record(context.Background(), sessionID, "session_ended", 1,
			"live session ended", audit.SourceSystem, map[string]any{"connection_id": c.connID}); err != nil {
			c.logger.Warn("session end not audited", "error", err)
		}
		if s, err := c.bridge.trail.SessionSummary(context.Background(), sessionID); err == nil {
			summary = s
		}
	}

	c.send(protocol.TypeSessionEnded, protocol.SessionEnded{
		SessionID:    sessionID,
		Summary:      summary,
		ResumeHandle: mgr.Session().ResumeHandle(),
	})

	// Explicit end destroys retained state; only dropped connections leave
	// the session behind for rehydration.
	c.bridge.sessions.Remove(sessionID)
	c.logger.Info("session ended", "session_id", sessionID)
}

// forwardEvents translates session output into protocol frames until the
// connection closes.
func (c *clientConn) forwardEvents(mgr *session.Manager) {
	for {
		select {
		case <-c.done:
			return
		case ev := <-mgr.Events():
			switch ev.Type {
			case session.EventAudio:
				c.send(protocol.TypeAudioResponse, protocol.AudioResponse{
					DataB64:  base64.StdEncoding.EncodeToString(ev.Audio),
					MIMEType: ev.AudioMIMEType,
				})
			case session.EventText:
				c.send(protocol.TypeTextResponse, protocol.TextResponse{Text: ev.Text})
			case session.EventToolCall:
				c.send(protocol.TypeToolCall, protocol.ToolCallNotice{
					Function:  ev.ToolName,
					Arguments: ev.ToolArgs,
				})
			case session.EventTurnComplete:
				c.send(protocol.TypeTurnComplete, protocol.TurnComplete{})
			case session.EventError:
				c.sendError(ev.Err)
			}
		}
	}
}

func (c *clientConn) writeLoop() {
	ticker := time.NewTicker(c.bridge.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbound:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.bridge.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("client write failed", "error", err)
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.bridge.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

func (c *clientConn) send(msgType string, payload any) {
	frame, err := protocol.Envelope{Type: msgType, Payload: payload}.Encode()
	if err != nil {
		c.logger.Error("frame encode failed", "type", msgType, "error", err)
		return
	}
	if msgType == protocol.TypeAudioResponse {
		// Audio is droppable; a stalled client must not back up the session.
		select {
		case c.outbound <- frame:
		case <-c.done:
		default:
			c.logger.Warn("outbound queue full, audio frame dropped")
		}
		return
	}
	select {
	case c.outbound <- frame:
	case <-c.done:
	}
}

func (c *clientConn) sendError(message string) {
	c.send(protocol.TypeError, protocol.ErrorPayload{Error: message})
}

func (c *clientConn) decodeB64(data, field string) ([]byte, bool) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		c.sendError("invalid base64 in " + field)
		return nil, false
	}
	return raw, true
}

func (c *clientConn) currentManager() *session.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manager
}

func (c *clientConn) userID() string {
	if c.claims == nil {
		return ""
	}
	return c.claims.UserID
}

// shutdown tears the connection down once: disconnect the session, free the
// registry slot, close the socket. The session entity itself survives for
// reconnection.
func (c *clientConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		mgr := c.manager
		release := c.release
		c.manager = nil
		c.release = nil
		c.mu.Unlock()
		if mgr != nil {
			mgr.Disconnect()
		}
		if release != nil {
			release()
		}
		_ = c.conn.Close()
		c.logger.Info("client disconnected")
	})
}
