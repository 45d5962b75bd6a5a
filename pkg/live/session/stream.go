// Package session multiplexes audio, video, and text from one client into a
// single bidirectional model stream, accumulates model output into turns, and
// routes function calls through the tool registry.
package session

import (
	"context"

	"github.com/SunnyYadav16/field-vision/pkg/live/state"
	"github.com/SunnyYadav16/field-vision/pkg/live/tools"
)

// Blob is one chunk of binary media with its MIME type.
type Blob struct {
	MIMEType string
	Data     []byte
}

// FunctionCall is one tool invocation requested by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the response sent back for one function call; ID must match
// the call it answers.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// ServerEvent is one decoded message from the provider stream. Fields are
// combined: a single message can carry text, audio, and a turn boundary.
type ServerEvent struct {
	TextDelta     string
	Audio         []Blob
	TurnComplete  bool
	Interrupted   bool
	FunctionCalls []FunctionCall
	ResumeHandle  string
	GoAway        bool
}

// StreamConfig is everything needed to open one provider stream.
type StreamConfig struct {
	Model             string
	SystemInstruction string
	ManualContext     string
	ResumeHandle      string
	Tools             []tools.Declaration
}

// Stream is one open bidirectional model connection. Receive blocks until the
// next server message; all methods may be called from different goroutines.
type Stream interface {
	SendRealtime(ctx context.Context, blob Blob) error
	SendTurns(ctx context.Context, turns []state.Turn, turnComplete bool) error
	SendToolResponses(ctx context.Context, results []ToolResult) error
	SendHeartbeat(ctx context.Context) error
	Receive() (ServerEvent, error)
	Close() error
}

// Dialer opens provider streams. The live implementation talks to the Gemini
// Live API; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, cfg StreamConfig) (Stream, error)
}
