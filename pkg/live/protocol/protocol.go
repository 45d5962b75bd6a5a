// Package protocol defines the browser-facing WebSocket message contract.
// Every inbound frame is a JSON envelope {type, payload}; outbound frames use
// the same envelope. Decoding is strict: unknown types and missing required
// fields are rejected with a coded error before any session state is touched.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client -> server message types.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeAudioData    = "audio_data"
	TypeVideoFrame   = "video_frame"
	TypeTextMessage  = "text_message"
)

// Server -> client message types.
const (
	TypeSessionStarted = "session_started"
	TypeSessionEnded   = "session_ended"
	TypeAudioResponse  = "audio_response"
	TypeTextResponse   = "text_response"
	TypeToolCall       = "tool_call"
	TypeTurnComplete   = "turn_complete"
	TypeError          = "error"
	TypeStatus         = "status"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// StartSession opens (or resumes) a live session. SessionID and ResumeHandle
// are set by clients reconnecting after a drop; both absent means a fresh
// session.
type StartSession struct {
	SessionID         string `json:"session_id,omitempty"`
	SystemInstruction string `json:"system_instruction,omitempty"`
	ManualContext     *string `json:"manual_context,omitempty"`
	ResumeHandle      string `json:"resume_handle,omitempty"`
}

type EndSession struct{}

// AudioData carries one microphone chunk, base64 PCM.
type AudioData struct {
	DataB64 string `json:"data"`
}

// VideoFrame carries one camera frame, base64 JPEG.
type VideoFrame struct {
	DataB64 string `json:"data"`
}

type TextMessage struct {
	Text string `json:"text"`
}

// Envelope is the outbound wire shape; payload is message-type specific.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

type SessionStarted struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type SessionEnded struct {
	SessionID    string `json:"session_id"`
	Summary      any    `json:"summary,omitempty"`
	ResumeHandle string `json:"resume_handle,omitempty"`
}

type AudioResponse struct {
	DataB64  string `json:"data"`
	MIMEType string `json:"mime_type"`
}

type TextResponse struct {
	Text string `json:"text"`
}

type ToolCallNotice struct {
	Function  string         `json:"function"`
	Arguments map[string]any `json:"arguments"`
}

type TurnComplete struct{}

type ErrorPayload struct {
	Error string `json:"error"`
}

type Status struct {
	Message string `json:"message"`
}

// DecodeClientMessage parses an inbound frame and returns one of the typed
// client messages above.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}
	payload := envelope.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	switch typ {
	case TypeStartSession:
		var msg StartSession
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, badRequest("invalid start_session payload", "payload")
		}
		return msg, nil
	case TypeEndSession:
		return EndSession{}, nil
	case TypeAudioData:
		var msg AudioData
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, badRequest("invalid audio_data payload", "payload")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_data.data is required", "data")
		}
		return msg, nil
	case TypeVideoFrame:
		var msg VideoFrame
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, badRequest("invalid video_frame payload", "payload")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("video_frame.data is required", "data")
		}
		return msg, nil
	case TypeTextMessage:
		var msg TextMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, badRequest("invalid text_message payload", "payload")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}
