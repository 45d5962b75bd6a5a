package session

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/SunnyYadav16/field-vision/pkg/live/state"
	"github.com/SunnyYadav16/field-vision/pkg/live/tools"
)

// compressionTriggerTokens starts sliding-window compression well before the
// native-audio model's context limit so long shifts never hit it.
const compressionTriggerTokens = int64(25000)

// GenAIDialer opens Gemini Live streams.
type GenAIDialer struct {
	client *genai.Client
}

func NewGenAIDialer(ctx context.Context, apiKey string) (*GenAIDialer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIDialer{client: client}, nil
}

func (d *GenAIDialer) Dial(ctx context.Context, cfg StreamConfig) (Stream, error) {
	connect := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		ContextWindowCompression: &genai.ContextWindowCompressionConfig{
			SlidingWindow: &genai.SlidingWindow{},
			TriggerTokens: genai.Ptr(compressionTriggerTokens),
		},
		SessionResumption: &genai.SessionResumptionConfig{},
	}
	if cfg.SystemInstruction != "" {
		connect.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.ResumeHandle != "" {
		connect.SessionResumption.Handle = cfg.ResumeHandle
	}
	if len(cfg.Tools) > 0 {
		connect.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(cfg.Tools)}}
	}

	inner, err := d.client.Live.Connect(ctx, cfg.Model, connect)
	if err != nil {
		return nil, fmt.Errorf("dial gemini live: %w", err)
	}
	return &genaiStream{inner: inner}, nil
}

func functionDeclarations(decls []tools.Declaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, decl := range decls {
		properties := make(map[string]*genai.Schema, len(decl.Properties))
		for name, prop := range decl.Properties {
			properties[name] = &genai.Schema{
				Type:        schemaType(prop.Type),
				Description: prop.Description,
				Enum:        prop.Enum,
			}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   decl.Required,
			},
		})
	}
	return out
}

func schemaType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

type genaiStream struct {
	inner *genai.Session
}

func (s *genaiStream) SendRealtime(ctx context.Context, blob Blob) error {
	return s.inner.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: blob.Data, MIMEType: blob.MIMEType},
	})
}

func (s *genaiStream) SendTurns(ctx context.Context, turns []state.Turn, turnComplete bool) error {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, text := range turn.Parts {
			parts = append(parts, &genai.Part{Text: text})
		}
		contents = append(contents, &genai.Content{Role: turn.Role, Parts: parts})
	}
	return s.inner.SendClientContent(genai.LiveClientContentInput{
		Turns:        contents,
		TurnComplete: &turnComplete,
	})
}

func (s *genaiStream) SendToolResponses(ctx context.Context, results []ToolResult) error {
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, result := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       result.ID,
			Name:     result.Name,
			Response: result.Response,
		})
	}
	return s.inner.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
}

// SendHeartbeat sends a minimal no-op input so the provider keeps an
// otherwise quiet stream open.
func (s *genaiStream) SendHeartbeat(ctx context.Context) error {
	return s.inner.SendRealtimeInput(genai.LiveRealtimeInput{Text: " "})
}

func (s *genaiStream) Receive() (ServerEvent, error) {
	msg, err := s.inner.Receive()
	if err != nil {
		return ServerEvent{}, err
	}

	var ev ServerEvent
	if update := msg.SessionResumptionUpdate; update != nil && update.Resumable {
		ev.ResumeHandle = update.NewHandle
	}
	if content := msg.ServerContent; content != nil {
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					ev.TextDelta += part.Text
				}
				if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					ev.Audio = append(ev.Audio, Blob{
						MIMEType: part.InlineData.MIMEType,
						Data:     part.InlineData.Data,
					})
				}
			}
		}
		ev.TurnComplete = content.TurnComplete
		ev.Interrupted = content.Interrupted
	}
	if call := msg.ToolCall; call != nil {
		for _, fc := range call.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.FunctionCalls = append(ev.FunctionCalls, FunctionCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			})
		}
	}
	if msg.GoAway != nil {
		ev.GoAway = true
	}
	return ev, nil
}

func (s *genaiStream) Close() error {
	return s.inner.Close()
}
