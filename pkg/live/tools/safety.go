package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SunnyYadav16/field-vision/pkg/audit"
	"github.com/SunnyYadav16/field-vision/pkg/live/state"
)

// evidenceSeverityFloor is the severity at or above which a buffered camera
// frame is persisted alongside the event.
const evidenceSeverityFloor = 3

// SafetyEventTool records hazards the model observes into the audit trail,
// capturing the latest camera frame as evidence for serious events.
type SafetyEventTool struct {
	logger   *slog.Logger
	trail    *audit.Trail
	evidence *EvidenceStore
}

func NewSafetyEventTool(logger *slog.Logger, trail *audit.Trail, evidence *EvidenceStore) *SafetyEventTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &SafetyEventTool{logger: logger, trail: trail, evidence: evidence}
}

func (t *SafetyEventTool) Name() string { return "log_safety_event" }

func (t *SafetyEventTool) Declaration() Declaration {
	return Declaration{
		Name:        "log_safety_event",
		Description: "Log a safety observation to the audit trail. Use for hazards, PPE violations, unsafe conditions, or verified safe completion of a step.",
		Properties: map[string]Property{
			"event_type": {
				Type:        "string",
				Description: "Category of the event",
				Enum:        []string{"hazard_detected", "missing_ppe", "unsafe_condition", "step_verified", "equipment_fault", "other"},
			},
			"severity": {
				Type:        "integer",
				Description: "Severity from 1 (informational) to 5 (critical, stop work)",
			},
			"description": {
				Type:        "string",
				Description: "What was observed, in one or two sentences",
			},
		},
		Required: []string{"event_type", "severity", "description"},
	}
}

func (t *SafetyEventTool) Execute(ctx context.Context, sess *state.Session, args map[string]any) Result {
	eventType := stringArg(args, "event_type", "other")
	severity := audit.ClampSeverity(intArg(args, "severity", audit.SeverityMin))
	description := stringArg(args, "description", "")

	evidenceURL := ""
	if severity >= evidenceSeverityFloor && t.evidence != nil {
		if frame := sess.LastFrame(); len(frame) > 0 {
			url, err := t.evidence.Save(sess.ID, frame)
			if err != nil {
				t.logger.Error("evidence capture failed", "session_id", sess.ID, "error", err)
			} else {
				evidenceURL = url
			}
		}
	}

	var metadata map[string]any
	if evidenceURL != "" {
		metadata = map[string]any{"evidence_url": evidenceURL}
	}
	if _, err := t.trail.Record(ctx, sess.ID, eventType, severity, description, audit.SourceAI, metadata); err != nil {
		// The conversation must not stall on audit storage.
		t.logger.Error("safety event not persisted", "session_id", sess.ID, "event_type", eventType, "error", err)
	}

	return Result{
		"status":            "logged",
		"event_type":        eventType,
		"severity":          severity,
		"evidence_captured": evidenceURL != "",
		"message":           fmt.Sprintf("Safety event '%s' logged successfully", eventType),
	}
}
