package tools

import (
	"context"
	"log/slog"

	"github.com/SunnyYadav16/field-vision/pkg/live/state"
	"github.com/SunnyYadav16/field-vision/pkg/workorders"
)

// WorkOrderTool parks a work-order request on the session. No order is
// created yet: the request stays pending until verify_badge resolves it.
type WorkOrderTool struct {
	logger *slog.Logger
}

func NewWorkOrderTool(logger *slog.Logger) *WorkOrderTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkOrderTool{logger: logger}
}

func (t *WorkOrderTool) Name() string { return "create_work_order" }

func (t *WorkOrderTool) Declaration() Declaration {
	return Declaration{
		Name:        "create_work_order",
		Description: "Start a maintenance work order request. Always follow up by asking the technician to hold their badge up to the camera, then call verify_badge.",
		Properties: map[string]Property{
			"equipment_id": {
				Type:        "string",
				Description: "Identifier of the equipment needing work",
			},
			"priority": {
				Type:        "string",
				Description: "Urgency of the work",
				Enum:        []string{"low", "medium", "high", "critical"},
			},
			"description": {
				Type:        "string",
				Description: "What work is needed",
			},
		},
		Required: []string{"equipment_id", "description"},
	}
}

func (t *WorkOrderTool) Execute(ctx context.Context, sess *state.Session, args map[string]any) Result {
	pending := state.PendingWorkOrder{
		Equipment:   stringArg(args, "equipment_id", "unknown"),
		Priority:    workorders.NormalizePriority(stringArg(args, "priority", "")),
		Description: stringArg(args, "description", ""),
	}
	sess.SetPendingWorkOrder(pending)
	t.logger.Info("work order parked for badge verification",
		"session_id", sess.ID, "equipment", pending.Equipment, "priority", pending.Priority)

	return Result{
		"status":  "badge_verification_required",
		"message": "Work order request received. Ask the technician to hold their employee badge up to the camera so it can be verified.",
	}
}
