package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SunnyYadav16/field-vision/pkg/auth"
	"github.com/SunnyYadav16/field-vision/pkg/live/state"
	"github.com/SunnyYadav16/field-vision/pkg/workorders"
)

// DefaultEscalationSupervisor receives escalated orders when the badge holder
// lacks work-order permission.
const DefaultEscalationSupervisor = "sup_007"

// BadgeTool resolves a pending work-order request from a badge read off the
// camera. Outcomes: badge unknown (request stays pending for a retry), badge
// authorized (order created approved), or badge valid without permission
// (order created pending supervisor approval).
type BadgeTool struct {
	logger     *slog.Logger
	directory  *auth.Directory
	orders     *workorders.Store
	escalateTo string
}

func NewBadgeTool(logger *slog.Logger, directory *auth.Directory, orders *workorders.Store) *BadgeTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgeTool{logger: logger, directory: directory, orders: orders, escalateTo: DefaultEscalationSupervisor}
}

func (t *BadgeTool) Name() string { return "verify_badge" }

func (t *BadgeTool) Declaration() Declaration {
	return Declaration{
		Name:        "verify_badge",
		Description: "Verify an employee badge read from the camera to authorize the pending work order. Call only after reading the name and ID printed on the badge.",
		Properties: map[string]Property{
			"employee_name": {
				Type:        "string",
				Description: "Name printed on the badge",
			},
			"employee_id": {
				Type:        "string",
				Description: "Employee ID printed on the badge",
			},
			"department": {
				Type:        "string",
				Description: "Department printed on the badge, if visible",
			},
		},
		Required: []string{"employee_name", "employee_id"},
	}
}

func (t *BadgeTool) Execute(ctx context.Context, sess *state.Session, args map[string]any) Result {
	employeeID := stringArg(args, "employee_id", "")
	employeeName := stringArg(args, "employee_name", "")

	pending, ok := sess.PendingWorkOrder()
	if !ok {
		return Result{
			"status":  "no_pending_request",
			"message": "There is no work order request waiting for verification. Ask the technician what work is needed first.",
		}
	}

	user, found := t.directory.Lookup(employeeID)
	if !found {
		t.logger.Warn("badge not recognized", "session_id", sess.ID, "employee_id", employeeID)
		return Result{
			"status":  "badge_not_found",
			"message": fmt.Sprintf("Badge ID %s is not in the employee directory. Ask the technician to hold the badge closer to the camera and try again.", employeeID),
		}
	}

	requester := workorders.Requester{ID: employeeID, Name: user.Name, Role: user.Role}

	if user.HasPermission(auth.PermCreateWorkOrder) {
		order, err := t.orders.CreateApproved(ctx, pending.Equipment, pending.Priority, pending.Description, requester)
		if err != nil {
			t.logger.Error("work order creation failed", "session_id", sess.ID, "error", err)
			return errorResult("Work order could not be saved. Try again in a moment.")
		}
		sess.ClearPendingWorkOrder()
		t.logger.Info("work order authorized", "session_id", sess.ID, "order_id", order.OrderID, "employee_id", employeeID)
		return Result{
			"status":   "authorized",
			"order_id": order.OrderID,
			"message": fmt.Sprintf("Badge verified for %s. Work order %s created and approved for %s.",
				user.Name, order.OrderID, pending.Equipment),
		}
	}

	order, err := t.orders.CreateEscalated(ctx, pending.Equipment, pending.Priority, pending.Description, requester, t.escalateTo)
	if err != nil {
		t.logger.Error("work order escalation failed", "session_id", sess.ID, "error", err)
		return errorResult("Work order could not be saved. Try again in a moment.")
	}
	sess.ClearPendingWorkOrder()
	t.logger.Info("work order escalated", "session_id", sess.ID, "order_id", order.OrderID,
		"employee_id", employeeID, "escalated_to", t.escalateTo)
	return Result{
		"status":       "escalated",
		"order_id":     order.OrderID,
		"escalated_to": t.escalateTo,
		"message": fmt.Sprintf("%s is not authorized to create work orders. Work order %s was sent to supervisor %s for approval.",
			firstNonEmpty(user.Name, employeeName), order.OrderID, t.escalateTo),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
