package tools

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SunnyYadav16/field-vision/pkg/audit"
	"github.com/SunnyYadav16/field-vision/pkg/auth"
	"github.com/SunnyYadav16/field-vision/pkg/live/state"
	"github.com/SunnyYadav16/field-vision/pkg/workorders"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testDirectory() *auth.Directory {
	return auth.NewDirectory(map[string]auth.User{
		"tech_042": {
			Name: "Alex Rivera", Role: "technician", Zone: "Zone A",
			Permissions: []string{auth.PermCreateWorkOrder},
		},
		"intern_9": {
			Name: "Sam Okafor", Role: "intern", Zone: "Zone A",
		},
	})
}

func testStores(t *testing.T) (*audit.Trail, *workorders.Store) {
	t.Helper()
	trail, err := audit.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	orders, err := workorders.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	return trail, orders
}

func TestRegistryDispatch(t *testing.T) {
	trail, orders := testStores(t)
	reg := NewRegistry(testLogger,
		NewSafetyEventTool(testLogger, trail, nil),
		NewWorkOrderTool(testLogger),
		NewBadgeTool(testLogger, testDirectory(), orders),
	)

	decls := reg.Declarations()
	if len(decls) != 3 {
		t.Fatalf("declarations=%d, want 3", len(decls))
	}
	if decls[0].Name != "log_safety_event" || decls[2].Name != "verify_badge" {
		t.Errorf("declaration order = %v, %v, %v", decls[0].Name, decls[1].Name, decls[2].Name)
	}

	sess := state.NewSession("s1")
	res := reg.Dispatch(context.Background(), sess, "warp_drive", nil)
	if res["status"] != "error" {
		t.Errorf("unknown function result = %v", res)
	}
	if !strings.Contains(res["message"].(string), "warp_drive") {
		t.Errorf("message = %v", res["message"])
	}

	res = reg.Dispatch(context.Background(), sess, "log_safety_event", map[string]any{"event_type": "hazard_detected"})
	if res["status"] != "error" {
		t.Errorf("missing-arg result = %v", res)
	}
}

func TestLogSafetyEvent(t *testing.T) {
	trail, _ := testStores(t)
	tool := NewSafetyEventTool(testLogger, trail, nil)
	sess := state.NewSession("s1")

	// JSON numbers arrive as float64.
	res := tool.Execute(context.Background(), sess, map[string]any{
		"event_type": "missing_ppe", "severity": float64(9), "description": "no gloves",
	})
	if res["status"] != "logged" {
		t.Fatalf("result = %v", res)
	}
	if res["severity"] != 5 {
		t.Errorf("severity = %v, want clamped 5", res["severity"])
	}
	if res["evidence_captured"] != false {
		t.Errorf("evidence_captured = %v with no frame buffered", res["evidence_captured"])
	}

	events, err := trail.SessionEvents(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Severity != 5 || events[0].Source != audit.SourceAI {
		t.Errorf("events = %+v", events)
	}
}

func TestLogSafetyEvent_CapturesEvidence(t *testing.T) {
	trail, _ := testStores(t)
	dir := t.TempDir()
	tool := NewSafetyEventTool(testLogger, trail, NewEvidenceStore(dir, "/static/evidence"))

	sess := state.NewSession("s1")
	sess.SetLastFrame([]byte{0xFF, 0xD8, 0xFF})

	res := tool.Execute(context.Background(), sess, map[string]any{
		"event_type": "hazard_detected", "severity": 4, "description": "open panel",
	})
	if res["evidence_captured"] != true {
		t.Fatalf("result = %v", res)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || !strings.HasPrefix(files[0].Name(), "evidence_s1_") {
		t.Errorf("files = %v", files)
	}
	saved, _ := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if len(saved) != 3 {
		t.Errorf("frame bytes = %v", saved)
	}

	events, _ := trail.SessionEvents(context.Background(), "s1")
	url, _ := events[0].Metadata["evidence_url"].(string)
	if !strings.HasPrefix(url, "/static/evidence/evidence_s1_") {
		t.Errorf("evidence_url = %q", url)
	}
}

func TestLogSafetyEvent_LowSeveritySkipsEvidence(t *testing.T) {
	trail, _ := testStores(t)
	dir := t.TempDir()
	tool := NewSafetyEventTool(testLogger, trail, NewEvidenceStore(dir, "/static/evidence"))

	sess := state.NewSession("s1")
	sess.SetLastFrame([]byte{1})

	res := tool.Execute(context.Background(), sess, map[string]any{
		"event_type": "step_verified", "severity": 2, "description": "guard reinstalled",
	})
	if res["evidence_captured"] != false {
		t.Fatalf("result = %v", res)
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 0 {
		t.Errorf("unexpected evidence files: %v", files)
	}
}

func TestCreateWorkOrderParksRequest(t *testing.T) {
	tool := NewWorkOrderTool(testLogger)
	sess := state.NewSession("s1")

	res := tool.Execute(context.Background(), sess, map[string]any{
		"equipment_id": "pump-7", "priority": "urgent", "description": "seal leak",
	})
	if res["status"] != "badge_verification_required" {
		t.Fatalf("result = %v", res)
	}

	pending, ok := sess.PendingWorkOrder()
	if !ok {
		t.Fatal("no pending request stored")
	}
	if pending.Equipment != "pump-7" || pending.Priority != "medium" {
		t.Errorf("pending = %+v (unknown priority must normalize to medium)", pending)
	}
}

func TestVerifyBadge_NoPendingRequest(t *testing.T) {
	_, orders := testStores(t)
	tool := NewBadgeTool(testLogger, testDirectory(), orders)
	sess := state.NewSession("s1")

	res := tool.Execute(context.Background(), sess, map[string]any{
		"employee_name": "Alex Rivera", "employee_id": "tech_042",
	})
	if res["status"] != "no_pending_request" {
		t.Fatalf("result = %v", res)
	}
}

func TestVerifyBadge_NotFoundKeepsPending(t *testing.T) {
	_, orders := testStores(t)
	tool := NewBadgeTool(testLogger, testDirectory(), orders)
	sess := state.NewSession("s1")
	sess.SetPendingWorkOrder(state.PendingWorkOrder{Equipment: "pump-7", Priority: "high", Description: "leak"})

	res := tool.Execute(context.Background(), sess, map[string]any{
		"employee_name": "Nobody", "employee_id": "ghost_1",
	})
	if res["status"] != "badge_not_found" {
		t.Fatalf("result = %v", res)
	}
	if _, ok := sess.PendingWorkOrder(); !ok {
		t.Error("failed scan must leave the pending request for a retry")
	}
	pending, _ := orders.Pending(context.Background())
	approved, _ := orders.Approved(context.Background())
	if len(pending)+len(approved) != 0 {
		t.Error("no order may be created for an unknown badge")
	}
}

func TestVerifyBadge_Authorized(t *testing.T) {
	_, orders := testStores(t)
	tool := NewBadgeTool(testLogger, testDirectory(), orders)
	sess := state.NewSession("s1")
	sess.SetPendingWorkOrder(state.PendingWorkOrder{Equipment: "pump-7", Priority: "high", Description: "leak"})

	res := tool.Execute(context.Background(), sess, map[string]any{
		"employee_name": "Alex Rivera", "employee_id": "tech_042",
	})
	if res["status"] != "authorized" {
		t.Fatalf("result = %v", res)
	}
	orderID, _ := res["order_id"].(string)
	if !strings.HasPrefix(orderID, "WO-") {
		t.Errorf("order_id = %q", orderID)
	}
	if _, ok := sess.PendingWorkOrder(); ok {
		t.Error("pending request must clear after authorization")
	}

	order, err := orders.Get(context.Background(), orderID)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != workorders.StatusApproved || !order.BadgeVerified {
		t.Errorf("order = %+v", order)
	}
	if order.RequesterName != "Alex Rivera" {
		t.Errorf("requester = %q (directory name wins over badge text)", order.RequesterName)
	}
}

func TestVerifyBadge_Escalated(t *testing.T) {
	_, orders := testStores(t)
	tool := NewBadgeTool(testLogger, testDirectory(), orders)
	sess := state.NewSession("s1")
	sess.SetPendingWorkOrder(state.PendingWorkOrder{Equipment: "press-2", Priority: "medium", Description: "guard loose"})

	res := tool.Execute(context.Background(), sess, map[string]any{
		"employee_name": "Sam Okafor", "employee_id": "intern_9",
	})
	if res["status"] != "escalated" {
		t.Fatalf("result = %v", res)
	}
	if res["escalated_to"] != DefaultEscalationSupervisor {
		t.Errorf("escalated_to = %v", res["escalated_to"])
	}
	if _, ok := sess.PendingWorkOrder(); ok {
		t.Error("pending request must clear after escalation")
	}

	order, err := orders.Get(context.Background(), res["order_id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != workorders.StatusPendingApproval || order.EscalatedTo != DefaultEscalationSupervisor {
		t.Errorf("order = %+v", order)
	}
}
