package workorders

import (
	"context"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open error = %v", err)
	}
	return s
}

var testRequester = Requester{ID: "tech_042", Name: "Alex Rivera", Role: "technician"}

func TestCreateApproved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order, err := s.CreateApproved(ctx, "pump-7", "high", "seal leaking", testRequester)
	if err != nil {
		t.Fatalf("CreateApproved error = %v", err)
	}
	if order.Status != StatusApproved {
		t.Errorf("Status=%q, want approved", order.Status)
	}
	if order.OrderID == "" {
		t.Errorf("empty order ID")
	}
	if order.ApprovedAt == "" {
		t.Errorf("approved order missing approved_at")
	}
	if !order.BadgeVerified {
		t.Errorf("badge_verified should be set")
	}

	approved, err := s.Approved(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(approved) != 1 {
		t.Fatalf("approved count=%d, want 1", len(approved))
	}
	pending, _ := s.Pending(ctx)
	if len(pending) != 0 {
		t.Fatalf("pending count=%d, want 0", len(pending))
	}
}

func TestCreateEscalated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order, err := s.CreateEscalated(ctx, "press-2", "medium", "guard rattling", testRequester, "sup_007")
	if err != nil {
		t.Fatalf("CreateEscalated error = %v", err)
	}
	if order.Status != StatusPendingApproval {
		t.Errorf("Status=%q, want pending_approval", order.Status)
	}
	if order.EscalatedTo != "sup_007" {
		t.Errorf("EscalatedTo=%q, want sup_007", order.EscalatedTo)
	}
	if order.ApprovedAt != "" {
		t.Errorf("pending order should not carry approved_at")
	}
}

func TestOrderIDsAreUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		order, err := s.CreateApproved(ctx, "pump-7", "low", "check", testRequester)
		if err != nil {
			t.Fatal(err)
		}
		if seen[order.OrderID] {
			t.Fatalf("duplicate order ID %q", order.OrderID)
		}
		seen[order.OrderID] = true
	}
}

func TestApproveMovesStage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateEscalated(ctx, "press-2", "high", "broken guard", testRequester, "sup_007")
	if err != nil {
		t.Fatal(err)
	}

	order, err := s.Approve(ctx, created.OrderID)
	if err != nil {
		t.Fatalf("Approve error = %v", err)
	}
	if order.Status != StatusApproved {
		t.Errorf("Status=%q, want approved", order.Status)
	}
	if order.ApprovedAt == "" {
		t.Errorf("missing approved_at after approve")
	}

	pending, _ := s.Pending(ctx)
	approved, _ := s.Approved(ctx)
	if len(pending) != 0 || len(approved) != 1 {
		t.Fatalf("pending=%d approved=%d, want 0/1", len(pending), len(approved))
	}
}

func TestStageMonotonicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateEscalated(ctx, "press-2", "high", "broken guard", testRequester, "sup_007")
	if err != nil {
		t.Fatal(err)
	}

	// Cannot complete an order that was never approved.
	if _, err := s.Complete(ctx, created.OrderID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Complete on pending order err=%v, want ErrNotFound", err)
	}

	if _, err := s.Approve(ctx, created.OrderID); err != nil {
		t.Fatal(err)
	}
	// Approving twice would regress nothing, but must still fail: the order
	// left the pending stage.
	if _, err := s.Approve(ctx, created.OrderID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Approve err=%v, want ErrNotFound", err)
	}

	if _, err := s.Complete(ctx, created.OrderID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Complete(ctx, created.OrderID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Complete err=%v, want ErrNotFound", err)
	}

	// Exactly one store holds the order at the end.
	pending, _ := s.Pending(ctx)
	approved, _ := s.Approved(ctx)
	completed, _ := s.Completed(ctx)
	if len(pending) != 0 || len(approved) != 0 || len(completed) != 1 {
		t.Fatalf("pending=%d approved=%d completed=%d, want 0/0/1", len(pending), len(approved), len(completed))
	}
}

func TestApproveUnknownOrder(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Approve(context.Background(), "WO-nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestByRequester(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateApproved(ctx, "pump-7", "low", "a", testRequester); err != nil {
		t.Fatal(err)
	}
	other := Requester{ID: "tech_099", Name: "Kim", Role: "technician"}
	if _, err := s.CreateEscalated(ctx, "press-2", "low", "b", other, "sup_007"); err != nil {
		t.Fatal(err)
	}

	mine, err := s.ByRequester(ctx, "tech_042")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Fatalf("count=%d, want 1", len(mine))
	}
	if mine[0].Equipment != "pump-7" {
		t.Errorf("Equipment=%q", mine[0].Equipment)
	}
}

func TestNormalizePriority(t *testing.T) {
	cases := map[string]string{
		"low":      "low",
		"medium":   "medium",
		"high":     "high",
		"critical": "critical",
		"urgent":   "medium",
		"":         "medium",
	}
	for in, want := range cases {
		if got := NormalizePriority(in); got != want {
			t.Errorf("NormalizePriority(%q)=%q, want %q", in, got, want)
		}
	}
}
