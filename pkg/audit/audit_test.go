package audit

import (
	"context"
	"testing"
)

func newTestTrail(t *testing.T) *Trail {
	t.Helper()
	trail, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open error = %v", err)
	}
	return trail
}

func TestRecord(t *testing.T) {
	trail := newTestTrail(t)
	ctx := context.Background()

	ev, err := trail.Record(ctx, "sess-1", "missing_ppe", 4, "no gloves near press", SourceAI, map[string]any{"evidence_url": "/static/evidence/x.jpg"})
	if err != nil {
		t.Fatalf("Record error = %v", err)
	}
	if ev.Severity != 4 {
		t.Errorf("Severity=%d, want 4", ev.Severity)
	}
	if ev.Timestamp == "" {
		t.Errorf("missing timestamp")
	}

	events, err := trail.SessionEvents(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("count=%d, want 1", len(events))
	}
	if events[0].Metadata["evidence_url"] != "/static/evidence/x.jpg" {
		t.Errorf("metadata=%v", events[0].Metadata)
	}
}

func TestSeverityClamping(t *testing.T) {
	trail := newTestTrail(t)
	ctx := context.Background()

	low, err := trail.Record(ctx, "sess-1", "step_verified", 0, "", SourceSystem, nil)
	if err != nil {
		t.Fatal(err)
	}
	if low.Severity != 1 {
		t.Errorf("severity 0 stored as %d, want 1", low.Severity)
	}

	high, err := trail.Record(ctx, "sess-1", "hazard_detected", 9, "", SourceAI, nil)
	if err != nil {
		t.Fatal(err)
	}
	if high.Severity != 5 {
		t.Errorf("severity 9 stored as %d, want 5", high.Severity)
	}
}

func TestSessionSummary(t *testing.T) {
	trail := newTestTrail(t)
	ctx := context.Background()

	for _, sev := range []int{1, 3, 4, 5, 5} {
		if _, err := trail.Record(ctx, "sess-1", "hazard_detected", sev, "", SourceAI, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := trail.Record(ctx, "other", "missing_ppe", 2, "", SourceAI, nil); err != nil {
		t.Fatal(err)
	}

	summary, err := trail.SessionSummary(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SessionSummary error = %v", err)
	}
	if summary.TotalEvents != 5 {
		t.Errorf("TotalEvents=%d, want 5", summary.TotalEvents)
	}
	if summary.CriticalEvents != 2 {
		t.Errorf("CriticalEvents=%d, want 2", summary.CriticalEvents)
	}
	if summary.HighSeverityEvents != 3 {
		t.Errorf("HighSeverityEvents=%d, want 3", summary.HighSeverityEvents)
	}
	if summary.EventTypes["hazard_detected"] != 5 {
		t.Errorf("EventTypes=%v", summary.EventTypes)
	}
	if summary.FirstEvent == "" || summary.LastEvent == "" {
		t.Errorf("missing first/last timestamps")
	}
}

func TestSessionSummary_Empty(t *testing.T) {
	trail := newTestTrail(t)

	summary, err := trail.SessionSummary(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalEvents != 0 {
		t.Errorf("TotalEvents=%d, want 0", summary.TotalEvents)
	}
}

func TestAllSessions(t *testing.T) {
	trail := newTestTrail(t)
	ctx := context.Background()

	if _, err := trail.Record(ctx, "first", "session_started", 1, "", SourceSystem, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := trail.Record(ctx, "second", "session_started", 1, "", SourceSystem, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := trail.Record(ctx, "first", "hazard_detected", 5, "", SourceAI, nil); err != nil {
		t.Fatal(err)
	}

	sessions, err := trail.AllSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("count=%d, want 2", len(sessions))
	}
	// Newest session first.
	if sessions[0].SessionID != "second" {
		t.Errorf("order=%v", sessions)
	}
	var first SessionOverview
	for _, s := range sessions {
		if s.SessionID == "first" {
			first = s
		}
	}
	if first.EventCount != 2 || first.CriticalEvents != 1 {
		t.Errorf("first=%+v", first)
	}
}
