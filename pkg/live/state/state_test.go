package state

import "testing"

func TestHistoryAppendAndCopy(t *testing.T) {
	sess := NewSession("s1")
	sess.AppendTurn(RoleUser, "check the pump")
	sess.AppendTurn(RoleModel, "the seal looks worn")
	sess.AppendTurn(RoleModel, "")

	history := sess.History()
	if len(history) != 2 {
		t.Fatalf("len=%d, want 2 (empty turn must be dropped)", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleModel {
		t.Errorf("roles=%v", history)
	}

	// Mutating the copy must not leak into the session.
	history[0].Parts[0] = "tampered"
	if sess.History()[0].Parts[0] != "check the pump" {
		t.Error("History returned a shared slice")
	}
}

func TestPendingWorkOrderLifecycle(t *testing.T) {
	sess := NewSession("s1")
	if _, ok := sess.PendingWorkOrder(); ok {
		t.Fatal("fresh session should have no pending request")
	}

	sess.SetPendingWorkOrder(PendingWorkOrder{Equipment: "pump-7", Priority: "high", Description: "seal leak"})
	pending, ok := sess.PendingWorkOrder()
	if !ok || pending.Equipment != "pump-7" {
		t.Fatalf("pending=%+v ok=%v", pending, ok)
	}

	// Reading does not clear.
	if _, ok := sess.PendingWorkOrder(); !ok {
		t.Fatal("pending request cleared by read")
	}

	sess.ClearPendingWorkOrder()
	if _, ok := sess.PendingWorkOrder(); ok {
		t.Fatal("pending request survived clear")
	}
}

func TestLastFrameReplaced(t *testing.T) {
	sess := NewSession("s1")
	if sess.LastFrame() != nil {
		t.Fatal("fresh session should have no frame")
	}
	sess.SetLastFrame([]byte{1, 2})
	sess.SetLastFrame([]byte{3, 4, 5})
	frame := sess.LastFrame()
	if len(frame) != 3 || frame[0] != 3 {
		t.Errorf("frame=%v", frame)
	}
	frame[0] = 9
	if sess.LastFrame()[0] != 3 {
		t.Error("LastFrame returned a shared slice")
	}
}

func TestRegistrySessionReuse(t *testing.T) {
	reg := NewRegistry()
	first := reg.Session("abc")
	first.AppendTurn(RoleUser, "hello")
	first.SetResumeHandle("h1")

	again := reg.Session("abc")
	if again != first {
		t.Fatal("same ID returned a different session")
	}
	if again.ResumeHandle() != "h1" || again.HistoryLen() != 1 {
		t.Error("rehydrated session lost state")
	}

	if _, ok := reg.Lookup("nope"); ok {
		t.Error("Lookup invented a session")
	}
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	reg.Session("abc").AppendTurn(RoleUser, "hello")
	reg.Remove("abc")
	if _, ok := reg.Lookup("abc"); ok {
		t.Fatal("session survived Remove")
	}
	if reg.Session("abc").HistoryLen() != 0 {
		t.Error("recreated session carried old history")
	}
}

func TestActivateCancelsPrevious(t *testing.T) {
	reg := NewRegistry()
	cancelled := false
	release1 := reg.Activate("abc", func() { cancelled = true })
	if reg.ActiveCount() != 1 {
		t.Fatalf("active=%d, want 1", reg.ActiveCount())
	}

	release2 := reg.Activate("abc", func() {})
	if !cancelled {
		t.Fatal("second activation did not cancel the first")
	}
	if reg.ActiveCount() != 1 {
		t.Fatalf("active=%d, want 1", reg.ActiveCount())
	}

	// Stale release must not evict the newer activation.
	release1()
	if reg.ActiveCount() != 1 {
		t.Fatal("stale release removed the live activation")
	}
	release2()
	if reg.ActiveCount() != 0 {
		t.Fatal("release did not clear the activation")
	}
	release2()
}
