package pipeline

import "testing"

func TestRandomIncrementStaysInBounds(t *testing.T) {
	policy, err := NewRandomIncrementPolicy(5, 25, 10, 7)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	for i := 0; i < 1000; i++ {
		if got := policy.Next(); got < 5 || got > 25 {
			t.Fatalf("increment %v outside [5,25]", got)
		}
		if got := policy.Initial(); got < 0 || got > 10 {
			t.Fatalf("initial %v outside [0,10]", got)
		}
	}
}

func TestRandomIncrementRejectsBadRanges(t *testing.T) {
	if _, err := NewRandomIncrementPolicy(10, 5, 10, 0); err == nil {
		t.Fatalf("expected error for max < min")
	}
	if _, err := NewRandomIncrementPolicy(-1, 5, 10, 0); err == nil {
		t.Fatalf("expected error for negative min")
	}
	if _, err := NewRandomIncrementPolicy(1, 5, 0, 0); err == nil {
		t.Fatalf("expected error for non-positive initial bound")
	}
}

func TestRandomQueueStaysInBounds(t *testing.T) {
	policy, err := NewRandomQueuePolicy(2, 3, 11)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	for i := 0; i < 1000; i++ {
		next := policy.OnRollover(10)
		if next < 8 || next > 13 {
			t.Fatalf("rollover moved 10 to %d, outside [8,13]", next)
		}
	}
}

func TestRandomQueueRejectsNegativeBounds(t *testing.T) {
	if _, err := NewRandomQueuePolicy(-1, 3, 0); err == nil {
		t.Fatalf("expected error for negative drain bound")
	}
}

func TestRoundRobinRotationWalksRoster(t *testing.T) {
	rotation := NewRoundRobinRotation([]string{"aria", "bram", "celeste"})
	def := StageDefinition{ID: "x", ActorBearing: true}
	if got := rotation.Assign(1, 0, def); got != "aria" {
		t.Fatalf("turn 1 stage 0: got %q", got)
	}
	if got := rotation.Assign(1, 1, def); got != "bram" {
		t.Fatalf("turn 1 stage 1: got %q", got)
	}
	if got := rotation.Assign(2, 0, def); got != "bram" {
		t.Fatalf("turn 2 stage 0: got %q", got)
	}
	if got := rotation.Assign(4, 0, def); got != "aria" {
		t.Fatalf("turn 4 wraps the roster: got %q", got)
	}
}

func TestRoundRobinRotationEmptyRoster(t *testing.T) {
	rotation := NewRoundRobinRotation([]string{"", "  "})
	if got := rotation.Assign(1, 0, StageDefinition{ID: "x"}); got != "" {
		t.Fatalf("expected empty assignment, got %q", got)
	}
}
