package scheduler

import (
	"testing"
	"time"

	"github.com/jcallahan/pipedeck/internal/pipeline"
)

func newTestController(t *testing.T, opts ...pipeline.Option) *pipeline.Controller {
	t.Helper()
	registry, err := pipeline.NewRegistry([]pipeline.StageDefinition{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	base := []pipeline.Option{
		pipeline.WithIncrementPolicy(pipeline.StaticIncrementPolicy{InitialProgress: 0, Step: 25}),
		pipeline.WithQueuePolicy(pipeline.StaticQueuePolicy{Delta: 0}),
	}
	ctrl, err := pipeline.New(registry, append(base, opts...)...)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return ctrl
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestNewValidatesInputs(t *testing.T) {
	ctrl := newTestController(t)
	if _, err := New(nil, time.Millisecond); err == nil {
		t.Fatalf("expected error for nil controller")
	}
	if _, err := New(ctrl, 0); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := New(ctrl, -time.Second); err == nil {
		t.Fatalf("expected error for negative interval")
	}
}

func TestStartDrivesProgress(t *testing.T) {
	ctrl := newTestController(t)
	sched, err := New(ctrl, time.Millisecond)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = sched.Stop() }()

	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().Stages[0].Progress > 0
	}, "first stage to gain progress")
	if state := ctrl.RunState(); state != pipeline.RunRunning {
		t.Fatalf("expected running state, got %s", state)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	ctrl := newTestController(t)
	sched, err := New(ctrl, time.Millisecond)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := sched.Start(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if !sched.Running() {
		t.Fatalf("expected scheduler running")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
	if sched.Running() {
		t.Fatalf("expected scheduler stopped")
	}
}

func TestPauseFreezesProgression(t *testing.T) {
	ctrl := newTestController(t)
	sched, err := New(ctrl, time.Millisecond)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = sched.Stop() }()

	waitFor(t, time.Second, func() bool {
		return ctrl.Snapshot().Stages[0].Progress > 0
	}, "progress before pause")
	if err := sched.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	frozen := ctrl.Snapshot()
	time.Sleep(20 * time.Millisecond)
	after := ctrl.Snapshot()
	if frozen.CurrentTurn != after.CurrentTurn || frozen.ActiveStageIndex != after.ActiveStageIndex {
		t.Fatalf("pause did not freeze progression: %+v vs %+v", frozen, after)
	}
	if frozen.ActiveStageIndex != pipeline.NoActiveStage &&
		frozen.Stages[frozen.ActiveStageIndex].Progress != after.Stages[after.ActiveStageIndex].Progress {
		t.Fatalf("active stage progressed while paused")
	}
}

func TestResumeAfterColdPauseActivatesImmediately(t *testing.T) {
	ctrl := newTestController(t, pipeline.WithColdStart())
	sched, err := New(ctrl, time.Hour) // interval long enough that no tick fires
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = sched.Stop() }()

	// The resume reset must activate stage 0 without waiting a tick.
	snap := ctrl.Snapshot()
	if snap.ActiveStageIndex != 0 || snap.Stages[0].Status != pipeline.StageProcessing {
		t.Fatalf("expected immediate activation on start, got %+v", snap)
	}

	if err := sched.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := sched.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if state := ctrl.RunState(); state != pipeline.RunRunning {
		t.Fatalf("expected running after resume, got %s", state)
	}
}

func TestStopMarksRunStopped(t *testing.T) {
	ctrl := newTestController(t)
	sched, err := New(ctrl, time.Millisecond)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if state := ctrl.RunState(); state != pipeline.RunStopped {
		t.Fatalf("expected stopped state, got %s", state)
	}
	frozen := ctrl.Snapshot()
	time.Sleep(10 * time.Millisecond)
	after := ctrl.Snapshot()
	if frozen.CurrentTurn != after.CurrentTurn {
		t.Fatalf("progression continued after stop")
	}
}
