package pipeline

import "time"

// RunState is the externally controlled mode gating tick effects. The engine
// reacts to run-state changes but never decides them on its own.
type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunPaused  RunState = "paused"
	RunStopped RunState = "stopped"
)

// NoActiveStage is the ActiveStageIndex value when no stage is processing.
const NoActiveStage = -1

// StageView is the read-only projection of one stage's runtime state.
type StageView struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Status        StageStatus   `json:"status"`
	Progress      float64       `json:"progress"`
	Duration      time.Duration `json:"duration,omitempty"`
	AssignedActor string        `json:"assigned_actor,omitempty"`
}

// Snapshot is a deep, immutable copy of the controller's state. Mutating a
// snapshot never affects the controller.
type Snapshot struct {
	RunID             string        `json:"run_id"`
	RunState          RunState      `json:"run_state"`
	CurrentTurn       int           `json:"current_turn"`
	CompletedTurns    int           `json:"completed_turns"`
	QueueLength       int           `json:"queue_length"`
	AverageProcessing time.Duration `json:"average_processing"`
	ActiveStageIndex  int           `json:"active_stage_index"`
	Stages            []StageView   `json:"stages"`
	TakenAt           time.Time     `json:"taken_at"`
}

// ActiveStage returns the view of the processing stage, if any.
func (s Snapshot) ActiveStage() (StageView, bool) {
	if s.ActiveStageIndex == NoActiveStage || s.ActiveStageIndex < 0 || s.ActiveStageIndex >= len(s.Stages) {
		return StageView{}, false
	}
	return s.Stages[s.ActiveStageIndex], true
}

// ActiveStageChange describes one transition of the active stage pointer,
// including the activation performed at a turn rollover.
type ActiveStageChange struct {
	Turn       int
	StageIndex int
	StageID    string
	StageName  string
}
