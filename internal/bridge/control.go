package bridge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jcallahan/pipedeck/internal/pipeline"
)

// ProtocolVersion identifies the bridge contract version exposed via /health.
const ProtocolVersion = "1.0.0"

// Action enumerates the control operations a bridge client may request.
type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStop   Action = "stop"
	ActionRetry  Action = "retry"
	ActionSkip   Action = "skip"
)

// ControlRequest is the JSON body accepted by POST /control.
type ControlRequest struct {
	Action  Action `json:"action"`
	StageID string `json:"stage_id,omitempty"`
}

// Normalize applies canonical formatting before validation.
func (r *ControlRequest) Normalize() {
	if r == nil {
		return
	}
	r.Action = Action(strings.ToLower(strings.TrimSpace(string(r.Action))))
	r.StageID = strings.TrimSpace(r.StageID)
}

// Validate enforces baseline schema requirements for control requests.
func (r ControlRequest) Validate() error {
	switch r.Action {
	case ActionStart, ActionPause, ActionResume, ActionStop:
		return nil
	case ActionRetry, ActionSkip:
		if r.StageID == "" {
			return fmt.Errorf("%s requires stage_id", r.Action)
		}
		return nil
	case "":
		return errors.New("action is required")
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
}

// RunControls is the run-state surface the bridge drives; the tick scheduler
// implements it.
type RunControls interface {
	Start() error
	Pause() error
	Resume() error
	Stop() error
}

// StageControls is the error-recovery surface; the pipeline controller
// implements it.
type StageControls interface {
	RetryStage(stageID string) error
	SkipStage(stageID string) error
}

// SnapshotSource provides read-only pipeline state; the pipeline controller
// implements it.
type SnapshotSource interface {
	Snapshot() pipeline.Snapshot
}

// Logger records bridge status information. It matches logbook.Logbook's
// signatures.
type Logger interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	RunState      pipeline.RunState `json:"run_state"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

type controlResponse struct {
	Status     string            `json:"status"`
	RunState   pipeline.RunState `json:"run_state"`
	ServerTime time.Time         `json:"server_time"`
}
