package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// StageStatus enumerates the lifecycle of a single stage within a turn.
type StageStatus string

const (
	StageQueued     StageStatus = "queued"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageError      StageStatus = "error"
)

// StageDefinition describes one entry in the stage registry. Definitions are
// immutable once the registry is built; per-turn runtime state lives on the
// controller.
type StageDefinition struct {
	// ID uniquely identifies the stage within the registry.
	ID string
	// Name is the display label. Defaults to ID when empty.
	Name string
	// ActorBearing marks stages whose work is attributed to an actor from the
	// roster at each turn rollover.
	ActorBearing bool
}

// Registry holds the ordered, fixed list of stage definitions every turn
// progresses through.
type Registry struct {
	defs []StageDefinition
}

// NewRegistry validates and freezes an ordered stage list. An empty list or a
// duplicate stage ID is a construction failure.
func NewRegistry(defs []StageDefinition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("pipeline: registry requires at least one stage")
	}
	seen := make(map[string]struct{}, len(defs))
	normalized := make([]StageDefinition, len(defs))
	for i, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, fmt.Errorf("pipeline: stage %d is missing an id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stage id %q", id)
		}
		seen[id] = struct{}{}
		name := strings.TrimSpace(def.Name)
		if name == "" {
			name = id
		}
		normalized[i] = StageDefinition{ID: id, Name: name, ActorBearing: def.ActorBearing}
	}
	return &Registry{defs: normalized}, nil
}

// Len returns the number of registered stages.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.defs)
}

// Definitions returns a copy of the ordered stage definitions.
func (r *Registry) Definitions() []StageDefinition {
	if r == nil || len(r.defs) == 0 {
		return nil
	}
	out := make([]StageDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// stageState is the controller-owned mutable record for one stage of the
// current turn.
type stageState struct {
	def         StageDefinition
	status      StageStatus
	progress    float64
	duration    time.Duration
	actor       string
	activatedAt time.Time
}

// activate moves a queued stage to processing with its initial progress.
// Initial progress models scheduling latency before real work shows up.
func (s *stageState) activate(initial float64, now time.Time) {
	s.status = StageProcessing
	s.progress = clampProgress(initial)
	s.activatedAt = now
}

// applyIncrement advances a processing stage and reports whether the stage
// reached completion. Progress never decreases and clamps at 100.
func (s *stageState) applyIncrement(delta float64) bool {
	if s.status != StageProcessing {
		return false
	}
	if delta < 0 {
		delta = 0
	}
	s.progress = clampProgress(s.progress + delta)
	return s.progress >= maxProgress
}

// complete finalizes a stage, snapping progress to exactly 100 and recording
// the elapsed wall time since activation.
func (s *stageState) complete(now time.Time) {
	s.status = StageCompleted
	s.progress = maxProgress
	if !s.activatedAt.IsZero() && now.After(s.activatedAt) {
		s.duration = now.Sub(s.activatedAt)
	}
}

const maxProgress = 100.0

func clampProgress(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxProgress {
		return maxProgress
	}
	return v
}
