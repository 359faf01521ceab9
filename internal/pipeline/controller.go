package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// durationWindow bounds the rolling sample used for the average processing
// time so long sessions don't accumulate unbounded history.
const durationWindow = 20

// Controller owns the ordered stage states for the current turn, the active
// stage pointer, and the turn-level counters. All mutation flows through
// Advance, the control setters, and the explicit error controls; consumers
// read snapshots only.
type Controller struct {
	mu sync.Mutex

	runID      string
	registry   *Registry
	increments IncrementPolicy
	queue      QueuePolicy
	rotation   ActorRotation
	clock      func() time.Time

	runState       RunState
	stages         []stageState
	active         int
	currentTurn    int
	completedTurns int
	queueLength    int
	durations      []time.Duration
	average        time.Duration

	coldStart   bool
	nextSubID   int
	subscribers map[int]func(ActiveStageChange)
}

// Option customizes controller construction.
type Option func(*Controller)

// WithIncrementPolicy overrides the default bounded-random increment policy.
func WithIncrementPolicy(p IncrementPolicy) Option {
	return func(c *Controller) {
		if p != nil {
			c.increments = p
		}
	}
}

// WithQueuePolicy overrides the rollover queue adjustment.
func WithQueuePolicy(p QueuePolicy) Option {
	return func(c *Controller) {
		if p != nil {
			c.queue = p
		}
	}
}

// WithActorRotation supplies the actor roster rotation applied to
// actor-bearing stages at each turn.
func WithActorRotation(r ActorRotation) Option {
	return func(c *Controller) {
		if r != nil {
			c.rotation = r
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithInitialQueueLength seeds the backlog counter. Negative values clamp to
// zero.
func WithInitialQueueLength(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.queueLength = n
		}
	}
}

// WithColdStart leaves every stage queued at construction instead of
// activating stage 0. The first stage then activates on the first running
// tick, or immediately on the transition into running.
func WithColdStart() Option {
	return func(c *Controller) {
		c.coldStart = true
	}
}

// New builds a controller for one session. Unless WithColdStart is given, the
// first turn starts with stage 0 processing at zero progress and every other
// stage queued; the run state starts idle so nothing moves until the control
// owner starts the run.
func New(registry *Registry, opts ...Option) (*Controller, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("pipeline: controller requires a non-empty stage registry")
	}
	c := &Controller{
		runID:       uuid.NewString(),
		registry:    registry,
		rotation:    NewRoundRobinRotation(nil),
		clock:       time.Now,
		runState:    RunIdle,
		currentTurn: 1,
		subscribers: map[int]func(ActiveStageChange){},
	}
	seed := time.Now().UnixNano()
	inc, err := NewRandomIncrementPolicy(5, 25, 10, seed)
	if err != nil {
		return nil, err
	}
	c.increments = inc
	queue, err := NewRandomQueuePolicy(2, 3, seed+1)
	if err != nil {
		return nil, err
	}
	c.queue = queue
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.stages = c.buildTurnStages(c.currentTurn)
	c.active = NoActiveStage
	if !c.coldStart {
		c.stages[0].activate(0, c.clock())
		c.active = 0
	}
	return c, nil
}

// RunID identifies this controller session.
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// RunState reports the current externally supplied run state.
func (c *Controller) RunState() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runState
}

// SetRunState applies a control transition. Repeating the current state is a
// no-op. A transition into running performs the resume reset: when nothing is
// processing, the first queued stage is activated immediately so resuming is
// visible before the next tick.
func (c *Controller) SetRunState(state RunState) error {
	switch state {
	case RunIdle, RunRunning, RunPaused, RunStopped:
	default:
		return fmt.Errorf("pipeline: unknown run state %q", state)
	}
	c.mu.Lock()
	if c.runState == state {
		c.mu.Unlock()
		return nil
	}
	c.runState = state
	var changes []ActiveStageChange
	if state == RunRunning && !c.hasProcessingLocked() && !c.hasErrorLocked() {
		if idx := c.firstQueuedLocked(); idx >= 0 {
			changes = append(changes, c.activateLocked(idx, c.increments.Initial(), c.clock()))
		}
	}
	c.mu.Unlock()
	c.notify(changes)
	return nil
}

// Advance applies one tick. It is a strict no-op unless the run state is
// running, and it never fails: all inputs are internal state.
func (c *Controller) Advance() {
	c.mu.Lock()
	if c.runState != RunRunning {
		c.mu.Unlock()
		return
	}
	now := c.clock()
	var changes []ActiveStageChange
	if c.active == NoActiveStage {
		if idx := c.firstQueuedLocked(); idx >= 0 {
			changes = append(changes, c.activateLocked(idx, c.increments.Initial(), now))
		}
		c.mu.Unlock()
		c.notify(changes)
		return
	}
	stage := &c.stages[c.active]
	if stage.status == StageProcessing && stage.applyIncrement(c.increments.Next()) {
		changes = c.finishActiveLocked(now)
	}
	c.recomputeAverageLocked()
	c.mu.Unlock()
	c.notify(changes)
}

// MarkStageError flags the identified stage as errored. Only a processing
// stage can fail, and an errored stage blocks all further automatic
// advancement until retried or skipped.
func (c *Controller) MarkStageError(stageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOfLocked(stageID)
	if idx < 0 {
		return fmt.Errorf("pipeline: unknown stage %q", stageID)
	}
	if c.stages[idx].status != StageProcessing {
		return fmt.Errorf("pipeline: stage %q is %s, only a processing stage can error", stageID, c.stages[idx].status)
	}
	c.stages[idx].status = StageError
	return nil
}

// RetryStage returns an errored stage to processing, continuing from its last
// recorded progress.
func (c *Controller) RetryStage(stageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOfLocked(stageID)
	if idx < 0 {
		return fmt.Errorf("pipeline: unknown stage %q", stageID)
	}
	if c.stages[idx].status != StageError {
		return fmt.Errorf("pipeline: stage %q is %s, only an errored stage can be retried", stageID, c.stages[idx].status)
	}
	c.stages[idx].status = StageProcessing
	if c.stages[idx].activatedAt.IsZero() {
		c.stages[idx].activatedAt = c.clock()
	}
	return nil
}

// SkipStage completes an errored stage by fiat and moves the active pointer
// on, rolling the turn over if it was the last stage.
func (c *Controller) SkipStage(stageID string) error {
	c.mu.Lock()
	idx := c.indexOfLocked(stageID)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("pipeline: unknown stage %q", stageID)
	}
	if c.stages[idx].status != StageError {
		status := c.stages[idx].status
		c.mu.Unlock()
		return fmt.Errorf("pipeline: stage %q is %s, only an errored stage can be skipped", stageID, status)
	}
	changes := c.finishActiveLocked(c.clock())
	c.recomputeAverageLocked()
	c.mu.Unlock()
	c.notify(changes)
	return nil
}

// Snapshot returns a deep copy of the controller state. Consumers cannot
// mutate internal state through the returned value.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	views := make([]StageView, len(c.stages))
	for i, stage := range c.stages {
		views[i] = StageView{
			ID:            stage.def.ID,
			Name:          stage.def.Name,
			Status:        stage.status,
			Progress:      stage.progress,
			Duration:      stage.duration,
			AssignedActor: stage.actor,
		}
	}
	return Snapshot{
		RunID:             c.runID,
		RunState:          c.runState,
		CurrentTurn:       c.currentTurn,
		CompletedTurns:    c.completedTurns,
		QueueLength:       c.queueLength,
		AverageProcessing: c.average,
		ActiveStageIndex:  c.active,
		Stages:            views,
		TakenAt:           c.clock(),
	}
}

// SubscribeActiveStageChange registers a callback invoked once per transition
// of the active stage pointer, including the activation at a turn rollover.
// Callbacks run synchronously on the mutating goroutine and must return
// quickly. The returned cancel function removes the subscription.
func (c *Controller) SubscribeActiveStageChange(fn func(ActiveStageChange)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// finishActiveLocked completes the active stage, activates its successor, and
// rolls the turn over when the last stage finishes. The caller holds the lock.
func (c *Controller) finishActiveLocked(now time.Time) []ActiveStageChange {
	stage := &c.stages[c.active]
	stage.complete(now)
	c.recordDurationLocked(stage.duration)
	var changes []ActiveStageChange
	if next := c.active + 1; next < len(c.stages) {
		changes = append(changes, c.activateLocked(next, c.increments.Initial(), now))
		return changes
	}
	c.active = NoActiveStage
	changes = append(changes, c.rolloverLocked(now)...)
	return changes
}

// rolloverLocked resets stage state for the next turn: bump the turn counters,
// apply the queue policy (clamped at zero), rebuild the stage list with fresh
// actor assignments, and activate stage 0.
func (c *Controller) rolloverLocked(now time.Time) []ActiveStageChange {
	c.completedTurns++
	c.currentTurn++
	c.queueLength = c.queue.OnRollover(c.queueLength)
	if c.queueLength < 0 {
		c.queueLength = 0
	}
	c.stages = c.buildTurnStages(c.currentTurn)
	return []ActiveStageChange{c.activateLocked(0, 0, now)}
}

func (c *Controller) buildTurnStages(turn int) []stageState {
	defs := c.registry.Definitions()
	stages := make([]stageState, len(defs))
	for i, def := range defs {
		stages[i] = stageState{def: def, status: StageQueued}
		if def.ActorBearing {
			stages[i].actor = c.rotation.Assign(turn, i, def)
		}
	}
	return stages
}

func (c *Controller) activateLocked(idx int, initial float64, now time.Time) ActiveStageChange {
	c.stages[idx].activate(initial, now)
	c.active = idx
	return ActiveStageChange{
		Turn:       c.currentTurn,
		StageIndex: idx,
		StageID:    c.stages[idx].def.ID,
		StageName:  c.stages[idx].def.Name,
	}
}

func (c *Controller) firstQueuedLocked() int {
	for i := range c.stages {
		if c.stages[i].status == StageQueued {
			return i
		}
	}
	return NoActiveStage
}

func (c *Controller) hasProcessingLocked() bool {
	for i := range c.stages {
		if c.stages[i].status == StageProcessing {
			return true
		}
	}
	return false
}

func (c *Controller) hasErrorLocked() bool {
	for i := range c.stages {
		if c.stages[i].status == StageError {
			return true
		}
	}
	return false
}

func (c *Controller) indexOfLocked(stageID string) int {
	for i := range c.stages {
		if c.stages[i].def.ID == stageID {
			return i
		}
	}
	return -1
}

func (c *Controller) recordDurationLocked(d time.Duration) {
	if d <= 0 {
		return
	}
	c.durations = append(c.durations, d)
	if len(c.durations) > durationWindow {
		c.durations = c.durations[len(c.durations)-durationWindow:]
	}
}

func (c *Controller) recomputeAverageLocked() {
	if len(c.durations) == 0 {
		c.average = 0
		return
	}
	var total time.Duration
	for _, d := range c.durations {
		total += d
	}
	c.average = total / time.Duration(len(c.durations))
}

// notify delivers active-stage changes outside the lock so callbacks may call
// back into the controller.
func (c *Controller) notify(changes []ActiveStageChange) {
	if len(changes) == 0 {
		return
	}
	c.mu.Lock()
	subs := make([]func(ActiveStageChange), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, change := range changes {
		for _, fn := range subs {
			fn(change)
		}
	}
}
