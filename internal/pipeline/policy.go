package pipeline

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// IncrementPolicy decides how much progress a processing stage gains per tick
// and the initial progress assigned when a stage is activated.
type IncrementPolicy interface {
	// Initial returns the progress value assigned when a stage is activated.
	Initial() float64
	// Next returns the progress increment applied on one tick.
	Next() float64
}

// QueuePolicy adjusts the abstract backlog counter at each turn rollover. The
// controller clamps the result at zero, so implementations may return negative
// deltas freely.
type QueuePolicy interface {
	// OnRollover returns the new queue length given the current one.
	OnRollover(current int) int
}

// ActorRotation assigns an actor label to an actor-bearing stage for a given
// turn. Non-actor-bearing stages are never passed in.
type ActorRotation interface {
	Assign(turn int, stageIndex int, def StageDefinition) string
}

// randomIncrement draws bounded random jumps, the default progression feel.
type randomIncrement struct {
	mu         sync.Mutex
	rng        *rand.Rand
	min        float64
	max        float64
	initialMax float64
}

// NewRandomIncrementPolicy builds the default bounded-random increment policy.
// Each tick gains [min,max] percent; activation assigns (0,initialMax].
func NewRandomIncrementPolicy(min, max, initialMax float64, seed int64) (IncrementPolicy, error) {
	if min < 0 || max <= 0 || max < min {
		return nil, fmt.Errorf("pipeline: increment range [%v,%v] is invalid", min, max)
	}
	if initialMax <= 0 {
		return nil, fmt.Errorf("pipeline: initial progress bound %v must be positive", initialMax)
	}
	return &randomIncrement{
		rng:        rand.New(rand.NewSource(seed)),
		min:        min,
		max:        max,
		initialMax: initialMax,
	}, nil
}

func (p *randomIncrement) Initial() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() * p.initialMax
}

func (p *randomIncrement) Next() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + p.rng.Float64()*(p.max-p.min)
}

// StaticIncrementPolicy yields fixed values, primarily for tests and demos
// that need deterministic progression.
type StaticIncrementPolicy struct {
	InitialProgress float64
	Step            float64
}

func (p StaticIncrementPolicy) Initial() float64 { return p.InitialProgress }
func (p StaticIncrementPolicy) Next() float64    { return p.Step }

// randomQueue models backlog churn: some items drain each turn, some arrive.
type randomQueue struct {
	mu       sync.Mutex
	rng      *rand.Rand
	maxDrain int
	maxAdd   int
}

// NewRandomQueuePolicy builds the default rollover queue adjustment. Each
// rollover drains up to maxDrain items and admits up to maxAdd new ones.
func NewRandomQueuePolicy(maxDrain, maxAdd int, seed int64) (QueuePolicy, error) {
	if maxDrain < 0 || maxAdd < 0 {
		return nil, fmt.Errorf("pipeline: queue bounds drain=%d add=%d must be non-negative", maxDrain, maxAdd)
	}
	return &randomQueue{
		rng:      rand.New(rand.NewSource(seed)),
		maxDrain: maxDrain,
		maxAdd:   maxAdd,
	}, nil
}

func (p *randomQueue) OnRollover(current int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	drained := 0
	if p.maxDrain > 0 {
		drained = p.rng.Intn(p.maxDrain + 1)
	}
	added := 0
	if p.maxAdd > 0 {
		added = p.rng.Intn(p.maxAdd + 1)
	}
	return current - drained + added
}

// StaticQueuePolicy applies a fixed delta per rollover.
type StaticQueuePolicy struct {
	Delta int
}

func (p StaticQueuePolicy) OnRollover(current int) int { return current + p.Delta }

// roundRobinRotation walks the actor roster, offsetting by turn so the same
// stage is handled by a different actor on consecutive turns.
type roundRobinRotation struct {
	actors []string
}

// NewRoundRobinRotation builds an ActorRotation over an externally supplied
// roster. An empty roster yields empty assignments rather than an error; the
// roster is an opaque sequence to the engine.
func NewRoundRobinRotation(actors []string) ActorRotation {
	cleaned := make([]string, 0, len(actors))
	for _, actor := range actors {
		if trimmed := strings.TrimSpace(actor); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return &roundRobinRotation{actors: cleaned}
}

func (r *roundRobinRotation) Assign(turn int, stageIndex int, _ StageDefinition) string {
	if len(r.actors) == 0 {
		return ""
	}
	if turn < 1 {
		turn = 1
	}
	if stageIndex < 0 {
		stageIndex = 0
	}
	return r.actors[(turn-1+stageIndex)%len(r.actors)]
}
