// Package scheduler owns the periodic timer that drives the pipeline
// controller. One goroutine applies ticks in arrival order; every control
// surface (TUI keys, bridge requests) changes the run state through the
// scheduler rather than touching pipeline state directly, which keeps the
// single-writer discipline intact.
package scheduler
