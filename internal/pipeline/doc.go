// Package pipeline implements the turn-based progression engine. A controller
// walks a fixed, ordered stage registry one stage at a time, accumulating
// progress on each tick, completing stages, and rolling the whole turn over
// once every stage has finished. Progress increments, queue adjustment, and
// actor rotation are injectable policies so hosts and tests can swap the
// default randomized behavior for deterministic ones.
package pipeline
