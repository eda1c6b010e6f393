package worker

import "errors"

// Sentinel errors for worker pool operations. They are returned unwrapped.
var (
	// ErrPoolNotStarted indicates Submit was called before Start
	ErrPoolNotStarted = errors.New("worker pool not started")

	// ErrPoolStopped indicates the pool no longer accepts work
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrPoolAlreadyStarted indicates Start was called twice
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrQueueFull indicates the work queue is at capacity and the item was dropped
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrNilProcessor indicates a nil processor function was provided
	ErrNilProcessor = errors.New("processor function cannot be nil")
)
