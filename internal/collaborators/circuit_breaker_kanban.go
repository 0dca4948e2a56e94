package collaborators

import (
	"context"

	"marcus/internal/coreerrors"
)

// CircuitBreakingKanban wraps a KanbanClient with a CircuitBreaker so a
// board that starts failing trips open instead of retry-storming the
// Reconciler: while the breaker is open, every attempt coreerrors.Retry
// makes fails immediately without reaching the board (Retry still waits
// its backoff between attempts).
type CircuitBreakingKanban struct {
	inner   KanbanClient
	breaker *coreerrors.CircuitBreaker
}

// NewCircuitBreakingKanban wraps inner with a breaker in the given state.
func NewCircuitBreakingKanban(inner KanbanClient, breaker *coreerrors.CircuitBreaker) *CircuitBreakingKanban {
	return &CircuitBreakingKanban{inner: inner, breaker: breaker}
}

func (k *CircuitBreakingKanban) Connect(ctx context.Context) error {
	return k.breaker.Execute(ctx, k.inner.Connect)
}

func (k *CircuitBreakingKanban) Disconnect(ctx context.Context) error {
	return k.breaker.Execute(ctx, k.inner.Disconnect)
}

func (k *CircuitBreakingKanban) ListTasks(ctx context.Context) ([]BoardTask, error) {
	var tasks []BoardTask
	err := k.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		tasks, innerErr = k.inner.ListTasks(ctx)
		return innerErr
	})
	return tasks, err
}

func (k *CircuitBreakingKanban) CreateTask(ctx context.Context, spec TaskSpec) (string, error) {
	var id string
	err := k.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		id, innerErr = k.inner.CreateTask(ctx, spec)
		return innerErr
	})
	return id, err
}

func (k *CircuitBreakingKanban) UpdateTask(ctx context.Context, id string, patch TaskPatch) error {
	return k.breaker.Execute(ctx, func(ctx context.Context) error {
		return k.inner.UpdateTask(ctx, id, patch)
	})
}

func (k *CircuitBreakingKanban) Assign(ctx context.Context, taskID, agentID string) error {
	return k.breaker.Execute(ctx, func(ctx context.Context) error {
		return k.inner.Assign(ctx, taskID, agentID)
	})
}

func (k *CircuitBreakingKanban) Comment(ctx context.Context, taskID, text string) error {
	return k.breaker.Execute(ctx, func(ctx context.Context) error {
		return k.inner.Comment(ctx, taskID, text)
	})
}
