// Package core provides the typed stage contract and error taxonomy shared by
// every pipeline stage.
package core

import "context"

// Stage is a single step of the pipeline with one input type and one output
// type. Implementations hold no state that outlives a call to Execute.
type Stage[In, Out any] interface {
	// Name returns the short stage identifier used in logs (e.g. "render").
	Name() string

	// Execute performs the stage's work. Errors carry one of the kinds
	// declared in errors.go.
	Execute(ctx context.Context, in In) (Out, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc[In, Out any] struct {
	StageName string
	Fn        func(ctx context.Context, in In) (Out, error)
}

// Name returns the stage identifier.
func (s StageFunc[In, Out]) Name() string { return s.StageName }

// Execute calls the wrapped function.
func (s StageFunc[In, Out]) Execute(ctx context.Context, in In) (Out, error) {
	return s.Fn(ctx, in)
}
