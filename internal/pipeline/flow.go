package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Stage is a named transformation unit with a fixed input and output type.
// The variant of each stage (for example single- versus pair-input
// detection) is chosen once at flow-assembly time.
type Stage interface {
	Name() string
	Run(ctx context.Context, in interface{}) (interface{}, error)
}

// Flow is one rule's ordered pipeline of stages plus the key its first
// stage resolves its input through.
type Flow struct {
	name     string
	inputKey string
	stages   []Stage
	logger   *slog.Logger
}

// NewFlow creates an empty Flow addressed by the given input key.
func NewFlow(name, inputKey string, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Flow{name: name, inputKey: inputKey, logger: logger}
}

// Name returns the flow name.
func (f *Flow) Name() string { return f.name }

// InputKey returns the key the first stage's input is resolved through.
func (f *Flow) InputKey() string { return f.inputKey }

// Add appends a stage and returns the flow for chaining.
func (f *Flow) Add(s Stage) *Flow {
	f.stages = append(f.stages, s)
	return f
}

// Stages returns the assembled stages in order.
func (f *Flow) Stages() []Stage { return f.stages }

// Run resolves the first stage's input through the cache, then executes
// each stage in order, feeding every stage the prior stage's output.
// Cancellation of ctx halts the remaining stages.
func (f *Flow) Run(ctx context.Context, cache *Cache) (interface{}, error) {
	in, ok := cache.Get(f.inputKey)
	if !ok {
		return nil, fmt.Errorf("flow %s: no cache entry under key %q", f.name, f.inputKey)
	}
	cache.Remove(f.inputKey)

	for _, stage := range f.stages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("flow %s cancelled before stage %s: %w", f.name, stage.Name(), err)
		}
		start := time.Now()
		out, err := stage.Run(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("flow %s, stage %s: %w", f.name, stage.Name(), err)
		}
		f.logger.Debug("stage finished",
			"flow", f.name, "stage", stage.Name(), "elapsed", time.Since(start))
		in = out
	}
	return in, nil
}
