package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Handler runs one attempt of a job. A nil error completes the job;
// anything else fails the attempt.
type Handler func(ctx context.Context, job *Handle) error

// Registration binds a handler to a type. Zero Concurrency means the type's default.
type Registration struct {
	Handler     Handler
	Concurrency int
}

// Registry is the read-only dispatch table used by the worker.
type Registry struct {
	entries map[string]Registration
	types   []string
}

// NewRegistry validates regs against the closed set of types and applies
// concurrency overrides keyed by type name. It fails if any type lacks a handler.
func NewRegistry(regs map[Type]Registration, overrides map[string]int) (*Registry, error) {
	var errs []error

	for t := range regs {
		if !t.Valid() {
			errs = append(errs, fmt.Errorf("unknown job type %q", t))
		}
	}
	for name := range overrides {
		if !Type(name).Valid() {
			errs = append(errs, fmt.Errorf("concurrency override for unknown job type %q", name))
		}
	}

	entries := make(map[string]Registration, len(All))
	for _, t := range All {
		reg, ok := regs[t]
		if !ok || reg.Handler == nil {
			errs = append(errs, fmt.Errorf("no handler registered for job type %s", t))
			continue
		}
		if reg.Concurrency == 0 {
			reg.Concurrency = t.DefaultConcurrency()
		}
		if c, ok := overrides[string(t)]; ok {
			reg.Concurrency = c
		}
		if reg.Concurrency < 1 {
			errs = append(errs, fmt.Errorf("job type %s: concurrency must be at least 1, got %d", t, reg.Concurrency))
			continue
		}
		entries[string(t)] = reg
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	types := make([]string, 0, len(entries))
	for name := range entries {
		types = append(types, name)
	}
	sort.Strings(types)

	return &Registry{entries: entries, types: types}, nil
}

// Handler returns the handler for a job type name.
func (r *Registry) Handler(jobType string) (Handler, bool) {
	reg, ok := r.entries[jobType]
	if !ok {
		return nil, false
	}
	return reg.Handler, true
}

// Concurrency returns the limit for a job type name, 1 for unknown types.
func (r *Registry) Concurrency(jobType string) int {
	if reg, ok := r.entries[jobType]; ok {
		return reg.Concurrency
	}
	return 1
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	return append([]string(nil), r.types...)
}
