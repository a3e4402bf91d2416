// Package worker defines the capability interface the engine dispatches to,
// a registry for looking up workers by capability, and the LLM-backed worker
// used for language tasks. Workers are external collaborators: they must
// honor cancellation promptly and return within the caller's deadline.
package worker

import (
	"context"

	"github.com/kairoai/engine/core/intent"
)

// Request describes one unit of work handed to a worker.
type Request struct {
	// TaskID identifies the unit for tracing.
	TaskID string

	// Description is the work to perform.
	Description string

	// Capability is the capability this request was dispatched under.
	Capability intent.Capability

	// Payload carries structured task parameters.
	Payload map[string]any

	// Permissions and Restrictions come from the subgoal's security context.
	Permissions  []string
	Restrictions []string

	// AllowedDomains are glob patterns for permitted external domains.
	AllowedDomains []string

	// Domains is the guard compiled from AllowedDomains before dispatch.
	// Workers making external calls consult it per domain.
	Domains *DomainGuard
}

// Result is a successful worker outcome.
type Result struct {
	// Output is the worker's result text.
	Output string

	// QualityScore is the worker's self-assessed quality, 0-1.
	QualityScore float64

	// NetworkCalls counts external calls made while executing.
	NetworkCalls int
}

// Worker is the capability interface implemented per worker type.
type Worker interface {
	// ID returns the unique worker identifier.
	ID() string

	// Capabilities returns the capabilities this worker serves.
	Capabilities() []intent.Capability

	// Execute performs the request. Implementations must return promptly on
	// context cancellation and classify backend failures as retryable or
	// permanent before surfacing them.
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a function into a Worker; used heavily in tests.
type Func struct {
	WorkerID string
	Caps     []intent.Capability
	Run      func(ctx context.Context, req Request) (*Result, error)
}

// ID returns the worker identifier.
func (f *Func) ID() string {
	return f.WorkerID
}

// Capabilities returns the served capabilities.
func (f *Func) Capabilities() []intent.Capability {
	return f.Caps
}

// Execute invokes the wrapped function.
func (f *Func) Execute(ctx context.Context, req Request) (*Result, error) {
	return f.Run(ctx, req)
}
