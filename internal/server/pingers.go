package server

import (
	"context"
	"fmt"
)

// pingable is anything that can report its own reachability.
type pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts any pingable dependency (the Qdrant-backed vector
// store, the embedding backend) to the Pinger interface used by
// GET /api/ready.
type DependencyPinger struct {
	// dep is the dependency to probe.
	dep pingable
	// name identifies the dependency in readiness responses (e.g. "qdrant").
	name string
}

// NewDependencyPinger constructs a DependencyPinger for the given dependency
// and label.
func NewDependencyPinger(dep pingable, name string) *DependencyPinger {
	return &DependencyPinger{dep: dep, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *DependencyPinger) Name() string { return p.name }

// Ping probes the dependency. Returns nil when reachable, a descriptive
// error otherwise.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.dep.Ping(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// MultiPinger aggregates one or more Pinger implementations and reports
// the combined readiness of all dependencies.
type MultiPinger struct {
	// pingers is the ordered list of dependency probes to run.
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger from the provided list of Pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping runs all registered probes sequentially and returns the first error
// encountered, or nil if all probes succeed.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }
