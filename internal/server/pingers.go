package server

import (
	"context"
	"fmt"
)

// pingable is satisfied by dependencies that expose a context-aware Ping.
// *rag.QdrantRouter and *catalog.Catalog both do.
type pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts any pingable dependency to the Pinger interface
// used by GET /api/ready.
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

// Ping delegates to the dependency's own reachability check.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.dep.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
