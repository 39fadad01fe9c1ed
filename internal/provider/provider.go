// Package provider defines the adapter contract between the scan
// orchestrator and external data sources. Adapters are opaque capabilities:
// given a target and a deadline they return raw findings or an error, and
// the core never looks past that contract.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Target types accepted by adapters.
const (
	TargetUsername = "username"
	TargetEmail    = "email"
	TargetPhone    = "phone"
)

// Target identifies what a scan is investigating.
type Target struct {
	Type  string
	Value string
}

// Signals are the per-finding confidence inputs an adapter reports.
type Signals struct {
	// Fields lists the corroborating data fields the source returned
	// (name, bio, avatar, follower_count, ...).
	Fields []string
	// Verified is set when the source itself marks the record verified.
	Verified bool
	// Trusted is set for sources on the known trusted-source list.
	Trusted bool
}

// RawFinding is the validated edge shape every adapter result is reduced to
// before it crosses into the core. Malformed provider payloads are rejected
// here, never propagated inward.
type RawFinding struct {
	Kind       string
	Severity   string
	URL        string
	Evidence   []Pair
	Tags       []string
	Signals    Signals
	ObservedAt time.Time
}

// Pair is one ordered key/value item of evidence.
type Pair struct {
	Key   string
	Value string
}

// Provider is one external data source. Invoke must honor ctx's deadline by
// aborting its own I/O; the orchestrator records a non-response past the
// deadline as a provider failure, not a crash.
type Provider interface {
	Name() string
	// Supports reports whether the adapter can search this target type.
	Supports(targetType string) bool
	Invoke(ctx context.Context, target Target) ([]RawFinding, error)
}

// Status describes one registered provider for the status API.
type Status struct {
	Name     string   `json:"name"`
	Targets  []string `json:"targets"`
	External bool     `json:"external"`
}

// Registry holds the named providers available for dispatch.
type Registry struct {
	providers map[string]Provider
	order     []string
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	if _, ok := r.providers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

// Names returns all registered provider names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select resolves the requested provider names against the registry,
// keeping only providers that support the target type. An empty request
// selects every supporting provider from defaults.
func (r *Registry) Select(requested, defaults []string, targetType string) ([]Provider, error) {
	names := requested
	if len(names) == 0 {
		names = defaults
	}
	var selected []Provider
	for _, name := range names {
		p, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		if p.Supports(targetType) {
			selected = append(selected, p)
		}
	}
	return selected, nil
}

// StatusAll lists every registered provider, for the /api/providers surface.
func (r *Registry) StatusAll() []Status {
	var statuses []Status
	for _, name := range r.order {
		p := r.providers[name]
		var targets []string
		for _, tt := range []string{TargetUsername, TargetEmail, TargetPhone} {
			if p.Supports(tt) {
				targets = append(targets, tt)
			}
		}
		_, external := p.(interface{ External() bool })
		statuses = append(statuses, Status{Name: name, Targets: targets, External: external})
	}
	return statuses
}
