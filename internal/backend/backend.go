package backend

import (
	"context"
	"slices"
)

// Capability names a kind of generation a backend can serve, e.g. "story"
// or "chat".
type Capability string

// Descriptor is the immutable registration record of a backend.
type Descriptor struct {
	id           string
	capabilities []Capability
	priority     int
	costWeight   float64
}

// NewDescriptor builds a Descriptor. Lower priority values are preferred.
func NewDescriptor(id string, capabilities []Capability, priority int, costWeight float64) Descriptor {
	caps := slices.Clone(capabilities)
	slices.Sort(caps)
	caps = slices.Compact(caps)

	return Descriptor{
		id:           id,
		capabilities: caps,
		priority:     priority,
		costWeight:   costWeight,
	}
}

// ID returns the backend identifier.
func (d Descriptor) ID() string {
	return d.id
}

// Priority returns the declared priority. Lower is preferred.
func (d Descriptor) Priority() int {
	return d.priority
}

// CostWeight returns the relative cost of calling this backend.
func (d Descriptor) CostWeight() float64 {
	return d.costWeight
}

// Capabilities returns a copy of the supported capability set.
func (d Descriptor) Capabilities() []Capability {
	return slices.Clone(d.capabilities)
}

// Supports reports whether the backend can serve capability c.
func (d Descriptor) Supports(c Capability) bool {
	_, found := slices.BinarySearch(d.capabilities, c)
	return found
}

// Adapter performs one provider call. The deadline travels on ctx and
// adapters must give up as soon as ctx is done.
type Adapter interface {
	Invoke(ctx context.Context, capability Capability, payload []byte) ([]byte, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, capability Capability, payload []byte) ([]byte, error)

// Invoke calls f.
func (f AdapterFunc) Invoke(ctx context.Context, capability Capability, payload []byte) ([]byte, error) {
	return f(ctx, capability, payload)
}

// Backend is a registered provider.
type Backend struct {
	desc    Descriptor
	adapter Adapter
}

// New pairs a descriptor with the adapter that serves it.
func New(desc Descriptor, adapter Adapter) *Backend {
	return &Backend{
		desc:    desc,
		adapter: adapter,
	}
}

// Descriptor returns the registration record.
func (b *Backend) Descriptor() Descriptor {
	return b.desc
}

// ID is shorthand for Descriptor().ID().
func (b *Backend) ID() string {
	return b.desc.id
}

// Invoke forwards to the adapter.
func (b *Backend) Invoke(ctx context.Context, capability Capability, payload []byte) ([]byte, error) {
	return b.adapter.Invoke(ctx, capability, payload)
}
