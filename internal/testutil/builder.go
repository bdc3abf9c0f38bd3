// Package testutil provides fixture builders for in-memory provider trees.
package testutil

import (
	"testing"

	"github.com/zjrosen/spmbatch/internal/provider"
)

// resourceData holds one resource and its channels to be added.
type resourceData struct {
	name     string
	channels []channelData
}

// Builder accumulates a provider tree and installs it in order.
type Builder struct {
	t         *testing.T
	p         *provider.Memory
	resources []resourceData
	gradients []string
}

// NewBuilder creates a builder over a fresh in-memory provider.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, p: provider.NewMemory()}
}

// WithResource adds a resource with its channels.
func (b *Builder) WithResource(name string, channels ...channelData) *Builder {
	b.resources = append(b.resources, resourceData{name: name, channels: channels})
	return b
}

// WithGradients replaces the provider's palette inventory.
func (b *Builder) WithGradients(names ...string) *Builder {
	b.gradients = names
	return b
}

// Build installs the accumulated tree and returns the provider plus the
// resource IDs in insertion order.
func (b *Builder) Build() (*provider.Memory, []provider.ResourceID) {
	b.t.Helper()

	if len(b.gradients) > 0 {
		b.p.Gradients = b.gradients
	}

	ids := make([]provider.ResourceID, 0, len(b.resources))
	for _, res := range b.resources {
		id := b.p.AddResource(res.name)
		for _, ch := range res.channels {
			b.p.AddChannel(id, ch.id, ch.meta)
		}
		ids = append(ids, id)
	}
	return b.p, ids
}
