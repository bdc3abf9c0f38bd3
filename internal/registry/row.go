// Package registry mirrors the host data browser as a flat, display-ordered
// row model with per-row checkbox state. The model is rebuilt wholesale by
// Repopulate, never mutated incrementally; selection state and subscription
// lifecycles survive rebuilds by identity.
package registry

import "github.com/zjrosen/spmbatch/internal/provider"

// RowKind discriminates the three row shapes of the mirrored view.
type RowKind int

const (
	// RowResource is a file header row, selecting the whole resource.
	RowResource RowKind = iota
	// RowChannel is one data channel.
	RowChannel
	// RowSeparator closes each resource's block.
	RowSeparator
)

// Key uniquely identifies a selectable row within one snapshot. Header rows
// use provider.WholeResource as the channel.
type Key struct {
	Resource provider.ResourceID
	Channel  provider.ChannelID
}

// Row is one entry of the flattened row model.
type Row struct {
	Kind     RowKind
	Key      Key
	Checked  bool
	Label    string // file name for headers, channel title for channels
	Filename string
}

// Selectable reports whether the row carries a checkbox.
func (r Row) Selectable() bool {
	return r.Kind == RowResource || r.Kind == RowChannel
}

// Change is the payload published on the registry's event broker.
type Change struct {
	Key  Key
	Rect provider.Rect

	// Resources and Channels describe the new snapshot on rebuild events.
	Resources int
	Channels  int
}
