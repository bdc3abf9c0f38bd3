// Package provider defines the surface through which the engine talks to the
// host application's data browser. The engine never touches image data
// directly; everything flows through container settings, processing function
// invocations, and change-notification subscriptions.
package provider

import (
	"errors"
	"fmt"
)

// ResourceID is an opaque, engine-visible handle for an open file-like
// container. IDs are assigned by the provider and are never derived from
// content, so two files with identical names still get distinct identities.
type ResourceID string

// ChannelID identifies one data image inside a resource. The sentinel
// WholeResource means "the resource itself, expand to all channels".
type ChannelID int

// WholeResource is the channel sentinel used by resource header rows.
const WholeResource ChannelID = -1

// SubID identifies one live ROI change-notification subscription.
type SubID int64

// RangeKind selects how the display range of a channel is computed.
type RangeKind int

const (
	RangeFull  RangeKind = iota // range follows the data min/max
	RangeFixed                  // range pinned to explicit min/max
)

// Rect is a region-of-interest rectangle in pixel units.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Range is a channel's numeric display range.
type Range struct {
	Min  float64
	Max  float64
	Kind RangeKind
}

// Meta is a point-in-time description of one channel.
type Meta struct {
	Title string
	XRes  int
	YRes  int
	Range Range

	// Selection is the current ROI rectangle, nil when the channel has no
	// live selection object.
	Selection *Rect

	// OriginalMin/OriginalMax cache the pre-shift data extremes while a
	// zero-to-minimum shift is active; both nil otherwise.
	OriginalMin *float64
	OriginalMax *float64

	// DataMin/DataMax are the current data extremes.
	DataMin float64
	DataMax float64

	// Log is the channel's free-text processing log.
	Log string
}

// Provider is the host data-browser surface consumed by the engine.
//
// ListResources returns resources in display order; ListChannels returns
// channel ids in the resource's own order. Both are queried fresh at use
// time, never cached across a poll interval.
type Provider interface {
	ListResources() []ResourceID
	ResourceName(r ResourceID) (string, error)
	ListChannels(r ResourceID) ([]ChannelID, error)
	ChannelMeta(r ResourceID, c ChannelID) (Meta, error)

	// Subscribe attaches a ROI change callback to a channel's selection
	// object. It fails with ErrNoSelection when the channel has none.
	Subscribe(r ResourceID, c ChannelID, fn func(Rect)) (SubID, error)
	Unsubscribe(id SubID) error

	// PushSetting writes to the host-global settings surface; processing
	// function parameters live under "/module/<function>/<param>". The
	// host may reject a value, which surfaces as ErrSettingRejected.
	PushSetting(path string, value any) error
	Setting(path string) (any, bool)

	// SetContainerValue, ContainerValue and RemoveContainerValue expose a
	// resource's own key/value store ("/3/base/palette", "/3/log", ...).
	SetContainerValue(r ResourceID, path string, value any) error
	ContainerValue(r ResourceID, path string) (any, bool)
	RemoveContainerValue(r ResourceID, path string) error

	// RunFunction invokes a named host processing function against a
	// channel; parameters travel through the settings surface.
	RunFunction(name string, r ResourceID, c ChannelID) error

	// Checkpoint requests an undo checkpoint for a channel.
	Checkpoint(r ResourceID, c ChannelID) error

	// CloseResource closes an open file in the data browser.
	CloseResource(r ResourceID) error

	// ListGradients returns the host's color gradient inventory.
	ListGradients() []string
}

// Sentinel errors returned by provider implementations.
var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrNoSelection      = errors.New("channel has no selection object")
	ErrSubNotFound      = errors.New("subscription not found")
	ErrSettingRejected  = errors.New("setting rejected")
)

// Container key helpers, mirroring the host's per-channel key scheme.

// TitleKey is the channel title key.
func TitleKey(c ChannelID) string { return fmt.Sprintf("/%d/data/title", c) }

// PaletteKey is the channel gradient palette key.
func PaletteKey(c ChannelID) string { return fmt.Sprintf("/%d/base/palette", c) }

// RangeTypeKey is the display range kind key.
func RangeTypeKey(c ChannelID) string { return fmt.Sprintf("/%d/base/range-type", c) }

// BaseMinKey is the fixed range lower bound key.
func BaseMinKey(c ChannelID) string { return fmt.Sprintf("/%d/base/min", c) }

// BaseMaxKey is the fixed range upper bound key.
func BaseMaxKey(c ChannelID) string { return fmt.Sprintf("/%d/base/max", c) }

// OriginalMinKey caches the pre-shift data minimum while zero-to-min is active.
func OriginalMinKey(c ChannelID) string { return fmt.Sprintf("/%d/base/original_min", c) }

// OriginalMaxKey caches the pre-shift data maximum while zero-to-min is active.
func OriginalMaxKey(c ChannelID) string { return fmt.Sprintf("/%d/base/original_max", c) }

// LogKey is the channel processing log key.
func LogKey(c ChannelID) string { return fmt.Sprintf("/%d/log", c) }

// ModuleKey composes the settings path for a processing function parameter.
func ModuleKey(function, param string) string {
	return fmt.Sprintf("/module/%s/%s", function, param)
}
