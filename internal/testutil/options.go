package testutil

import "github.com/zjrosen/spmbatch/internal/provider"

// channelData holds one channel to be added.
type channelData struct {
	id   provider.ChannelID
	meta provider.Meta
}

// Channel creates a channel fixture with sensible defaults: 256x256, full
// range over [0, 1], no ROI.
func Channel(id provider.ChannelID, opts ...ChannelOption) channelData {
	ch := channelData{
		id: id,
		meta: provider.Meta{
			Title:   "Topography",
			XRes:    256,
			YRes:    256,
			Range:   provider.Range{Min: 0, Max: 1, Kind: provider.RangeFull},
			DataMin: 0,
			DataMax: 1,
		},
	}
	for _, opt := range opts {
		opt(&ch)
	}
	return ch
}

// ChannelOption configures a channel fixture.
type ChannelOption func(*channelData)

// Title sets the channel title.
func Title(title string) ChannelOption {
	return func(c *channelData) { c.meta.Title = title }
}

// Resolution sets the pixel resolution.
func Resolution(xres, yres int) ChannelOption {
	return func(c *channelData) { c.meta.XRes = xres; c.meta.YRes = yres }
}

// DataRange sets the data extremes.
func DataRange(min, max float64) ChannelOption {
	return func(c *channelData) { c.meta.DataMin = min; c.meta.DataMax = max }
}

// FixedRange pins the display range.
func FixedRange(min, max float64) ChannelOption {
	return func(c *channelData) {
		c.meta.Range = provider.Range{Min: min, Max: max, Kind: provider.RangeFixed}
	}
}

// Selection gives the channel a live ROI object; channels without one
// cannot be subscribed to.
func Selection(x, y, w, h int) ChannelOption {
	return func(c *channelData) {
		c.meta.Selection = &provider.Rect{X: x, Y: y, Width: w, Height: h}
	}
}

// Log sets the channel's processing log text.
func Log(text string) ChannelOption {
	return func(c *channelData) { c.meta.Log = text }
}
