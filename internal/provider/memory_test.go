package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ResourceLifecycle(t *testing.T) {
	m := NewMemory()
	r1 := m.AddResource("scan001.gwy")
	r2 := m.AddResource("scan002.gwy")

	assert.NotEqual(t, r1, r2, "identities are never content-derived")

	// Two files with the same name stay distinct.
	r3 := m.AddResource("scan001.gwy")
	assert.NotEqual(t, r1, r3)

	assert.Equal(t, []ResourceID{r1, r2, r3}, m.ListResources())

	name, err := m.ResourceName(r1)
	require.NoError(t, err)
	assert.Equal(t, "scan001.gwy", name)

	require.NoError(t, m.CloseResource(r2))
	assert.Equal(t, []ResourceID{r1, r3}, m.ListResources())
	_, err = m.ResourceName(r2)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestMemory_Channels(t *testing.T) {
	m := NewMemory()
	r := m.AddResource("scan.gwy")
	m.AddChannel(r, 0, Meta{Title: "Topography", XRes: 256, YRes: 256})
	m.AddChannel(r, 2, Meta{Title: "Phase"})

	chans, err := m.ListChannels(r)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{0, 2}, chans)

	meta, err := m.ChannelMeta(r, 0)
	require.NoError(t, err)
	assert.Equal(t, "Topography", meta.Title)

	_, err = m.ChannelMeta(r, 9)
	assert.ErrorIs(t, err, ErrChannelNotFound)

	m.RemoveChannel(r, 0)
	chans, err = m.ListChannels(r)
	require.NoError(t, err)
	assert.Equal(t, []ChannelID{2}, chans)
}

func TestMemory_Subscriptions(t *testing.T) {
	m := NewMemory()
	r := m.AddResource("scan.gwy")
	m.AddChannel(r, 0, Meta{Title: "Topography", Selection: &Rect{Width: 10, Height: 10}})
	m.AddChannel(r, 1, Meta{Title: "Phase"})

	// No ROI object, no subscription.
	_, err := m.Subscribe(r, 1, func(Rect) {})
	assert.ErrorIs(t, err, ErrNoSelection)

	var got Rect
	id, err := m.Subscribe(r, 0, func(rect Rect) { got = rect })
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalSubscriptions())

	m.NotifySelection(r, 0, Rect{X: 1, Y: 2, Width: 3, Height: 4})
	assert.Equal(t, Rect{X: 1, Y: 2, Width: 3, Height: 4}, got)

	// The notified rect becomes the channel's current selection.
	meta, err := m.ChannelMeta(r, 0)
	require.NoError(t, err)
	require.NotNil(t, meta.Selection)
	assert.Equal(t, 3, meta.Selection.Width)

	require.NoError(t, m.Unsubscribe(id))
	assert.ErrorIs(t, m.Unsubscribe(id), ErrSubNotFound)
	assert.Zero(t, m.TotalSubscriptions())
}

func TestMemory_CloseResourceDropsSubscriptions(t *testing.T) {
	m := NewMemory()
	r := m.AddResource("scan.gwy")
	m.AddChannel(r, 0, Meta{Selection: &Rect{Width: 5, Height: 5}})

	_, err := m.Subscribe(r, 0, func(Rect) {})
	require.NoError(t, err)
	require.NoError(t, m.CloseResource(r))
	assert.Zero(t, m.TotalSubscriptions())
}

func TestMemory_Settings(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.PushSetting("/module/crop/x", 10))
	v, ok := m.Setting("/module/crop/x")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	m.RejectSetting = func(path string, value any) error {
		return errors.New("vetoed")
	}
	err := m.PushSetting("/module/crop/y", 5)
	require.ErrorIs(t, err, ErrSettingRejected)
	_, ok = m.Setting("/module/crop/y")
	assert.False(t, ok)
}

func TestMemory_ContainerValues(t *testing.T) {
	m := NewMemory()
	r := m.AddResource("scan.gwy")

	require.NoError(t, m.SetContainerValue(r, PaletteKey(0), "Gray"))
	v, ok := m.ContainerValue(r, PaletteKey(0))
	require.True(t, ok)
	assert.Equal(t, "Gray", v)

	require.NoError(t, m.RemoveContainerValue(r, PaletteKey(0)))
	_, ok = m.ContainerValue(r, PaletteKey(0))
	assert.False(t, ok)

	assert.ErrorIs(t, m.SetContainerValue("nope", "/x", 1), ErrResourceNotFound)
}

func TestMemory_RunFunctionDispatch(t *testing.T) {
	m := NewMemory()
	r := m.AddResource("scan.gwy")
	m.AddChannel(r, 0, Meta{})

	ran := false
	m.Functions["level"] = func(ResourceID, ChannelID) error {
		ran = true
		return nil
	}

	require.NoError(t, m.RunFunction("level", r, 0))
	assert.True(t, ran)

	// Unregistered functions succeed and are still recorded.
	require.NoError(t, m.RunFunction("median", r, 0))
	require.Len(t, m.Calls, 2)
	assert.Equal(t, "median", m.Calls[1].Name)

	assert.ErrorIs(t, m.RunFunction("level", "nope", 0), ErrResourceNotFound)
}

func TestContainerKeys(t *testing.T) {
	assert.Equal(t, "/3/base/palette", PaletteKey(3))
	assert.Equal(t, "/0/data/title", TitleKey(0))
	assert.Equal(t, "/1/base/range-type", RangeTypeKey(1))
	assert.Equal(t, "/2/log", LogKey(2))
	assert.Equal(t, "/module/median/size", ModuleKey("median", "size"))
}
