package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/spmbatch/internal/provider"
	"github.com/zjrosen/spmbatch/internal/pubsub"
)

func twoFileProvider(t *testing.T) (*provider.Memory, provider.ResourceID, provider.ResourceID) {
	t.Helper()
	p := provider.NewMemory()
	r1 := p.AddResource("scan001.gwy")
	p.AddChannel(r1, 0, provider.Meta{
		Title: "Topography", XRes: 256, YRes: 256,
		Selection: &provider.Rect{X: 0, Y: 0, Width: 10, Height: 10},
	})
	p.AddChannel(r1, 1, provider.Meta{Title: "Phase", XRes: 256, YRes: 256})
	r2 := p.AddResource("scan002.gwy")
	p.AddChannel(r2, 0, provider.Meta{Title: "Topography", XRes: 512, YRes: 512})
	return p, r1, r2
}

func TestRepopulate_BuildsRowModel(t *testing.T) {
	p, r1, r2 := twoFileProvider(t)
	g := New(nil)
	g.Repopulate(p)

	rows := g.Rows()
	require.Len(t, rows, 7) // 2 headers + 3 channels + 2 separators

	assert.Equal(t, RowResource, rows[0].Kind)
	assert.Equal(t, "File1: scan001.gwy", rows[0].Label)
	assert.Equal(t, Key{Resource: r1, Channel: provider.WholeResource}, rows[0].Key)

	assert.Equal(t, RowChannel, rows[1].Kind)
	assert.Equal(t, "Topography", rows[1].Label)
	assert.Equal(t, RowChannel, rows[2].Kind)
	assert.Equal(t, "Phase", rows[2].Label)
	assert.Equal(t, RowSeparator, rows[3].Kind)

	assert.Equal(t, "File2: scan002.gwy", rows[4].Label)
	assert.Equal(t, Key{Resource: r2, Channel: provider.WholeResource}, rows[4].Key)
}

func TestRepopulate_PreservesSelectionByIdentity(t *testing.T) {
	p, r1, r2 := twoFileProvider(t)
	g := New(nil)
	g.Repopulate(p)

	require.True(t, g.SetChecked(Key{Resource: r1, Channel: 1}, true))
	require.True(t, g.SetChecked(Key{Resource: r2, Channel: provider.WholeResource}, true))

	// A third file appearing must not disturb existing checkboxes.
	r3 := p.AddResource("scan003.gwy")
	p.AddChannel(r3, 0, provider.Meta{Title: "Current"})
	g.Repopulate(p)

	assert.True(t, g.Checked(Key{Resource: r1, Channel: 1}))
	assert.True(t, g.Checked(Key{Resource: r2, Channel: provider.WholeResource}))
	assert.False(t, g.Checked(Key{Resource: r3, Channel: 0}))
}

func TestRepopulate_DropsVanishedEntities(t *testing.T) {
	p, r1, r2 := twoFileProvider(t)
	g := New(nil)
	g.Repopulate(p)
	g.SetChecked(Key{Resource: r2, Channel: 0}, true)

	require.NoError(t, p.CloseResource(r2))
	g.Repopulate(p)

	for _, row := range g.Rows() {
		assert.NotEqual(t, r2, row.Key.Resource)
	}
	// The checkbox state died with the resource; reopening a file with the
	// same name gets a fresh identity and a fresh checkbox.
	r2b := p.AddResource("scan002.gwy")
	p.AddChannel(r2b, 0, provider.Meta{Title: "Topography"})
	g.Repopulate(p)
	assert.False(t, g.Checked(Key{Resource: r2b, Channel: 0}))
	_ = r1
}

func TestRepopulate_SubscriptionLifecycle(t *testing.T) {
	p, r1, _ := twoFileProvider(t)
	g := New(nil)

	g.Repopulate(p)
	assert.Equal(t, 1, g.SubscriptionCount())
	assert.Equal(t, 1, p.SubscriptionCount(r1, 0))

	// Rebuilds never accumulate subscriptions.
	g.Repopulate(p)
	g.Repopulate(p)
	assert.Equal(t, 1, g.SubscriptionCount())
	assert.Equal(t, 1, p.SubscriptionCount(r1, 0))
	assert.Equal(t, 1, p.TotalSubscriptions())
}

func TestRepopulate_PublishesEvent(t *testing.T) {
	p, _, _ := twoFileProvider(t)
	broker := pubsub.NewBroker[Change]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	g := New(broker)
	g.Repopulate(p)

	select {
	case ev := <-events:
		assert.Equal(t, pubsub.RepopulatedEvent, ev.Type)
		assert.Equal(t, 2, ev.Payload.Resources)
		assert.Equal(t, 3, ev.Payload.Channels)
	case <-time.After(time.Second):
		t.Fatal("no repopulate event published")
	}
}

func TestSelectionChange_FlowsThroughBroker(t *testing.T) {
	p, r1, _ := twoFileProvider(t)
	broker := pubsub.NewBroker[Change]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	g := New(broker)
	g.Repopulate(p)

	// Drain the rebuild event first.
	<-events

	p.NotifySelection(r1, 0, provider.Rect{X: 5, Y: 6, Width: 20, Height: 30})
	select {
	case ev := <-events:
		assert.Equal(t, pubsub.SelectionChangedEvent, ev.Type)
		assert.Equal(t, Key{Resource: r1, Channel: 0}, ev.Payload.Key)
		assert.Equal(t, provider.Rect{X: 5, Y: 6, Width: 20, Height: 30}, ev.Payload.Rect)
	case <-time.After(time.Second):
		t.Fatal("no selection event published")
	}
}

func TestDetectChange(t *testing.T) {
	p, _, r2 := twoFileProvider(t)
	g := New(nil)
	g.Repopulate(p)

	assert.False(t, g.DetectChange(p))
	// DetectChange is pure; asking twice changes nothing.
	assert.False(t, g.DetectChange(p))

	require.NoError(t, p.CloseResource(r2))
	assert.True(t, g.DetectChange(p))
	assert.True(t, g.DetectChange(p))

	g.Repopulate(p)
	assert.False(t, g.DetectChange(p))
}

func TestSelectAll_ChannelsOnly(t *testing.T) {
	p, r1, _ := twoFileProvider(t)
	g := New(nil)
	g.Repopulate(p)

	g.SelectAll(true)
	for _, row := range g.Rows() {
		switch row.Kind {
		case RowChannel:
			assert.True(t, row.Checked)
		case RowResource:
			assert.False(t, row.Checked, "headers stay unchecked")
		}
	}

	g.SelectAll(false)
	assert.False(t, g.Checked(Key{Resource: r1, Channel: 0}))
}

func TestSelectNth(t *testing.T) {
	p, r1, r2 := twoFileProvider(t)
	g := New(nil)
	g.Repopulate(p)

	// Option 0 is the placeholder and must do nothing.
	g.SelectNth(0, true)
	assert.False(t, g.Checked(Key{Resource: r1, Channel: 0}))

	// Option 2 checks the second channel of every resource that has one.
	g.SelectNth(2, true)
	assert.False(t, g.Checked(Key{Resource: r1, Channel: 0}))
	assert.True(t, g.Checked(Key{Resource: r1, Channel: 1}))
	assert.False(t, g.Checked(Key{Resource: r2, Channel: 0}))

	g.SelectNth(1, true)
	assert.True(t, g.Checked(Key{Resource: r1, Channel: 0}))
	assert.True(t, g.Checked(Key{Resource: r2, Channel: 0}))
}

func TestNthOptions(t *testing.T) {
	p, _, _ := twoFileProvider(t)
	g := New(nil)
	g.Repopulate(p)

	options := g.NthOptions()
	require.Len(t, options, 3) // placeholder + widest resource (2 channels)
	assert.Equal(t, Placeholder, options[0])
	assert.Equal(t, "First Datachannels", options[1])
	assert.Equal(t, "Second Datachannels", options[2])
}

func TestClose_Idempotent(t *testing.T) {
	p, _, _ := twoFileProvider(t)
	g := New(nil)
	g.Repopulate(p)
	require.Equal(t, 1, p.TotalSubscriptions())

	g.Close(p)
	assert.Zero(t, p.TotalSubscriptions())
	assert.Empty(t, g.Rows())

	g.Close(p)
	assert.Zero(t, p.TotalSubscriptions())
}

func TestOrdinal(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{1, "First"}, {3, "Third"}, {8, "Eighth"},
		{9, "9th"}, {11, "11th"}, {12, "12th"}, {13, "13th"},
		{21, "21st"}, {22, "22nd"}, {23, "23rd"}, {24, "24th"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ordinal(tt.n))
	}
}
