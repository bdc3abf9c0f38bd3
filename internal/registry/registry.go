package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/zjrosen/spmbatch/internal/log"
	"github.com/zjrosen/spmbatch/internal/provider"
	"github.com/zjrosen/spmbatch/internal/pubsub"
)

// Registry holds the mirrored row model, the checkbox state embedded in it,
// and the live ROI subscriptions. It is not safe for concurrent use; the
// owning session serializes all calls on one goroutine.
type Registry struct {
	rows    []Row
	subs    []subscription
	lastIDs map[provider.ResourceID]struct{}
	options []string
	events  *pubsub.Broker[Change]
	closed  atomic.Bool
}

type subscription struct {
	id  provider.SubID
	key Key
}

// New creates an empty registry. The broker may be nil when no observer
// cares about change events.
func New(events *pubsub.Broker[Change]) *Registry {
	return &Registry{
		lastIDs: make(map[provider.ResourceID]struct{}),
		events:  events,
	}
}

// Repopulate rebuilds the row model from a fresh provider snapshot.
//
// Checkbox state is carried over by (resource, channel) identity; keys
// absent from the new snapshot are dropped. Every existing subscription is
// torn down before new ones are created, so each channel with a live ROI
// object ends up with exactly one subscription. Repopulate never fails:
// entities that vanish mid-scan are omitted and individual provider errors
// are logged and swallowed.
func (g *Registry) Repopulate(p provider.Provider) {
	prior := g.selectionSnapshot()
	g.disconnectAll(p)

	resources := p.ListResources()

	var (
		rows       []Row
		ids        = make(map[provider.ResourceID]struct{}, len(resources))
		maxPerRes  int
		totalChans int
	)

	for idx, res := range resources {
		name, err := p.ResourceName(res)
		if err != nil {
			log.Warn(log.CatRegistry, "resource vanished mid-scan", "resource", res)
			continue
		}
		if name == "" {
			name = "Unknown SPM File"
		}

		channels, err := p.ListChannels(res)
		if err != nil {
			log.Warn(log.CatRegistry, "listing channels failed", "resource", res, "error", err)
			continue
		}
		if len(channels) > maxPerRes {
			maxPerRes = len(channels)
		}

		headerKey := Key{Resource: res, Channel: provider.WholeResource}
		rows = append(rows, Row{
			Kind:     RowResource,
			Key:      headerKey,
			Checked:  prior[headerKey],
			Label:    fmt.Sprintf("File%d: %s", idx+1, name),
			Filename: name,
		})
		ids[res] = struct{}{}

		for _, ch := range channels {
			meta, err := p.ChannelMeta(res, ch)
			if err != nil {
				log.Warn(log.CatRegistry, "channel vanished mid-scan",
					"resource", res, "channel", ch)
				continue
			}
			title := meta.Title
			if title == "" {
				title = fmt.Sprintf("Data %d", ch)
			}

			key := Key{Resource: res, Channel: ch}
			rows = append(rows, Row{
				Kind:     RowChannel,
				Key:      key,
				Checked:  prior[key],
				Label:    title,
				Filename: name,
			})
			totalChans++

			if meta.Selection != nil {
				g.subscribe(p, key)
			}
		}

		rows = append(rows, Row{Kind: RowSeparator})
	}

	g.rows = rows
	g.lastIDs = ids
	g.options = nthOptions(maxPerRes)

	log.Info(log.CatRegistry, "repopulated",
		"resources", len(ids), "channels", totalChans, "subscriptions", len(g.subs))

	if g.events != nil {
		g.events.Publish(pubsub.RepopulatedEvent, Change{
			Resources: len(ids),
			Channels:  totalChans,
		})
	}
}

// DetectChange compares the provider's current resource identities with the
// snapshot seen by the last Repopulate. It has no side effects and returns
// false when nothing changed, so polling it is idempotent.
func (g *Registry) DetectChange(p provider.Provider) bool {
	return identityChanged(g.lastIDs, p.ListResources())
}

// identityChanged reports whether the current identity set differs from the
// previous one in size or membership.
func identityChanged(prev map[provider.ResourceID]struct{}, current []provider.ResourceID) bool {
	if len(current) != len(prev) {
		return true
	}
	for _, id := range current {
		if _, ok := prev[id]; !ok {
			return true
		}
	}
	return false
}

// Rows returns a copy of the current row model.
func (g *Registry) Rows() []Row {
	out := make([]Row, len(g.rows))
	copy(out, g.rows)
	return out
}

// Checked reports the checkbox state for a key; absent keys are unchecked.
func (g *Registry) Checked(key Key) bool {
	for _, row := range g.rows {
		if row.Selectable() && row.Key == key {
			return row.Checked
		}
	}
	return false
}

// SetChecked flips one row's checkbox. Returns false when the key is not in
// the current snapshot.
func (g *Registry) SetChecked(key Key, checked bool) bool {
	for i := range g.rows {
		if g.rows[i].Selectable() && g.rows[i].Key == key {
			g.rows[i].Checked = checked
			return true
		}
	}
	return false
}

// SelectAll checks or unchecks every channel row, leaving headers alone.
func (g *Registry) SelectAll(checked bool) {
	for i := range g.rows {
		if g.rows[i].Kind == RowChannel {
			g.rows[i].Checked = checked
		}
	}
}

// SelectNth sets the checkbox of the option-th channel (1-based option
// index into NthOptions) of every resource. Option 0 is the reserved
// placeholder and is a no-op.
func (g *Registry) SelectNth(option int, checked bool) {
	if option <= 0 {
		return
	}
	target := option - 1

	pos := -1
	for i := range g.rows {
		switch g.rows[i].Kind {
		case RowResource:
			pos = -1
		case RowChannel:
			pos++
			if pos == target {
				g.rows[i].Checked = checked
			}
		case RowSeparator:
			pos = -1
		}
	}
}

// NthOptions returns the bulk-select option labels. Index 0 is a
// placeholder; index i selects the i-th channel of every resource. The list
// is sized to the largest channel count seen by the last Repopulate.
func (g *Registry) NthOptions() []string {
	out := make([]string, len(g.options))
	copy(out, g.options)
	return out
}

// SubscriptionCount reports the number of live ROI subscriptions.
func (g *Registry) SubscriptionCount() int {
	return len(g.subs)
}

// Close tears down all subscriptions and clears the model. Idempotent; ROI
// callbacks arriving after Close are ignored.
func (g *Registry) Close(p provider.Provider) {
	g.closed.Store(true)
	g.disconnectAll(p)
	g.rows = nil
	g.lastIDs = make(map[provider.ResourceID]struct{})
	g.options = nil
}

// subscribe attaches the ROI callback for one channel and records the
// handle. Failures are logged and swallowed.
func (g *Registry) subscribe(p provider.Provider, key Key) {
	id, err := p.Subscribe(key.Resource, key.Channel, func(rect provider.Rect) {
		if g.closed.Load() {
			return
		}
		if g.events != nil {
			g.events.Publish(pubsub.SelectionChangedEvent, Change{Key: key, Rect: rect})
		}
	})
	if err != nil {
		log.Debug(log.CatRegistry, "subscribe failed",
			"resource", key.Resource, "channel", key.Channel, "error", err)
		return
	}
	g.subs = append(g.subs, subscription{id: id, key: key})
}

// disconnectAll tears down every recorded subscription, best-effort.
func (g *Registry) disconnectAll(p provider.Provider) {
	for _, sub := range g.subs {
		if err := p.Unsubscribe(sub.id); err != nil {
			log.Debug(log.CatRegistry, "unsubscribe failed",
				"resource", sub.key.Resource, "channel", sub.key.Channel, "error", err)
		}
	}
	g.subs = nil
}

// selectionSnapshot captures checkbox state keyed by identity before a
// rebuild discards the old rows.
func (g *Registry) selectionSnapshot() map[Key]bool {
	state := make(map[Key]bool)
	for _, row := range g.rows {
		if row.Selectable() {
			state[row.Key] = row.Checked
		}
	}
	return state
}
