package provider

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is a full in-process Provider implementation backing tests and the
// playground command. It behaves like a miniature data browser: resources
// and channels can be added and removed while the engine is running, ROI
// callbacks fire on NotifySelection, and processing functions dispatch to
// registered handlers.
type Memory struct {
	mu sync.Mutex

	order     []ResourceID
	resources map[ResourceID]*memResource

	settings map[string]any

	// RejectSetting, when set, vets every PushSetting call. Returning an
	// error makes the push fail, mimicking a host refusing a value.
	RejectSetting func(path string, value any) error

	subs    map[SubID]*memSub
	nextSub SubID

	// Functions maps processing function names to handlers. Unregistered
	// functions succeed as no-ops and are still recorded in Calls.
	Functions map[string]func(r ResourceID, c ChannelID) error

	// Calls records every RunFunction invocation in order.
	Calls []FunctionCall

	// Checkpoints records every undo checkpoint request in order.
	Checkpoints []FunctionCall

	// Gradients is the palette inventory returned by ListGradients.
	Gradients []string
}

// FunctionCall records one RunFunction or Checkpoint invocation.
type FunctionCall struct {
	Name     string
	Resource ResourceID
	Channel  ChannelID
}

type memResource struct {
	name      string
	order     []ChannelID
	channels  map[ChannelID]*memChannel
	container map[string]any
}

type memChannel struct {
	meta Meta
}

type memSub struct {
	resource ResourceID
	channel  ChannelID
	fn       func(Rect)
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{
		resources: make(map[ResourceID]*memResource),
		settings:  make(map[string]any),
		subs:      make(map[SubID]*memSub),
		Functions: make(map[string]func(ResourceID, ChannelID) error),
	}
}

// AddResource opens a new resource and returns its engine-assigned identity.
func (m *Memory) AddResource(name string) ResourceID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := ResourceID(uuid.NewString())
	m.resources[id] = &memResource{
		name:      name,
		channels:  make(map[ChannelID]*memChannel),
		container: make(map[string]any),
	}
	m.order = append(m.order, id)
	return id
}

// AddChannel adds a channel to a resource. Unknown resources panic; fixture
// construction is a programming error, not a runtime condition.
func (m *Memory) AddChannel(r ResourceID, c ChannelID, meta Meta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.resources[r]
	if !ok {
		panic(fmt.Sprintf("provider: AddChannel on unknown resource %s", r))
	}
	if _, exists := res.channels[c]; !exists {
		res.order = append(res.order, c)
	}
	res.channels[c] = &memChannel{meta: meta}
}

// RemoveChannel drops a channel, simulating the host closing it mid-session.
func (m *Memory) RemoveChannel(r ResourceID, c ChannelID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.resources[r]
	if !ok {
		return
	}
	delete(res.channels, c)
	for i, id := range res.order {
		if id == c {
			res.order = append(res.order[:i], res.order[i+1:]...)
			break
		}
	}
}

// ListResources implements Provider.
func (m *Memory) ListResources() []ResourceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ResourceID, len(m.order))
	copy(out, m.order)
	return out
}

// ResourceName implements Provider.
func (m *Memory) ResourceName(r ResourceID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[r]
	if !ok {
		return "", ErrResourceNotFound
	}
	return res.name, nil
}

// ListChannels implements Provider.
func (m *Memory) ListChannels(r ResourceID) ([]ChannelID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[r]
	if !ok {
		return nil, ErrResourceNotFound
	}
	out := make([]ChannelID, len(res.order))
	copy(out, res.order)
	return out, nil
}

// ChannelMeta implements Provider.
func (m *Memory) ChannelMeta(r ResourceID, c ChannelID) (Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, err := m.channel(r, c)
	if err != nil {
		return Meta{}, err
	}
	return ch.meta, nil
}

// SetChannelMeta replaces a channel's metadata, used by fixtures and by
// function handlers simulating host-side mutations.
func (m *Memory) SetChannelMeta(r ResourceID, c ChannelID, meta Meta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, err := m.channel(r, c); err == nil {
		ch.meta = meta
	}
}

// Subscribe implements Provider.
func (m *Memory) Subscribe(r ResourceID, c ChannelID, fn func(Rect)) (SubID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, err := m.channel(r, c)
	if err != nil {
		return 0, err
	}
	if ch.meta.Selection == nil {
		return 0, ErrNoSelection
	}
	m.nextSub++
	id := m.nextSub
	m.subs[id] = &memSub{resource: r, channel: c, fn: fn}
	return id, nil
}

// Unsubscribe implements Provider.
func (m *Memory) Unsubscribe(id SubID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrSubNotFound
	}
	delete(m.subs, id)
	return nil
}

// SubscriptionCount reports the number of live subscriptions, optionally
// narrowed to one channel. Used by reconciliation tests.
func (m *Memory) SubscriptionCount(r ResourceID, c ChannelID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.resource == r && s.channel == c {
			n++
		}
	}
	return n
}

// TotalSubscriptions reports all live subscriptions.
func (m *Memory) TotalSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// NotifySelection updates a channel's ROI and fires its subscribers.
func (m *Memory) NotifySelection(r ResourceID, c ChannelID, rect Rect) {
	m.mu.Lock()
	if ch, err := m.channel(r, c); err == nil {
		roi := rect
		ch.meta.Selection = &roi
	}
	var fns []func(Rect)
	for _, s := range m.subs {
		if s.resource == r && s.channel == c {
			fns = append(fns, s.fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(rect)
	}
}

// PushSetting implements Provider.
func (m *Memory) PushSetting(path string, value any) error {
	m.mu.Lock()
	reject := m.RejectSetting
	m.mu.Unlock()

	if reject != nil {
		if err := reject(path, value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSettingRejected, path, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[path] = value
	return nil
}

// Setting implements Provider.
func (m *Memory) Setting(path string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[path]
	return v, ok
}

// SetContainerValue implements Provider.
func (m *Memory) SetContainerValue(r ResourceID, path string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[r]
	if !ok {
		return ErrResourceNotFound
	}
	res.container[path] = value
	return nil
}

// ContainerValue implements Provider.
func (m *Memory) ContainerValue(r ResourceID, path string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[r]
	if !ok {
		return nil, false
	}
	v, ok := res.container[path]
	return v, ok
}

// RemoveContainerValue implements Provider.
func (m *Memory) RemoveContainerValue(r ResourceID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[r]
	if !ok {
		return ErrResourceNotFound
	}
	delete(res.container, path)
	return nil
}

// RunFunction implements Provider.
func (m *Memory) RunFunction(name string, r ResourceID, c ChannelID) error {
	m.mu.Lock()
	if _, ok := m.resources[r]; !ok {
		m.mu.Unlock()
		return ErrResourceNotFound
	}
	m.Calls = append(m.Calls, FunctionCall{Name: name, Resource: r, Channel: c})
	handler := m.Functions[name]
	m.mu.Unlock()

	if handler != nil {
		return handler(r, c)
	}
	return nil
}

// Checkpoint implements Provider.
func (m *Memory) Checkpoint(r ResourceID, c ChannelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[r]; !ok {
		return ErrResourceNotFound
	}
	m.Checkpoints = append(m.Checkpoints, FunctionCall{Name: "checkpoint", Resource: r, Channel: c})
	return nil
}

// CloseResource implements Provider.
func (m *Memory) CloseResource(r ResourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[r]; !ok {
		return ErrResourceNotFound
	}
	delete(m.resources, r)
	for i, id := range m.order {
		if id == r {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	for id, s := range m.subs {
		if s.resource == r {
			delete(m.subs, id)
		}
	}
	return nil
}

// ListGradients implements Provider.
func (m *Memory) ListGradients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Gradients) == 0 {
		return []string{"Gray", "Gwyddion.net", "Spectral", "Green", "Blue"}
	}
	out := make([]string, len(m.Gradients))
	copy(out, m.Gradients)
	return out
}

// channel looks up a channel; callers hold m.mu.
func (m *Memory) channel(r ResourceID, c ChannelID) (*memChannel, error) {
	res, ok := m.resources[r]
	if !ok {
		return nil, ErrResourceNotFound
	}
	ch, ok := res.channels[c]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}

var _ Provider = (*Memory)(nil)
