package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/spmbatch/internal/batch"
	"github.com/zjrosen/spmbatch/internal/cachemanager"
	"github.com/zjrosen/spmbatch/internal/config"
	"github.com/zjrosen/spmbatch/internal/crop"
	"github.com/zjrosen/spmbatch/internal/export"
	"github.com/zjrosen/spmbatch/internal/history"
	"github.com/zjrosen/spmbatch/internal/log"
	"github.com/zjrosen/spmbatch/internal/proclog"
	"github.com/zjrosen/spmbatch/internal/provider"
	"github.com/zjrosen/spmbatch/internal/pubsub"
	"github.com/zjrosen/spmbatch/internal/registry"
	"github.com/zjrosen/spmbatch/internal/replay"
	"github.com/zjrosen/spmbatch/internal/watcher"
)

// ErrSessionActive is returned when a second session tries to start while
// the guard is held.
var ErrSessionActive = errors.New("a processing session is already active")

// BatchResult is the payload published on the batch event broker. Operation
// names the batch operation, or the macro file path on macro-loaded events.
type BatchResult struct {
	Operation string
	Report    batch.Report
}

// Session owns the registry, the reconciliation ticks, the loaded macro and
// the built-in operations. All registry access is serialized on an internal
// mutex; the ticks and the public methods share it.
type Session struct {
	provider provider.Provider
	cfg      config.Config

	mu       sync.Mutex
	registry *registry.Registry
	macro    proclog.Macro

	regEvents   *pubsub.Broker[registry.Change]
	batchEvents *pubsub.Broker[BatchResult]

	gradientCache cachemanager.CacheManager[string, []string]

	guard   *Guard
	store   *history.Store
	tracer  trace.Tracer
	now     func() time.Time
	watch   *watcher.Watcher
	watchCh <-chan struct{}

	cancel    context.CancelFunc
	loopDone  chan struct{}
	closeOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithGuard makes the session claim g for its lifetime.
func WithGuard(g *Guard) Option {
	return func(s *Session) { s.guard = g }
}

// WithHistory records every batch run in store. The caller keeps ownership
// of the store and closes it after the session.
func WithHistory(store *history.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithTracer wraps batch runs in spans from tr.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Session) { s.tracer = tr }
}

// WithClock overrides the session clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New builds a session over p and performs the initial reconciliation. When
// the config names a macro file it is parsed up front; a parse failure fails
// session construction rather than surfacing later mid-batch.
func New(p provider.Provider, cfg config.Config, opts ...Option) (*Session, error) {
	s := &Session{
		provider:    p,
		cfg:         cfg,
		regEvents:   pubsub.NewBroker[registry.Change](),
		batchEvents: pubsub.NewBroker[BatchResult](),
		tracer:      noop.NewTracerProvider().Tracer("noop"),
		now:         time.Now,
		gradientCache: cachemanager.NewInMemoryCacheManager[string, []string](
			"gradients", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.guard != nil && !s.guard.TryAcquire() {
		return nil, ErrSessionActive
	}

	s.registry = registry.New(s.regEvents)
	s.registry.Repopulate(p)

	if cfg.Macro.Path != "" {
		if err := s.loadMacro(cfg.Macro.Path); err != nil {
			s.releaseGuard()
			return nil, err
		}
	}

	return s, nil
}

// Start launches the reconciliation loop: a cheap identity diff on the
// change-check interval and a full rebuild on the refresh interval. Stops
// when ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.loopDone)

	refresh := time.NewTicker(s.cfg.Registry.RefreshInterval)
	defer refresh.Stop()
	check := time.NewTicker(s.cfg.Registry.ChangeCheckInterval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-refresh.C:
			s.mu.Lock()
			s.registry.Repopulate(s.provider)
			s.mu.Unlock()

		case <-check.C:
			s.mu.Lock()
			if s.registry.DetectChange(s.provider) {
				log.Debug(log.CatEngine, "browser changed, repopulating early")
				s.registry.Repopulate(s.provider)
			}
			s.mu.Unlock()

		case _, ok := <-s.watchCh:
			if !ok {
				s.watchCh = nil
				continue
			}
			s.mu.Lock()
			path := s.cfg.Macro.Path
			s.mu.Unlock()
			if err := s.LoadMacro(path); err != nil {
				log.ErrorErr(log.CatEngine, "macro reload failed", err, "path", path)
			}
		}
	}
}

// Rows returns the current row model.
func (s *Session) Rows() []registry.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Rows()
}

// Refresh forces a full reconciliation outside the tick schedule.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Repopulate(s.provider)
}

// SetChecked flips one checkbox.
func (s *Session) SetChecked(key registry.Key, checked bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.SetChecked(key, checked)
}

// SelectAll checks or unchecks every channel row.
func (s *Session) SelectAll(checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.SelectAll(checked)
}

// SelectNth applies a bulk-select option.
func (s *Session) SelectNth(option int, checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.SelectNth(option, checked)
}

// NthOptions returns the bulk-select option labels.
func (s *Session) NthOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.NthOptions()
}

// Macro returns the currently loaded macro.
func (s *Session) Macro() proclog.Macro {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(proclog.Macro, len(s.macro))
	copy(out, s.macro)
	return out
}

// LoadMacro parses path and installs the result as the session macro.
func (s *Session) LoadMacro(path string) error {
	macro, err := proclog.ParseFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.macro = macro
	s.cfg.Macro.Path = path
	s.mu.Unlock()
	log.Info(log.CatEngine, "macro loaded", "path", path, "entries", len(macro))
	s.batchEvents.Publish(pubsub.MacroLoadedEvent, BatchResult{Operation: path})
	return nil
}

// loadMacro parses the configured macro file and starts the auto-reload
// watcher. Called once from New.
func (s *Session) loadMacro(path string) error {
	macro, err := proclog.ParseFile(path)
	if err != nil {
		return fmt.Errorf("loading macro: %w", err)
	}
	s.macro = macro

	if s.cfg.Macro.AutoReload {
		w, err := watcher.New(watcher.Config{
			LogPath:     path,
			DebounceDur: s.cfg.Macro.ReloadDebounce,
		})
		if err != nil {
			return fmt.Errorf("watching macro file: %w", err)
		}
		ch, err := w.Start()
		if err != nil {
			_ = w.Stop()
			return fmt.Errorf("watching macro file: %w", err)
		}
		s.watch = w
		s.watchCh = ch
	}
	return nil
}

// RegistryEvents exposes rebuild and ROI-change notifications.
func (s *Session) RegistryEvents() *pubsub.Broker[registry.Change] {
	return s.regEvents
}

// BatchEvents exposes batch completion notifications.
func (s *Session) BatchEvents() *pubsub.Broker[BatchResult] {
	return s.batchEvents
}

// RunBatch executes op over the current selection, expanding header rows to
// their channels at execution time.
func (s *Session) RunBatch(ctx context.Context, name string, op batch.Operation) batch.Report {
	ctx, span := s.tracer.Start(ctx, "batch."+name)
	defer span.End()
	started := s.now()

	s.mu.Lock()
	rows := s.registry.Rows()
	report := batch.Run(rows, batch.Selected, batch.ExpandChannels(s.provider), op)
	s.mu.Unlock()

	s.finishRun(ctx, span, name, report, started)
	return report
}

// RunReplay replays the loaded macro over the current selection.
func (s *Session) RunReplay(ctx context.Context) (batch.Report, error) {
	macro := s.Macro()
	if len(macro) == 0 {
		return batch.Report{}, fmt.Errorf("no macro loaded")
	}
	return s.RunBatch(ctx, "replay", replay.Operation(s.provider, macro)), nil
}

// RunCrop validates spec against every selected channel, applies the
// four-way conflict protocol, and crops the surviving channels. The second
// return value is false when the decision callback aborted the run.
func (s *Session) RunCrop(ctx context.Context, spec crop.Spec, decide crop.DecisionFunc, surface crop.Surfacer) (batch.Report, bool) {
	ctx, span := s.tracer.Start(ctx, "batch.crop")
	defer span.End()
	started := s.now()

	selected, targets, preErrors := s.expandSelection()
	if selected == 0 {
		return batch.Report{}, true
	}

	valid, conflicts := crop.Validate(s.provider, targets, spec)
	if !crop.Resolve(conflicts, decide, surface) {
		span.SetStatus(codes.Error, "aborted by conflict decision")
		return batch.Report{Selected: selected}, false
	}

	report := batch.Apply(selected, valid, s.cropOp(spec))
	report.Errors = append(preErrors, report.Errors...)

	s.finishRun(ctx, span, "crop", report, started)
	return report, true
}

// RunExport plans collision-free output paths for the current selection and
// saves each group through the host. Channels are given a processing log
// and an explicit range type first so the written file round-trips.
func (s *Session) RunExport(ctx context.Context, dir string) batch.Report {
	ctx, span := s.tracer.Start(ctx, "batch.export")
	defer span.End()
	started := s.now()

	selected, targets, preErrors := s.expandSelection()
	report := batch.Report{Selected: selected, Errors: preErrors}
	if selected == 0 {
		return report
	}

	if dir == "" {
		dir = s.cfg.Export.Dir
	}
	groups := export.Plan(targets, dir, s.cfg.Export.Extension, func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})

	for _, g := range groups {
		report.Total++
		if err := s.saveGroup(g); err != nil {
			report.Errors = append(report.Errors, batch.ItemError{
				Target: batch.Target{Resource: g.Resource, Channel: provider.WholeResource, Filename: g.BaseName},
				Err:    err,
			})
			log.ErrorErr(log.CatExport, "save failed", err, "path", g.OutputPath)
			continue
		}
		report.Succeeded++
	}

	s.finishRun(ctx, span, "export", report, started)
	return report
}

// saveGroup writes one planned group through the host save function.
func (s *Session) saveGroup(g export.Group) error {
	p := s.provider
	for _, ch := range g.Channels {
		logKey := provider.LogKey(ch)
		if _, ok := p.ContainerValue(g.Resource, logKey); !ok {
			if err := p.SetContainerValue(g.Resource, logKey, ""); err != nil {
				return err
			}
		}
		rangeKey := provider.RangeTypeKey(ch)
		if _, ok := p.ContainerValue(g.Resource, rangeKey); !ok {
			if err := p.SetContainerValue(g.Resource, rangeKey, int(provider.RangeFull)); err != nil {
				return err
			}
		}
	}

	if err := p.PushSetting(provider.ModuleKey("save", "path"), g.OutputPath); err != nil {
		return err
	}
	if err := p.RunFunction("save", g.Resource, provider.WholeResource); err != nil {
		return fmt.Errorf("saving %s: %w", g.OutputPath, err)
	}
	log.Info(log.CatExport, "saved", "path", g.OutputPath, "channels", len(g.Channels))
	return nil
}

// expandSelection snapshots the current selection as concrete channel
// targets. Header rows are expanded through a fresh provider query; an
// expansion failure becomes a pre-recorded item error for that header.
func (s *Session) expandSelection() (int, []batch.Target, []batch.ItemError) {
	s.mu.Lock()
	rows := s.registry.Rows()
	s.mu.Unlock()

	expand := batch.ExpandChannels(s.provider)

	var (
		selected int
		targets  []batch.Target
		errs     []batch.ItemError
	)
	for _, row := range rows {
		if !batch.Selected(row) {
			continue
		}
		selected++
		t := batch.Target{
			Resource: row.Key.Resource,
			Channel:  row.Key.Channel,
			Title:    row.Label,
			Filename: row.Filename,
		}
		if t.Channel == provider.WholeResource {
			expanded, err := expand(t)
			if err != nil {
				errs = append(errs, batch.ItemError{Target: t, Err: err})
				continue
			}
			targets = append(targets, expanded...)
			continue
		}
		targets = append(targets, t)
	}
	return selected, targets, errs
}

// finishRun publishes, records and annotates one completed batch run.
func (s *Session) finishRun(ctx context.Context, span trace.Span, name string, report batch.Report, started time.Time) {
	span.SetAttributes(
		attribute.Int("batch.selected", report.Selected),
		attribute.Int("batch.total", report.Total),
		attribute.Int("batch.succeeded", report.Succeeded),
		attribute.String("batch.outcome", report.Outcome().String()),
	)
	if report.Outcome() == batch.OutcomeTotalFailure {
		span.SetStatus(codes.Error, "all items failed")
	}

	s.batchEvents.Publish(pubsub.BatchFinishedEvent, BatchResult{Operation: name, Report: report})

	if s.store != nil {
		if _, err := s.store.Record(name, report, started, s.now()); err != nil {
			log.ErrorErr(log.CatHistory, "recording run failed", err, "operation", name)
		}
	}
}

// Close tears down the session: ticks stop, the macro watcher stops, every
// ROI subscription is disconnected and the row model is cleared. Safe to
// call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.loopDone
		}
		if s.watch != nil {
			_ = s.watch.Stop()
		}

		s.mu.Lock()
		s.registry.Close(s.provider)
		s.macro = nil
		s.mu.Unlock()

		s.batchEvents.Publish(pubsub.SessionClosedEvent, BatchResult{})
		s.regEvents.Close()
		s.batchEvents.Close()
		s.releaseGuard()
		log.Info(log.CatEngine, "session closed")
	})
}

func (s *Session) releaseGuard() {
	if s.guard != nil {
		s.guard.Release()
	}
}
