package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/spmbatch/internal/batch"
	"github.com/zjrosen/spmbatch/internal/cachemanager"
	"github.com/zjrosen/spmbatch/internal/crop"
	"github.com/zjrosen/spmbatch/internal/log"
	"github.com/zjrosen/spmbatch/internal/provider"
)

const gradientInventoryKey = "inventory"

// gradients returns the host's gradient list through the session cache. The
// inventory only changes when the user installs palettes, so a short TTL is
// plenty.
func (s *Session) gradients(ctx context.Context) ([]string, error) {
	return cachemanager.GetOrLoad(ctx, s.gradientCache, gradientInventoryKey, time.Minute,
		func(context.Context) ([]string, error) {
			return s.provider.ListGradients(), nil
		})
}

// ApplyPalette sets a channel's color gradient. An empty name falls back to
// the configured default; unknown gradients fail the item.
func (s *Session) ApplyPalette(name string) batch.Operation {
	if name == "" {
		name = s.cfg.Processing.DefaultPalette
	}
	return func(t batch.Target) error {
		inventory, err := s.gradients(context.Background())
		if err != nil {
			return fmt.Errorf("listing gradients: %w", err)
		}
		found := false
		for _, g := range inventory {
			if g == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown gradient %q", name)
		}
		return s.provider.SetContainerValue(t.Resource, provider.PaletteKey(t.Channel), name)
	}
}

// ApplyFixedRange pins a channel's display range to [min, max].
func (s *Session) ApplyFixedRange(min, max float64) batch.Operation {
	return func(t batch.Target) error {
		p := s.provider
		if err := p.SetContainerValue(t.Resource, provider.BaseMinKey(t.Channel), min); err != nil {
			return err
		}
		if err := p.SetContainerValue(t.Resource, provider.BaseMaxKey(t.Channel), max); err != nil {
			return err
		}
		return p.SetContainerValue(t.Resource, provider.RangeTypeKey(t.Channel), int(provider.RangeFixed))
	}
}

// SetFullRange returns a channel to the data-driven display range. A
// pending zero-shift is undone first by shifting the data back to its cached
// original minimum.
func (s *Session) SetFullRange() batch.Operation {
	return func(t batch.Target) error {
		p := s.provider
		meta, err := p.ChannelMeta(t.Resource, t.Channel)
		if err != nil {
			return err
		}

		if meta.OriginalMin != nil {
			offset := *meta.OriginalMin - meta.DataMin
			if err := p.PushSetting(provider.ModuleKey("value_shift", "offset"), offset); err != nil {
				return err
			}
			if err := p.Checkpoint(t.Resource, t.Channel); err != nil {
				return err
			}
			if err := p.RunFunction("value_shift", t.Resource, t.Channel); err != nil {
				return fmt.Errorf("undoing zero shift: %w", err)
			}
			_ = p.RemoveContainerValue(t.Resource, provider.OriginalMinKey(t.Channel))
			_ = p.RemoveContainerValue(t.Resource, provider.OriginalMaxKey(t.Channel))
		}

		_ = p.RemoveContainerValue(t.Resource, provider.BaseMinKey(t.Channel))
		_ = p.RemoveContainerValue(t.Resource, provider.BaseMaxKey(t.Channel))
		return p.SetContainerValue(t.Resource, provider.RangeTypeKey(t.Channel), int(provider.RangeFull))
	}
}

// InvertMapping swaps a channel's effective display extremes and pins them,
// so high values render dark and vice versa.
func (s *Session) InvertMapping() batch.Operation {
	return func(t batch.Target) error {
		p := s.provider
		meta, err := p.ChannelMeta(t.Resource, t.Channel)
		if err != nil {
			return err
		}

		lo, hi := meta.DataMin, meta.DataMax
		if meta.Range.Kind == provider.RangeFixed {
			lo, hi = meta.Range.Min, meta.Range.Max
		}

		if err := p.SetContainerValue(t.Resource, provider.BaseMinKey(t.Channel), hi); err != nil {
			return err
		}
		if err := p.SetContainerValue(t.Resource, provider.BaseMaxKey(t.Channel), lo); err != nil {
			return err
		}
		return p.SetContainerValue(t.Resource, provider.RangeTypeKey(t.Channel), int(provider.RangeFixed))
	}
}

// ZeroToMinimum shifts a channel's data so the minimum sits at zero and pins
// the display range to [0, max-min]. The pre-shift extremes are cached so
// SetFullRange can restore them. Already-shifted channels are left alone.
func (s *Session) ZeroToMinimum() batch.Operation {
	return func(t batch.Target) error {
		p := s.provider
		meta, err := p.ChannelMeta(t.Resource, t.Channel)
		if err != nil {
			return err
		}
		if meta.OriginalMin != nil {
			return nil
		}

		if err := p.SetContainerValue(t.Resource, provider.OriginalMinKey(t.Channel), meta.DataMin); err != nil {
			return err
		}
		if err := p.SetContainerValue(t.Resource, provider.OriginalMaxKey(t.Channel), meta.DataMax); err != nil {
			return err
		}

		if err := p.PushSetting(provider.ModuleKey("value_shift", "offset"), -meta.DataMin); err != nil {
			return err
		}
		if err := p.Checkpoint(t.Resource, t.Channel); err != nil {
			return err
		}
		if err := p.RunFunction("value_shift", t.Resource, t.Channel); err != nil {
			return fmt.Errorf("zero shift: %w", err)
		}

		span := meta.DataMax - meta.DataMin
		if err := p.SetContainerValue(t.Resource, provider.BaseMinKey(t.Channel), 0.0); err != nil {
			return err
		}
		if err := p.SetContainerValue(t.Resource, provider.BaseMaxKey(t.Channel), span); err != nil {
			return err
		}
		return p.SetContainerValue(t.Resource, provider.RangeTypeKey(t.Channel), int(provider.RangeFixed))
	}
}

// Rename sets a channel's title.
func (s *Session) Rename(title string) batch.Operation {
	return func(t batch.Target) error {
		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("empty title")
		}
		return s.provider.SetContainerValue(t.Resource, provider.TitleKey(t.Channel), title)
	}
}

// cropOp crops one already-validated channel. Parameters travel through the
// settings surface; a synthetic tool line is appended to the channel log so
// later macro extraction sees the crop.
func (s *Session) cropOp(spec crop.Spec) batch.Operation {
	return func(t batch.Target) error {
		p := s.provider

		for key, value := range map[string]any{
			"x":            spec.X,
			"y":            spec.Y,
			"width":        spec.Width,
			"height":       spec.Height,
			"new_channel":  spec.CreateNew,
			"keep_offsets": spec.KeepOffsets,
		} {
			if err := p.PushSetting(provider.ModuleKey("crop", key), value); err != nil {
				return err
			}
		}

		if err := p.Checkpoint(t.Resource, t.Channel); err != nil {
			return err
		}
		if err := p.RunFunction("crop", t.Resource, t.Channel); err != nil {
			return fmt.Errorf("crop: %w", err)
		}

		s.appendLogLine(t, fmt.Sprintf(
			"tool::GwyToolCrop(x=%d, y=%d, width=%d, height=%d, new_channel=%t, keep_offsets=%t)@%sZ",
			spec.X, spec.Y, spec.Width, spec.Height, spec.CreateNew, spec.KeepOffsets,
			s.now().Format("2006-01-02T15:04:05")))
		return nil
	}
}

// appendLogLine adds one line to a channel's processing log, best-effort.
func (s *Session) appendLogLine(t batch.Target, line string) {
	key := provider.LogKey(t.Channel)
	existing := ""
	if v, ok := s.provider.ContainerValue(t.Resource, key); ok {
		if str, isStr := v.(string); isStr {
			existing = str
		}
	}
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	if err := s.provider.SetContainerValue(t.Resource, key, existing+line); err != nil {
		log.Warn(log.CatEngine, "appending log line failed",
			"file", t.Filename, "channel", t.Channel, "error", err)
	}
}
