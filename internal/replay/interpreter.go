// Package replay applies a parsed macro to a target channel through the
// host's settings and execution surface. Entries run in ascending Order;
// the first rejected setting aborts the remaining entries for that channel
// only, which the batch runner isolates from other channels.
package replay

import (
	"fmt"

	"github.com/zjrosen/spmbatch/internal/batch"
	"github.com/zjrosen/spmbatch/internal/log"
	"github.com/zjrosen/spmbatch/internal/proclog"
	"github.com/zjrosen/spmbatch/internal/provider"
)

// SettingRejectedError reports a macro parameter the host refused.
type SettingRejectedError struct {
	Path  string
	Value any
	Err   error
}

func (e *SettingRejectedError) Error() string {
	return fmt.Sprintf("setting %s=%v rejected: %v", e.Path, e.Value, e.Err)
}

func (e *SettingRejectedError) Unwrap() error { return e.Err }

// Replay runs every macro entry against one channel. For each entry the
// parameters are pushed under /module/<function>/<key>, an undo checkpoint
// is requested, and the named processing function is invoked. No entry is
// retried; the first failure stops this channel's replay.
func Replay(p provider.Provider, macro proclog.Macro, target batch.Target) error {
	if target.Channel == provider.WholeResource {
		return fmt.Errorf("replay needs a concrete channel, got resource %s", target.Filename)
	}

	for _, entry := range macro.Sorted() {
		for key, value := range entry.Params {
			path := provider.ModuleKey(entry.Function, key)
			if err := p.PushSetting(path, value); err != nil {
				return &SettingRejectedError{Path: path, Value: value, Err: err}
			}
		}

		if err := p.Checkpoint(target.Resource, target.Channel); err != nil {
			return fmt.Errorf("checkpoint before %s: %w", entry.Function, err)
		}
		if err := p.RunFunction(entry.Function, target.Resource, target.Channel); err != nil {
			return fmt.Errorf("running %s: %w", entry.Function, err)
		}
		log.Info(log.CatReplay, "ran function",
			"function", entry.Function, "order", entry.Order,
			"channel", target.Channel, "file", target.Filename)
	}
	return nil
}

// Operation adapts Replay into a batch operation over a fixed macro.
func Operation(p provider.Provider, macro proclog.Macro) batch.Operation {
	return func(t batch.Target) error {
		return Replay(p, macro, t)
	}
}
