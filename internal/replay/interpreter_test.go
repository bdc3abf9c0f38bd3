package replay

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/spmbatch/internal/batch"
	"github.com/zjrosen/spmbatch/internal/proclog"
	"github.com/zjrosen/spmbatch/internal/provider"
)

func fixture(t *testing.T) (*provider.Memory, batch.Target) {
	t.Helper()
	p := provider.NewMemory()
	res := p.AddResource("scan.gwy")
	p.AddChannel(res, 0, provider.Meta{Title: "Topography"})
	return p, batch.Target{Resource: res, Channel: 0, Title: "Topography", Filename: "scan.gwy"}
}

func TestReplay_RunsEntriesInOrder(t *testing.T) {
	p, target := fixture(t)

	// Deliberately shuffled; Order must win over slice position.
	macro := proclog.Macro{
		{Function: "scale", Order: 3, Params: map[string]any{"factor": 2.0}},
		{Function: "level", Order: 1, Params: map[string]any{}},
		{Function: "median", Order: 2, Params: map[string]any{"size": int64(5)}},
	}

	require.NoError(t, Replay(p, macro, target))

	var names []string
	for _, call := range p.Calls {
		names = append(names, call.Name)
	}
	assert.Equal(t, []string{"level", "median", "scale"}, names)

	// Parameters land under the function's settings namespace.
	v, ok := p.Setting("/module/median/size")
	require.True(t, ok)
	assert.Equal(t, int64(5), v)
	v, ok = p.Setting("/module/scale/factor")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestReplay_CheckpointBeforeEachRun(t *testing.T) {
	p, target := fixture(t)
	macro := proclog.Macro{
		{Function: "level", Order: 1, Params: map[string]any{}},
		{Function: "median", Order: 2, Params: map[string]any{}},
	}

	require.NoError(t, Replay(p, macro, target))
	require.Len(t, p.Checkpoints, 2)
	require.Len(t, p.Calls, 2)
}

func TestReplay_RejectedSettingAbortsChannel(t *testing.T) {
	p, target := fixture(t)
	p.RejectSetting = func(path string, value any) error {
		if path == "/module/median/size" {
			return errors.New("size out of range")
		}
		return nil
	}

	macro := proclog.Macro{
		{Function: "level", Order: 1, Params: map[string]any{}},
		{Function: "median", Order: 2, Params: map[string]any{"size": int64(99)}},
		{Function: "scale", Order: 3, Params: map[string]any{"factor": 2.0}},
	}

	err := Replay(p, macro, target)
	require.Error(t, err)

	var rejected *SettingRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "/module/median/size", rejected.Path)
	assert.ErrorIs(t, err, provider.ErrSettingRejected)

	// level ran, median and scale did not.
	require.Len(t, p.Calls, 1)
	assert.Equal(t, "level", p.Calls[0].Name)
}

func TestReplay_FunctionFailureAbortsChannel(t *testing.T) {
	p, target := fixture(t)
	p.Functions["median"] = func(provider.ResourceID, provider.ChannelID) error {
		return errors.New("median exploded")
	}

	macro := proclog.Macro{
		{Function: "median", Order: 1, Params: map[string]any{}},
		{Function: "scale", Order: 2, Params: map[string]any{}},
	}

	err := Replay(p, macro, target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "median")
	// The failed call is recorded, the following one never happens.
	require.Len(t, p.Calls, 1)
}

func TestReplay_RejectsHeaderTargets(t *testing.T) {
	p, target := fixture(t)
	target.Channel = provider.WholeResource
	assert.Error(t, Replay(p, proclog.Macro{{Function: "level", Order: 1}}, target))
}

func TestOperation_IsolatesChannelsInBatch(t *testing.T) {
	p := provider.NewMemory()
	res := p.AddResource("scan.gwy")
	for ch := 0; ch < 3; ch++ {
		p.AddChannel(res, provider.ChannelID(ch), provider.Meta{Title: fmt.Sprintf("Ch %d", ch)})
	}
	p.Functions["level"] = func(_ provider.ResourceID, c provider.ChannelID) error {
		if c == 1 {
			return errors.New("bad channel")
		}
		return nil
	}

	macro := proclog.Macro{{Function: "level", Order: 1, Params: map[string]any{}}}
	op := Operation(p, macro)

	targets := []batch.Target{
		{Resource: res, Channel: 0},
		{Resource: res, Channel: 1},
		{Resource: res, Channel: 2},
	}
	report := batch.Apply(3, targets, op)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, batch.OutcomePartial, report.Outcome())
}
