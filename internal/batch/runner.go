// Package batch executes one operation across an arbitrary selection of the
// registry's rows, isolating per-item failures and reporting aggregate
// outcomes. The runner never aborts early; callers decide how to present
// total, partial and full success.
package batch

import (
	"fmt"

	"github.com/zjrosen/spmbatch/internal/log"
	"github.com/zjrosen/spmbatch/internal/provider"
	"github.com/zjrosen/spmbatch/internal/registry"
)

// Target is one concrete entity an operation runs against. Header
// selections carry provider.WholeResource until expansion.
type Target struct {
	Resource provider.ResourceID
	Channel  provider.ChannelID
	Title    string
	Filename string
}

func (t Target) String() string {
	if t.Channel == provider.WholeResource {
		return t.Filename
	}
	return fmt.Sprintf("%s (%s)", t.Title, t.Filename)
}

// Operation is a unary action applied to one expanded target.
type Operation func(Target) error

// Expander resolves a header target to the resource's current channel list.
// It runs at execution time, not selection time; a batch may fire long
// after the checkbox was set and must see the store as it is now.
type Expander func(Target) ([]Target, error)

// Predicate selects rows to include in a run.
type Predicate func(registry.Row) bool

// Selected is the default predicate: checked channel and header rows.
func Selected(row registry.Row) bool {
	return row.Checked && row.Selectable()
}

// ItemError pairs a failed target with its error.
type ItemError struct {
	Target Target
	Err    error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Target, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Report is the aggregate result of one run.
type Report struct {
	// Selected counts the rows that matched the predicate, before
	// expansion. Zero means the operation never ran.
	Selected int

	// Total counts expanded targets actually attempted.
	Total int

	// Succeeded counts targets the operation completed on.
	Succeeded int

	Errors []ItemError
}

// Outcome classifies a report for presentation.
type Outcome int

const (
	// OutcomeNoSelection means nothing was selected; the operation was
	// never invoked.
	OutcomeNoSelection Outcome = iota
	// OutcomeTotalFailure means every attempted item failed.
	OutcomeTotalFailure
	// OutcomePartial means some items failed.
	OutcomePartial
	// OutcomeFull means every item succeeded.
	OutcomeFull
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoSelection:
		return "no selection"
	case OutcomeTotalFailure:
		return "total failure"
	case OutcomePartial:
		return "partial success"
	case OutcomeFull:
		return "full success"
	default:
		return "unknown"
	}
}

// Outcome classifies the report.
func (r Report) Outcome() Outcome {
	switch {
	case r.Selected == 0:
		return OutcomeNoSelection
	case r.Succeeded == 0:
		return OutcomeTotalFailure
	case len(r.Errors) > 0:
		return OutcomePartial
	default:
		return OutcomeFull
	}
}

// Run applies op to every expanded target selected from rows.
//
// Each failure is recorded and execution continues with the next target;
// one bad channel never poisons the batch. Expansion failures (a resource
// closed between selection and execution) count as one failed item for the
// header target.
func Run(rows []registry.Row, selected Predicate, expand Expander, op Operation) Report {
	var report Report

	for _, row := range rows {
		if !selected(row) {
			continue
		}
		report.Selected++

		target := Target{
			Resource: row.Key.Resource,
			Channel:  row.Key.Channel,
			Title:    row.Label,
			Filename: row.Filename,
		}

		targets := []Target{target}
		if target.Channel == provider.WholeResource && expand != nil {
			expanded, err := expand(target)
			if err != nil {
				report.Total++
				report.Errors = append(report.Errors, ItemError{Target: target, Err: err})
				log.ErrorErr(log.CatBatch, "expansion failed", err, "file", target.Filename)
				continue
			}
			targets = expanded
		}

		for _, t := range targets {
			report.Total++
			if err := op(t); err != nil {
				report.Errors = append(report.Errors, ItemError{Target: t, Err: err})
				log.ErrorErr(log.CatBatch, "item failed", err,
					"file", t.Filename, "channel", t.Channel)
				continue
			}
			report.Succeeded++
		}
	}

	log.Info(log.CatBatch, "run finished",
		"selected", report.Selected, "total", report.Total,
		"succeeded", report.Succeeded, "failed", len(report.Errors),
		"outcome", report.Outcome())
	return report
}

// Apply runs op over targets that were expanded and filtered ahead of time,
// with the same per-item isolation as Run. The selected count is carried
// through so outcome classification still distinguishes "nothing selected"
// from "everything filtered out".
func Apply(selected int, targets []Target, op Operation) Report {
	report := Report{Selected: selected}
	for _, t := range targets {
		report.Total++
		if err := op(t); err != nil {
			report.Errors = append(report.Errors, ItemError{Target: t, Err: err})
			log.ErrorErr(log.CatBatch, "item failed", err,
				"file", t.Filename, "channel", t.Channel)
			continue
		}
		report.Succeeded++
	}
	return report
}

// ExpandChannels builds the standard expander: a header target resolves to
// the resource's current channels, queried fresh from the provider.
func ExpandChannels(p provider.Provider) Expander {
	return func(t Target) ([]Target, error) {
		channels, err := p.ListChannels(t.Resource)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", t.Filename, err)
		}
		targets := make([]Target, 0, len(channels))
		for _, ch := range channels {
			title := ""
			if meta, err := p.ChannelMeta(t.Resource, ch); err == nil {
				title = meta.Title
			}
			targets = append(targets, Target{
				Resource: t.Resource,
				Channel:  ch,
				Title:    title,
				Filename: t.Filename,
			})
		}
		return targets, nil
	}
}
