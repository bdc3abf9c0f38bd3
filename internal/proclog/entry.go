// Package proclog parses Gwyddion-style processing logs into replayable
// macros. One instruction per line:
//
//	proc::<function>(<key=value, ...>)@<timestamp>
//
// Lines that do not match the grammar are skipped silently; they are noise
// (tool:: lines, free text) rather than errors.
package proclog

import (
	"sort"
	"strings"
)

// Entry is one parsed macro instruction.
type Entry struct {
	// Function is the host processing function name.
	Function string

	// Params maps parameter names to coerced values (bool, int64,
	// float64 or string).
	Params map[string]any

	// RawParams preserves the uninterpreted parameter text.
	RawParams string

	// Timestamp is the trailing timestamp text, terminator stripped.
	Timestamp string

	// Order is the 1-based physical line number the entry came from.
	// Skipped lines leave gaps; Order is not a dense counter.
	Order int
}

// Macro is an ordered sequence of entries.
type Macro []Entry

// Sorted returns the macro ordered by ascending Order, which is the replay
// order regardless of how the entries were accumulated.
func (m Macro) Sorted() Macro {
	out := make(Macro, len(m))
	copy(out, m)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Functions returns the distinct function names in replay order.
func (m Macro) Functions() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range m.Sorted() {
		if _, ok := seen[e.Function]; ok {
			continue
		}
		seen[e.Function] = struct{}{}
		out = append(out, e.Function)
	}
	return out
}

// String renders the entry back in log-line form, without the timestamp.
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString("proc::")
	b.WriteString(e.Function)
	b.WriteByte('(')
	b.WriteString(e.RawParams)
	b.WriteByte(')')
	return b.String()
}
