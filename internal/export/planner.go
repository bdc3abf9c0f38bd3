// Package export computes collision-free output paths for saving selected
// channels, grouped per source file. The planner performs no I/O; path
// existence is supplied as a callback so tests and dry runs stay
// deterministic.
package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zjrosen/spmbatch/internal/batch"
	"github.com/zjrosen/spmbatch/internal/log"
	"github.com/zjrosen/spmbatch/internal/provider"
)

// Group is one output file: all selected channels of one resource.
type Group struct {
	Resource   provider.ResourceID
	BaseName   string
	Channels   []provider.ChannelID
	Titles     []string
	OutputPath string
}

// ExistsFunc reports whether a candidate output path is already taken.
type ExistsFunc func(path string) bool

// channelKey dedupes selections by identity. Two open resources may share
// a source file name; their channels are still distinct.
type channelKey struct {
	res provider.ResourceID
	ch  provider.ChannelID
}

// Plan groups the expanded selection by resource and assigns each group a
// collision-free output path under dir. A channel selected twice
// contributes once; group and channel order follow first appearance.
// Colliding candidates get a numeric "_processed_<N>" suffix starting at 1.
func Plan(targets []batch.Target, dir, ext string, exists ExistsFunc) []Group {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	var (
		order  []provider.ResourceID
		groups = make(map[provider.ResourceID]*Group)
		seen   = make(map[channelKey]struct{})
	)

	for _, t := range targets {
		if t.Channel == provider.WholeResource {
			continue
		}
		dedupe := channelKey{res: t.Resource, ch: t.Channel}
		if _, dup := seen[dedupe]; dup {
			continue
		}
		seen[dedupe] = struct{}{}

		g, ok := groups[t.Resource]
		if !ok {
			g = &Group{
				Resource: t.Resource,
				BaseName: baseName(t.Filename),
			}
			groups[t.Resource] = g
			order = append(order, t.Resource)
		}
		g.Channels = append(g.Channels, t.Channel)
		g.Titles = append(g.Titles, t.Title)
	}

	out := make([]Group, 0, len(order))
	taken := make(map[string]struct{})
	for _, res := range order {
		g := groups[res]
		g.OutputPath = freePath(dir, g.BaseName, ext, func(p string) bool {
			if _, planned := taken[p]; planned {
				return true
			}
			return exists != nil && exists(p)
		})
		taken[g.OutputPath] = struct{}{}
		out = append(out, *g)
	}

	log.Info(log.CatExport, "planned export", "groups", len(out), "dir", dir)
	return out
}

// freePath returns the first untaken candidate for base in dir.
func freePath(dir, base, ext string, taken func(string) bool) string {
	candidate := filepath.Join(dir, base+ext)
	for counter := 1; taken(candidate); counter++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_processed_%d%s", base, counter, ext))
	}
	return candidate
}

// baseName strips the directory and extension from a source file name.
func baseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
