package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/spmbatch/internal/batch"
	"github.com/zjrosen/spmbatch/internal/crop"
	"github.com/zjrosen/spmbatch/internal/engine"
	"github.com/zjrosen/spmbatch/internal/history"
	"github.com/zjrosen/spmbatch/internal/provider"
	"github.com/zjrosen/spmbatch/internal/registry"
	"github.com/zjrosen/spmbatch/internal/tracing"
)

var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Run the engine against a seeded in-memory provider",
	Long:  `Seed an in-memory data browser with example files and run the built-in operations over them. Useful for exploring the engine without a host application.`,
	RunE:  runPlayground,
}

var playgroundExportDir string

func init() {
	playgroundCmd.Flags().StringVar(&playgroundExportDir, "export-dir", "",
		"export directory (default: a fresh temp dir)")
	rootCmd.AddCommand(playgroundCmd)
}

func runPlayground(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	p := seedPlayground()

	opts := []engine.Option{engine.WithGuard(&engine.Guard{})}

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() { _ = tp.Shutdown(cmd.Context()) }()
	opts = append(opts, engine.WithTracer(tp.Tracer()))

	if cfg.History.Enabled && cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, engine.WithHistory(store))
	}

	session, err := engine.New(p, cfg, opts...)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Fprintln(out, "browser contents:")
	for _, row := range session.Rows() {
		switch row.Kind {
		case registry.RowResource:
			fmt.Fprintf(out, "  %s\n", row.Label)
		case registry.RowChannel:
			fmt.Fprintf(out, "    [%d] %s\n", row.Key.Channel, row.Label)
		}
	}

	session.SelectAll(true)
	ctx := cmd.Context()

	report := session.RunBatch(ctx, "palette", session.ApplyPalette(""))
	printReport(out, "palette", report)

	report = session.RunBatch(ctx, "zero_to_min", session.ZeroToMinimum())
	printReport(out, "zero_to_min", report)

	spec := crop.Spec{X: 0, Y: 0, Width: 64, Height: 64}
	report, proceeded := session.RunCrop(ctx, spec, func(r crop.Report) crop.Decision {
		return crop.ProceedWithReport
	}, func(r crop.Report) {
		for _, c := range r {
			fmt.Fprintf(out, "  conflict: %s (%s): %s\n", c.Title, c.Filename, c.Reason)
		}
	})
	if !proceeded {
		fmt.Fprintln(out, "crop aborted")
	} else {
		printReport(out, "crop", report)
	}

	dir := playgroundExportDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "spmbatch-playground-")
		if err != nil {
			return err
		}
	}
	report = session.RunExport(ctx, dir)
	printReport(out, "export", report)
	fmt.Fprintf(out, "exported to %s\n", dir)

	// Remember a directory the user chose, the way the last save dir of an
	// interactive session carries over.
	if playgroundExportDir != "" && report.Succeeded > 0 {
		persistExportDir(dir)
	}

	return nil
}

// seedPlayground builds a small browser with mixed resolutions so the crop
// conflict path is reachable.
func seedPlayground() *provider.Memory {
	p := provider.NewMemory()

	scan1 := p.AddResource("scan001.gwy")
	p.AddChannel(scan1, 0, provider.Meta{
		Title: "Topography", XRes: 256, YRes: 256,
		DataMin: -1.2e-9, DataMax: 4.8e-9,
		Range:     provider.Range{Kind: provider.RangeFull},
		Selection: &provider.Rect{X: 16, Y: 16, Width: 64, Height: 64},
	})
	p.AddChannel(scan1, 1, provider.Meta{
		Title: "Phase", XRes: 256, YRes: 256,
		DataMin: -3.1, DataMax: 3.1,
		Range: provider.Range{Kind: provider.RangeFull},
	})

	scan2 := p.AddResource("scan002.gwy")
	p.AddChannel(scan2, 0, provider.Meta{
		Title: "Topography", XRes: 32, YRes: 32,
		DataMin: 0, DataMax: 2.5e-9,
		Range: provider.Range{Kind: provider.RangeFull},
	})

	return p
}

func printReport(out io.Writer, name string, report batch.Report) {
	fmt.Fprintf(out, "%s: %s (selected=%d total=%d succeeded=%d)\n",
		name, report.Outcome(), report.Selected, report.Total, report.Succeeded)
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  error: %v\n", e)
	}
}
