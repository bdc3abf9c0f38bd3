package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/spmbatch/internal/proclog"
)

var parseCmd = &cobra.Command{
	Use:   "parse <logfile>",
	Short: "Parse a processing log into a macro",
	Long:  `Parse a recorded processing log and print the resulting macro as YAML. Lines that do not match the proc:: grammar are skipped.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

// macroEntry is the YAML projection of one parsed instruction.
type macroEntry struct {
	Order     int            `yaml:"order"`
	Function  string         `yaml:"function"`
	Params    map[string]any `yaml:"params,omitempty"`
	Timestamp string         `yaml:"timestamp,omitempty"`
}

func runParse(cmd *cobra.Command, args []string) error {
	macro, err := proclog.ParseFile(args[0])
	if err != nil {
		return err
	}
	if len(macro) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no processing instructions found")
		return nil
	}

	entries := make([]macroEntry, 0, len(macro))
	for _, e := range macro.Sorted() {
		entries = append(entries, macroEntry{
			Order:     e.Order,
			Function:  e.Function,
			Params:    e.Params,
			Timestamp: e.Timestamp,
		})
	}

	out, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding macro: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))

	persistMacroPath(args[0])
	return nil
}
