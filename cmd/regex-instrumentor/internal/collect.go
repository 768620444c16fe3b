package internal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smith-xyz/go-regex-observer/pkg/corpus"
)

func newCollectCmd() *cobra.Command {
	var patternsOnly bool
	cmd := &cobra.Command{
		Use:   "collect [flags] <regex-log-file>...",
		Short: "Merge regex logs into a deduplicated corpus",
		Long: `collect reads the JSON lines written by instrumented programs, drops
malformed lines and duplicate (file, pattern) pairs, and prints the corpus
as JSON sorted by file and pattern.`,
		Args: minimumArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collector := corpus.NewCollector()
			for _, path := range args {
				if err := collector.AddFile(path); err != nil {
					return err
				}
			}
			if n := collector.Malformed(); n > 0 {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "Skipped %d malformed line(s)\n", n)
			}

			var buf bytes.Buffer
			if patternsOnly {
				for _, p := range collector.Patterns() {
					// Patterns may span lines; quote them so each stays on one.
					fmt.Fprintf(&buf, "%q\n", p)
				}
			} else {
				records := collector.Corpus()
				encoder := json.NewEncoder(&buf)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(records); err != nil {
					return fmt.Errorf("failed to encode corpus: %w", err)
				}
			}
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		},
	}
	cmd.Flags().BoolVarP(&patternsOnly, "patterns", "p", false, "Print only the distinct patterns, one Go-quoted pattern per line")
	return cmd
}
