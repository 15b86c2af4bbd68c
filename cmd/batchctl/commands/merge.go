package commands

import (
	"os"

	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/spf13/cobra"

	"github.com/pennlinc/batchctl/internal/finalize"
)

// MergeOptions carries merge's flags (§6 "merge" row).
type MergeOptions struct {
	ChunkSize int
}

func PopulateMergeFlags(cmd *cobra.Command, options *MergeOptions) {
	cmd.Flags().IntVar(&options.ChunkSize, "chunk-size", 0, "number of result branches merged per commit, default the project's merge_chunk_size")
}

// NewMergeCmd runs the Finalizer (§4.8): a chunked, resumable merge of every
// result branch into the artifact store's mainline.
func NewMergeCmd() *cobra.Command {
	var options MergeOptions

	cmd := &cobra.Command{
		Use:   "merge <project root>",
		Short: "Merge completed result branches into the artifact store's mainline",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			root := args[0]
			app, err := loadApp(root)
			exitWith("loading project", err)

			_, led, err := app.loadLedgerAndInclusion()
			exitWith("loading ledger", err)

			chunkSize := options.ChunkSize
			if chunkSize <= 0 {
				chunkSize = app.Cfg.MergeChunkSize
			}

			report, warnings, err := finalize.Merge(cmd.Context(), led, app.mode(), app.Store, finalize.Options{
				ChunkSize: chunkSize,
				Logger:    app.Logger,
			})
			exitWith("merging result branches", err)

			ui.Success("merged", len(report.MergedBranches), "branch(es) in", len(report.Chunks), "chunk(s)")
			warnAll(warnings)

			if len(warnings) > 0 {
				os.Exit(3)
			}
		},
	}

	PopulateMergeFlags(cmd, &options)

	return cmd
}
