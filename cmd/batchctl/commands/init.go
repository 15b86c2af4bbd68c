package commands

import (
	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/spf13/cobra"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/inclusion"
	"github.com/pennlinc/batchctl/internal/ledger"
)

// InitOptions carries init's flags, following the TestReportOptions +
// PopulateReportTestFlags pairing convention.
type InitOptions struct {
	InitialInclusion string
}

func PopulateInitFlags(cmd *cobra.Command, options *InitOptions) {
	cmd.Flags().StringVar(&options.InitialInclusion, "initial-inclusion", "", "path to a pre-existing inclusion list file, instead of enumerating the first input dataset")
}

// NewInitCmd resolves the Inclusion List for an already-scaffolded project
// (directory layout, input data and container images are out of scope, §1
// Non-goals) and seeds an empty Job Ledger from it.
func NewInitCmd() *cobra.Command {
	var options InitOptions

	cmd := &cobra.Command{
		Use:   "init <project root>",
		Short: "Resolve the inclusion list and seed the job ledger for a project",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			root := args[0]
			app, err := loadApp(root)
			exitWith("loading project", err)

			var initialList []core.ProcessingUnit
			if options.InitialInclusion != "" {
				list, _, err := inclusion.LoadList(options.InitialInclusion)
				exitWith("loading initial inclusion list", err)
				initialList = list
			}

			result, err := inclusion.Resolve(app.Cfg, inclusion.OSFilesystem{}, initialList)
			exitWith("resolving inclusion list", err)

			for _, d := range result.Dropped {
				ui.Info("dropped from inclusion list:", d.PU.String()+": "+d.Reason)
			}

			err = inclusion.Save(app.InclusionPath, result.List, app.mode())
			exitWith("saving inclusion list", err)

			led := ledger.New(app.LedgerPath)
			for _, pu := range result.List {
				led.UpsertRow(ledger.NewRow(pu))
			}
			err = led.SaveAtomic()
			exitWith("saving ledger", err)

			ui.Success("initialized", len(result.List), "processing units")
		},
	}

	PopulateInitFlags(cmd, &options)

	return cmd
}
