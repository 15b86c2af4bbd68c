package commands

import (
	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pennlinc/batchctl/internal/inclusion"
)

// NewCheckSetupCmd validates that a project root is loadable end to end
// (configuration decodes, the first input dataset directory exists, the
// inclusion list and ledger parse) without mutating anything, following
// delete.go's PersistentPreRun precondition checks (common.CRDsExist)
// generalized into its own command since there is no cluster-side
// installation state to probe here.
func NewCheckSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-setup <project root>",
		Short: "Validate a project's configuration, datasets and persisted files",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			root := args[0]
			app, err := loadApp(root)
			exitWith("loading project", err)

			ds, err := app.Cfg.FirstInputDataset()
			exitWith("resolving first input dataset", err)
			ui.Info("first input dataset:", ds.Name, ds.PathInProject)

			var fs inclusion.OSFilesystem
			if !fs.IsDir(ds.PathInProject) {
				exitWith("checking input dataset", errors.Errorf("input dataset root %q does not exist", ds.PathInProject))
			}

			if _, _, err := app.loadLedgerAndInclusion(); err != nil {
				ui.Info("no persisted inclusion list/ledger yet:", err.Error())
			} else {
				ui.Success("ledger and inclusion list are present and parse cleanly")
			}

			ui.Success("configuration is valid for queue:", app.Cfg.Queue)
		},
	}

	return cmd
}
