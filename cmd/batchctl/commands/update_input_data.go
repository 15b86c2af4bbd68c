package commands

import (
	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/spf13/cobra"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/inclusion"
	"github.com/pennlinc/batchctl/internal/ledger"
)

// UpdateInputDataOptions carries update-input-data's flags (§6
// "update-input-data" row).
type UpdateInputDataOptions struct {
	DatasetName      string
	InitialInclusion string
}

func PopulateUpdateInputDataFlags(cmd *cobra.Command, options *UpdateInputDataOptions) {
	cmd.Flags().StringVar(&options.DatasetName, "dataset-name", "", "accepted but has no effect: the first declared input dataset is always re-enumerated")
	cmd.Flags().StringVar(&options.InitialInclusion, "initial-inclusion", "", "path to a replacement inclusion list file, instead of re-enumerating the dataset")
}

// NewUpdateInputDataCmd re-resolves the Inclusion List after the input
// dataset changed (§4.1 "Update semantics"): adds newly-appeared units,
// drops vanished ones that never produced results, refuses outright when
// unmerged result branches exist.
func NewUpdateInputDataCmd() *cobra.Command {
	var options UpdateInputDataOptions

	cmd := &cobra.Command{
		Use:   "update-input-data <project root>",
		Short: "Re-resolve the inclusion list and ledger after an input dataset change",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			root := args[0]
			app, err := loadApp(root)
			exitWith("loading project", err)

			current, led, err := app.loadLedgerAndInclusion()
			exitWith("loading ledger", err)

			branches, err := app.Store.ListResultBranches(cmd.Context())
			exitWith("listing result branches", err)
			unmerged := len(branches) > 0

			var fresh []core.ProcessingUnit
			if options.InitialInclusion != "" {
				fresh, _, err = inclusion.LoadList(options.InitialInclusion)
				exitWith("loading replacement inclusion list", err)
			} else {
				result, err := inclusion.Resolve(app.Cfg, inclusion.OSFilesystem{}, nil)
				exitWith("re-resolving inclusion list", err)
				fresh = result.List
			}

			hasResults := func(pu core.ProcessingUnit) bool {
				row, ok := led.Get(pu)
				return ok && row.HasResults
			}

			added, removed, err := inclusion.Update(current, fresh, hasResults, unmerged)
			exitWith("computing inclusion update", err)

			newOrder := buildUpdatedOrder(current, fresh, added, removed)

			newLedger := ledger.New(led.Path())
			for _, pu := range newOrder {
				if row, ok := led.Get(pu); ok {
					newLedger.UpsertRow(row)
				} else {
					newLedger.UpsertRow(ledger.NewRow(pu))
				}
			}

			err = inclusion.Save(app.InclusionPath, newOrder, app.mode())
			exitWith("saving inclusion list", err)

			err = newLedger.SaveAtomic()
			exitWith("saving ledger", err)

			ui.Success("added", len(added), "removed", len(removed), "processing unit(s)")
		},
	}

	PopulateUpdateInputDataFlags(cmd, &options)

	return cmd
}

// buildUpdatedOrder preserves the existing order for every retained unit
// (invariant 5's "no extra, no missing rows" without reshuffling survivors)
// and appends newly-discovered units in the order they appear in fresh.
func buildUpdatedOrder(current, fresh, added, removed []core.ProcessingUnit) []core.ProcessingUnit {
	removedSet := make(map[string]bool, len(removed))
	for _, pu := range removed {
		removedSet[pu.Key()] = true
	}
	addedSet := make(map[string]bool, len(added))
	for _, pu := range added {
		addedSet[pu.Key()] = true
	}

	var order []core.ProcessingUnit
	for _, pu := range current {
		if !removedSet[pu.Key()] {
			order = append(order, pu)
		}
	}
	for _, pu := range fresh {
		if addedSet[pu.Key()] {
			order = append(order, pu)
		}
	}
	return order
}
