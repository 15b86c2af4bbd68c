package commands

import (
	"os"
	"strconv"

	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pennlinc/batchctl/internal/ledger"
	"github.com/pennlinc/batchctl/internal/reconcile"
)

// StatusOptions carries status's flags (§6 "status" row).
type StatusOptions struct {
	ContainerConfig string
	Concurrency     int
}

func PopulateStatusFlags(cmd *cobra.Command, options *StatusOptions) {
	cmd.Flags().StringVar(&options.ContainerConfig, "container-config", "", "path enabling the log classifier to interpret container-specific log layouts (reserved; the classifier is always active)")
	cmd.Flags().IntVar(&options.Concurrency, "concurrency", 0, "bound on the reconciler's parallel per-unit scan, default 8")
}

// NewStatusCmd runs one Reconcile pass and reports the resulting per-state
// counts as a table, following tablewriter's row-builder idiom.
func NewStatusCmd() *cobra.Command {
	var options StatusOptions

	cmd := &cobra.Command{
		Use:   "status <project root>",
		Short: "Reconcile and report the current state of every processing unit",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			root := args[0]
			app, err := loadApp(root)
			exitWith("loading project", err)

			list, led, err := app.loadLedgerAndInclusion()
			exitWith("loading ledger", err)

			newLedger, summary, err := reconcile.Reconcile(cmd.Context(), list, led, app.Cfg, app.Scheduler, app.Store, reconcile.Options{
				LogDir:      app.LogDir,
				Concurrency: options.Concurrency,
				Logger:      app.Logger,
			})
			exitWith("reconciling", err)

			err = newLedger.SaveAtomic()
			exitWith("saving ledger", err)

			printSummary(summary)
			printRows(newLedger)
			warnAll(summary.ConsistencyWarnings)

			if len(summary.ConsistencyWarnings) > 0 {
				os.Exit(3)
			}
		},
	}

	PopulateStatusFlags(cmd, &options)

	return cmd
}

func printSummary(s reconcile.Summary) {
	ui.Info("to complete:", s.ToComplete)
	ui.Info("submitted:", s.Submitted, "succeeded:", s.Succeeded, "pending:", s.Pending,
		"running:", s.Running, "stalled:", s.Stalled, "failed:", s.Failed)

	for label, count := range s.FailureHistogram {
		ui.Info("  failure:", label, count)
	}
}

func printRows(led *ledger.Ledger) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"unit", "submitted", "job_id", "state", "has_results", "is_failed", "alert"})

	for _, row := range led.Rows() {
		state := "-"
		if row.StateCategory != nil {
			state = string(*row.StateCategory)
		}
		isFailed := "-"
		if row.IsFailed != nil {
			if *row.IsFailed {
				isFailed = "true"
			} else {
				isFailed = "false"
			}
		}
		alert := ""
		if row.AlertMessage != nil {
			alert = *row.AlertMessage
		}

		table.Append([]string{
			row.PU.String(),
			boolStr(row.Submitted),
			jobIDStr(row.JobID),
			state,
			boolStr(row.HasResults),
			isFailed,
			alert,
		})
	}

	table.Render()
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func jobIDStr(jobID int64) string {
	if jobID == ledger.NoJobID {
		return "-"
	}
	return strconv.FormatInt(jobID, 10)
}
