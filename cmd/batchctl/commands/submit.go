package commands

import (
	"os"

	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/spf13/cobra"

	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/plan"
	"github.com/pennlinc/batchctl/internal/scheduler"
)

// SubmitOptions carries submit's flags (§6 "submit" row).
type SubmitOptions struct {
	Count           int
	All             bool
	Select          []string
	Resubmit        bool
	ResubmitFailed  bool
	ResubmitPending bool
}

func PopulateSubmitFlags(cmd *cobra.Command, options *SubmitOptions) {
	cmd.Flags().IntVar(&options.Count, "count", 0, "submit the first N not-yet-submitted processing units in inclusion order")
	cmd.Flags().BoolVar(&options.All, "all", false, "submit every eligible processing unit (unsubmitted, failed, or pending-policy)")
	cmd.Flags().StringArrayVar(&options.Select, "select", nil, "explicitly target one processing unit's components (repeatable, e.g. --select sub-0001 --select ses-01 per unit)")
	cmd.Flags().BoolVar(&options.Resubmit, "resubmit", false, "resubmit failed/pending processing units instead of submitting new ones")
	cmd.Flags().BoolVar(&options.ResubmitFailed, "resubmit-failed", true, "when resubmitting, include failed processing units")
	cmd.Flags().BoolVar(&options.ResubmitPending, "resubmit-pending", false, "when resubmitting, include processing units still pending in the queue")
}

// NewSubmitCmd implements the Submission Planner's CLI surface (§4.7,
// §6): the first of --resubmit, --select, --all and --count that is set
// selects the mode (--select given with --resubmit narrows the resubmit),
// defaulting to submitting a single processing unit (OneJob) when none are
// given, following the Args validator pattern in tests/report.go's "Pass
// Test name and destination" check.
func NewSubmitCmd() *cobra.Command {
	var options SubmitOptions

	cmd := &cobra.Command{
		Use:   "submit <project root>",
		Short: "Submit or resubmit processing units to the scheduler",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			root := args[0]
			app, err := loadApp(root)
			exitWith("loading project", err)

			list, led, err := app.loadLedgerAndInclusion()
			exitWith("loading ledger", err)

			req := buildSubmitRequest(options, list, app.mode())

			result, err := plan.Plan(led, req)
			exitWith("planning submission", err)

			for _, w := range result.Warnings {
				ui.Info("submission planner:", w)
			}

			if len(result.Candidates) == 0 {
				ui.Info("nothing to submit")
				return
			}

			tpl, err := loadTemplate(app)
			exitWith("loading submission template", err)

			newLedger, err := plan.Execute(cmd.Context(), led, result.Candidates, tpl, app.Scheduler)
			exitWith("submitting", err)

			err = newLedger.SaveAtomic()
			exitWith("saving ledger", err)

			ui.Success("submitted", len(result.Candidates), "processing unit(s)")
		},
	}

	PopulateSubmitFlags(cmd, &options)

	return cmd
}

// buildSubmitRequest translates the CLI's mode flags into a plan.Request,
// taking them in the precedence --resubmit, --select, --all, --count and
// defaulting to OneJob (§4.7: "given a mode", the
// narrowest default when the operator names nothing more specific).
func buildSubmitRequest(options SubmitOptions, list []core.ProcessingUnit, mode core.Mode) plan.Request {
	policy := plan.ResubmitPolicy{Failed: options.ResubmitFailed, Pending: options.ResubmitPending}

	switch {
	case options.Resubmit:
		return plan.Request{Mode: plan.Resubmit, PUs: parseSelect(options.Select, mode), Policy: policy}
	case len(options.Select) > 0:
		return plan.Request{Mode: plan.Explicit, PUs: parseSelect(options.Select, mode)}
	case options.All:
		return plan.Request{Mode: plan.All, Policy: policy}
	case options.Count > 0:
		return plan.Request{Mode: plan.CountN, Count: options.Count}
	default:
		return plan.Request{Mode: plan.OneJob}
	}
}

// parseSelect groups --select's flat component list into ProcessingUnits:
// one component per unit in SingleLevel mode, two per unit in TwoLevel.
func parseSelect(raw []string, mode core.Mode) []core.ProcessingUnit {
	step := 1
	if mode == core.TwoLevel {
		step = 2
	}

	var out []core.ProcessingUnit
	for i := 0; i+step <= len(raw); i += step {
		if mode == core.TwoLevel {
			out = append(out, core.ProcessingUnit{Subject: raw[i], Session: raw[i+1]})
		} else {
			out = append(out, core.ProcessingUnit{Subject: raw[i]})
		}
	}
	return out
}

// loadTemplate reads the project's submission template file and pairs it
// with the configured preamble and cluster resources (§6 "opaque string
// substitution").
func loadTemplate(app *App) (scheduler.Template, error) {
	body, err := os.ReadFile(app.TemplatePath)
	if err != nil {
		return scheduler.Template{}, err
	}

	return scheduler.Template{
		Body:     string(body),
		Preamble: app.Cfg.ScriptPreamble,
		Resources: scheduler.TemplateResources{
			TimeLimit: app.Cfg.ClusterResources.TimeLimit,
			Nodes:     app.Cfg.ClusterResources.Nodes,
			CPUs:      app.Cfg.ClusterResources.CPUs,
			Partition: app.Cfg.ClusterResources.Partition,
		},
	}, nil
}
