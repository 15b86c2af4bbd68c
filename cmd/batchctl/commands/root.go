package commands

import (
	"os"
	"strings"

	"github.com/dimiro1/banner"
	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/spf13/cobra"
)

const bannerTemplate = `{{ .AnsiColor.Cyan }}batchctl{{ .AnsiColor.Default }}
batch-processing HPC job orchestration controller
`

// NewRootCmd builds the batchctl command tree, following the
// NewGetCmd/NewDeleteCmd shape: a parent command with a PersistentPreRun for
// global setup and one AddCommand call per subcommand file.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batchctl",
		Short: "Drive an HPC batch-processing pipeline across many subjects or sessions",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.SetVerbose(verbose)
			banner.Init(os.Stdout, true, true, strings.NewReader(bannerTemplate))
		},
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintOnError("Displaying help", cmd.Help())
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show additional debug output")

	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewCheckSetupCmd())
	cmd.AddCommand(NewSubmitCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewMergeCmd())
	cmd.AddCommand(NewUpdateInputDataCmd())
	cmd.AddCommand(NewSyncCodeCmd())

	return cmd
}

// Execute runs the root command, following main.go's single-call contract
// in the cmd/kubectl-frisbee entry point.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
