package commands

import (
	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/spf13/cobra"
)

// NewSyncCodeCmd pushes the project's code tree to the artifact store's
// remote, the thin CLI wrapper around store.Adapter.PushCode (§6 Artifact
// Store boundary: "push-code").
func NewSyncCodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-code <project root>",
		Short: "Push the project's code tree to the artifact store's remote",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			root := args[0]
			app, err := loadApp(root)
			exitWith("loading project", err)

			err = app.Store.PushCode(cmd.Context())
			exitWith("pushing code", err)

			ui.Success("code synced to remote")
		},
	}

	return cmd
}
