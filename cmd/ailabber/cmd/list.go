package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks owned by the caller",
	Run: func(cmd *cobra.Command, args []string) {
		runList()
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (pending/running/completed/failed/canceled)")
}

func runList() {
	client := newClient()
	ctx := context.Background()

	resp, err := client.List(ctx, username, listStatus)
	if err != nil {
		exitWithError("failed to list tasks", err)
	}
	printJSON(resp["tasks"])
}
