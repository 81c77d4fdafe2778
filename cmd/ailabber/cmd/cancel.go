package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCancel(args[0])
	},
}

func runCancel(taskID string) {
	client := newClient()
	ctx := context.Background()

	resp, err := client.Cancel(ctx, taskID, username)
	if err != nil {
		exitWithError("cancel failed", err)
	}
	fmt.Printf("Task %s: %v\n", taskID, resp["status"])
}
