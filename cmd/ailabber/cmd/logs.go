package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs <task-id>",
	Short: "Show a task's stdout and stderr",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLogs(args[0])
	},
}

func runLogs(taskID string) {
	client := newClient()
	ctx := context.Background()

	resp, err := client.Logs(ctx, taskID, username)
	if err != nil {
		exitWithError("failed to fetch logs", err)
	}

	fmt.Println("=== stdout ===")
	fmt.Println(resp["stdout"])
	fmt.Println("=== stderr ===")
	fmt.Println(resp["stderr"])
}
