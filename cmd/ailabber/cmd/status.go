package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show one task's status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatus(args[0])
	},
}

func runStatus(taskID string) {
	client := newClient()
	ctx := context.Background()

	resp, err := client.Status(ctx, taskID, username)
	if err != nil {
		exitWithError("failed to fetch status", err)
	}
	printJSON(resp["task"])
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}
	fmt.Println(string(out))
}
