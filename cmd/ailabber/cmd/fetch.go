package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var fetchOutput string

var fetchCmd = &cobra.Command{
	Use:   "fetch <task-id>",
	Short: "Download a task's results archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFetch(args[0])
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "destination zip path (default <task-id>_results.zip)")
}

func runFetch(taskID string) {
	dest := fetchOutput
	if dest == "" {
		dest = taskID + "_results.zip"
	}

	client := newClient()
	ctx := context.Background()
	if err := client.FetchToFile(ctx, taskID, username, dest); err != nil {
		exitWithError("failed to fetch results", err)
	}
	fmt.Printf("Saved results to %s\n", dest)
}

func writeResponseToFile(body io.Reader, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return nil
}
