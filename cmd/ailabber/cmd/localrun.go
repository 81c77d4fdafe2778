package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var localRunCmd = &cobra.Command{
	Use:   "local-run <command>...",
	Short: "Register a task the caller will submit to Slurm itself",
	Long: `Create a local-run task record without the Local Proxy invoking sbatch.
Use "ailabber attach <task-id> <slurm-job-id>" once you have submitted the
job yourself, to move the task into running and let the Reconciler track
it.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLocalRun(args)
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <task-id> <slurm-job-id>",
	Short: "Report a Slurm job id for a local-run task",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runAttach(args[0], args[1])
	},
}

func init() {
	localRunCmd.Flags().StringVar(&submitUpload, "upload", ".", "upload root directory")
	localRunCmd.Flags().StringVar(&submitWorkdir, "workdir", ".", "working directory, relative to upload root unless absolute")
	localRunCmd.Flags().StringSliceVar(&submitLogs, "logs", nil, "log paths to include in the results archive")
	localRunCmd.Flags().StringSliceVar(&submitResults, "results", nil, "result paths to include in the results archive")
	localRunCmd.Flags().IntVar(&submitCPUs, "cpus", 1, "CPU count")
	localRunCmd.Flags().StringVar(&submitMemory, "memory", "1G", "memory request")
	localRunCmd.Flags().StringVar(&submitTimeLimit, "time-limit", "1:00:00", "Slurm time limit")

	rootCmd.AddCommand(attachCmd)
}

func runLocalRun(commands []string) {
	client := newClient()
	ctx := context.Background()

	resp, err := client.LocalRun(ctx, map[string]interface{}{
		"username":   username,
		"commands":   commands,
		"upload":     submitUpload,
		"workdir":    submitWorkdir,
		"logs":       submitLogs,
		"results":    submitResults,
		"cpus":       submitCPUs,
		"memory":     submitMemory,
		"time_limit": submitTimeLimit,
	})
	if err != nil {
		exitWithError("local-run failed", err)
	}
	fmt.Printf("Task %s registered; submit it yourself, then run:\n  ailabber attach %s <slurm-job-id>\n",
		resp["task_id"], resp["task_id"])
}

func runAttach(taskID, slurmJobID string) {
	client := newClient()
	ctx := context.Background()
	if _, err := client.AttachSlurmJobID(ctx, taskID, slurmJobID); err != nil {
		exitWithError("attach failed", err)
	}
	fmt.Printf("Task %s attached to Slurm job %s\n", taskID, slurmJobID)
}
