package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	submitTarget    string
	submitUpload    string
	submitWorkdir   string
	submitIgnore    []string
	submitLogs      []string
	submitResults   []string
	submitGPUs      int
	submitCPUs      int
	submitMemory    string
	submitTimeLimit string
	submitPartition string
	submitQOS       string
	submitExclude   string
)

var submitCmd = &cobra.Command{
	Use:   "submit <command>...",
	Short: "Submit a new task",
	Long: `Submit a new task to the Local Proxy. The task is submitted to Slurm
(locally or via the Remote Server, per --target) before the command
returns.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSubmit(args)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitTarget, "target", "local", "local or remote")
	submitCmd.Flags().StringVar(&submitUpload, "upload", ".", "upload root directory")
	submitCmd.Flags().StringVar(&submitWorkdir, "workdir", ".", "working directory, relative to upload root unless absolute")
	submitCmd.Flags().StringSliceVar(&submitIgnore, "ignore", nil, "paths to exclude from staging (repeatable)")
	submitCmd.Flags().StringSliceVar(&submitLogs, "logs", nil, "log paths to include in the results archive")
	submitCmd.Flags().StringSliceVar(&submitResults, "results", nil, "result paths to include in the results archive")
	submitCmd.Flags().IntVar(&submitGPUs, "gpus", 0, "GPU count")
	submitCmd.Flags().IntVar(&submitCPUs, "cpus", 1, "CPU count")
	submitCmd.Flags().StringVar(&submitMemory, "memory", "1G", "memory request")
	submitCmd.Flags().StringVar(&submitTimeLimit, "time-limit", "1:00:00", "Slurm time limit")
	submitCmd.Flags().StringVar(&submitPartition, "partition", "", "Slurm partition")
	submitCmd.Flags().StringVar(&submitQOS, "qos", "", "Slurm QOS")
	submitCmd.Flags().StringVar(&submitExclude, "exclude", "", "Slurm node exclude list")
}

func runSubmit(commands []string) {
	client := newClient()
	ctx := context.Background()

	resp, err := client.Submit(ctx, map[string]interface{}{
		"username":   username,
		"target":     submitTarget,
		"commands":   commands,
		"upload":     submitUpload,
		"ignore":     submitIgnore,
		"workdir":    submitWorkdir,
		"logs":       submitLogs,
		"results":    submitResults,
		"gpus":       submitGPUs,
		"cpus":       submitCPUs,
		"memory":     submitMemory,
		"time_limit": submitTimeLimit,
		"partition":  submitPartition,
		"qos":        submitQOS,
		"exclude":    submitExclude,
	})
	if err != nil {
		exitWithError("submit failed", err)
	}

	fmt.Printf("Task %s submitted (target=%s, slurm_job_id=%v)\n",
		resp["task_id"], resp["target"], resp["slurm_job_id"])
}
