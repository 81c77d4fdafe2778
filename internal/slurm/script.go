// Package slurm is the shared Slurm CLI adapter: batch-script generation,
// subprocess invocation of sbatch/sacct/squeue/scancel, and state-mapping.
// Both the Local Submitter and the Remote Server link this one package so
// the script layout and state-parsing rules never drift between the local
// and remote code paths.
package slurm

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ScriptSpec is everything needed to render a batch script.
type ScriptSpec struct {
	TaskID    string
	Username  string
	Workdir   string
	Commands  []string
	GPUs      int
	CPUs      int
	Memory    string
	TimeLimit string
	Partition string
	QOS       string
	Exclude   string

	OutputFile string // absolute path, <workdir>/.slurm/<task_id>.out
	ErrorFile  string // absolute path, <workdir>/.slurm/<task_id>.err
}

// JobName derives the #SBATCH --job-name value from the task id.
func (s ScriptSpec) JobName() string {
	return "ailabber_" + s.TaskID
}

// Build renders the batch script bytes written to disk (the bytes Slurm
// itself reads). The output is deterministic for fixed inputs: a round trip
// on the same host with the same ScriptSpec is byte-identical.
func Build(spec ScriptSpec) []byte {
	var b strings.Builder

	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "#SBATCH --job-name=%s\n", spec.JobName())
	fmt.Fprintf(&b, "#SBATCH --output=%s\n", spec.OutputFile)
	fmt.Fprintf(&b, "#SBATCH --error=%s\n", spec.ErrorFile)
	fmt.Fprintf(&b, "#SBATCH --time=%s\n", spec.TimeLimit)
	fmt.Fprintf(&b, "#SBATCH --cpus-per-task=%d\n", spec.CPUs)
	fmt.Fprintf(&b, "#SBATCH --mem=%s\n", spec.Memory)
	if spec.GPUs > 0 {
		fmt.Fprintf(&b, "#SBATCH --gres=gpu:%d\n", spec.GPUs)
	}
	if spec.Partition != "" {
		fmt.Fprintf(&b, "#SBATCH --partition=%s\n", spec.Partition)
	}
	if spec.QOS != "" {
		fmt.Fprintf(&b, "#SBATCH --qos=%s\n", spec.QOS)
	}
	if spec.Exclude != "" {
		fmt.Fprintf(&b, "#SBATCH --exclude=%s\n", spec.Exclude)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "echo 'Task ID: %s'\n", spec.TaskID)
	fmt.Fprintf(&b, "echo 'User: %s'\n", spec.Username)
	b.WriteString("echo 'Start Time: '$(date)\n")
	fmt.Fprintf(&b, "echo 'Working Directory: %s'\n", spec.Workdir)
	b.WriteString("echo '----------------------------------------'\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "cd %s\n", spec.Workdir)
	b.WriteString("\n")

	// Commands are written one per line, unmodified — preserving any
	// shell failure-chaining (;, ||) the user relied on. This is
	// semantically equivalent to, but textually distinct from, the `&&`
	// concatenation used when commands are passed as a single shell
	// string elsewhere.
	for _, cmd := range spec.Commands {
		b.WriteString(cmd)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString("echo '----------------------------------------'\n")
	b.WriteString("echo 'End Time: '$(date)\n")
	fmt.Fprintf(&b, "echo 'Task %s finished with exit code: '$?\n", spec.TaskID)

	return []byte(b.String())
}

// JoinCommands concatenates commands with && for contexts that pass them as
// a single shell string (kept semantically equivalent to the one-per-line
// script body; any command using ; or || verbatim is preserved in both
// forms since neither form rewrites the command text itself).
func JoinCommands(commands []string) string {
	return strings.Join(commands, " && ")
}

// Paths is the fixed artifact layout under <workdir>/.slurm/.
type Paths struct {
	Dir    string
	Script string
	Stdout string
	Stderr string
}

// ArtifactPaths returns the output/error/script file paths for a task,
// rooted at workdir/.slurm/<task_id>.{out,err,sh}.
func ArtifactPaths(workdir, taskID string) Paths {
	dir := filepath.Join(workdir, ".slurm")
	return Paths{
		Dir:    dir,
		Script: filepath.Join(dir, taskID+".sh"),
		Stdout: filepath.Join(dir, taskID+".out"),
		Stderr: filepath.Join(dir, taskID+".err"),
	}
}
