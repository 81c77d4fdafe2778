package slurm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSpec() ScriptSpec {
	return ScriptSpec{
		TaskID:    "abc123",
		Username:  "alice",
		Workdir:   "/home/alice/job",
		Commands:  []string{"echo hi", "python train.py; echo done || true"},
		GPUs:      2,
		CPUs:      4,
		Memory:    "8G",
		TimeLimit: "1:00:00",
		Partition: "gpu",

		OutputFile: "/home/alice/job/.slurm/abc123.out",
		ErrorFile:  "/home/alice/job/.slurm/abc123.err",
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	spec := testSpec()
	first := Build(spec)
	second := Build(spec)
	require.Equal(t, first, second)
}

func TestBuildContainsSBATCHDirectives(t *testing.T) {
	script := string(Build(testSpec()))
	require.True(t, strings.HasPrefix(script, "#!/bin/bash\n"))
	require.Contains(t, script, "#SBATCH --job-name=ailabber_abc123")
	require.Contains(t, script, "#SBATCH --output=/home/alice/job/.slurm/abc123.out")
	require.Contains(t, script, "#SBATCH --error=/home/alice/job/.slurm/abc123.err")
	require.Contains(t, script, "#SBATCH --time=1:00:00")
	require.Contains(t, script, "#SBATCH --cpus-per-task=4")
	require.Contains(t, script, "#SBATCH --mem=8G")
	require.Contains(t, script, "#SBATCH --gres=gpu:2")
	require.Contains(t, script, "#SBATCH --partition=gpu")
}

func TestBuildOmitsGPUDirectiveWhenZero(t *testing.T) {
	spec := testSpec()
	spec.GPUs = 0
	script := string(Build(spec))
	require.NotContains(t, script, "--gres=gpu")
}

func TestBuildOmitsPartitionWhenEmpty(t *testing.T) {
	spec := testSpec()
	spec.Partition = ""
	script := string(Build(spec))
	require.NotContains(t, script, "--partition")
}

func TestBuildPreservesCommandsVerbatim(t *testing.T) {
	script := string(Build(testSpec()))
	require.Contains(t, script, "echo hi\n")
	require.Contains(t, script, "python train.py; echo done || true\n")
}

func TestBuildCdsIntoWorkdir(t *testing.T) {
	script := string(Build(testSpec()))
	require.Contains(t, script, "cd /home/alice/job\n")
}

func TestJoinCommandsUsesAndAnd(t *testing.T) {
	joined := JoinCommands([]string{"echo hi", "echo bye"})
	require.Equal(t, "echo hi && echo bye", joined)
}

func TestArtifactPaths(t *testing.T) {
	paths := ArtifactPaths("/home/alice/job", "abc123")
	require.Equal(t, "/home/alice/job/.slurm", paths.Dir)
	require.Equal(t, "/home/alice/job/.slurm/abc123.sh", paths.Script)
	require.Equal(t, "/home/alice/job/.slurm/abc123.out", paths.Stdout)
	require.Equal(t, "/home/alice/job/.slurm/abc123.err", paths.Stderr)
}
