/*
slurm.go renders and submits the batch runfile that brings up a vLLM
serving job, and wraps the thin sbatch/squeue plumbing around it.
*/
package slurm

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"vllmfleet/pkg/config"
)

// NodeAnnouncementPrefix is what the batch script echoes as the first line
// of the job log; the readiness watcher keys on it.
const NodeAnnouncementPrefix = "Nodes: "

var runfileTemplate = template.Must(template.New("runfile").Parse(`#!/bin/bash
#SBATCH --partition={{.Partition}}
#SBATCH -o {{.LogPath}}
#SBATCH --job-name={{.JobName}}
#SBATCH --nodes={{.Nodes}}
#SBATCH --ntasks={{.Nodes}}
#SBATCH --ntasks-per-node=1
#SBATCH --gpus-per-task={{.GPUsPerNode}}
#SBATCH --cpus-per-gpu=10
#SBATCH --mem-per-gpu=32G

export MASTER_ADDR=$(hostname)

echo "Nodes: $SLURM_JOB_NODELIST"
echo "Master addr: $MASTER_ADDR"

srun -l sh -c 'bash main.sh -m {{.ModelPath}}{{.ExtraArgs}}'
`))

// Job describes one submitted serving job. NodeNames stays empty until the
// readiness watcher confirms the allocation.
type Job struct {
	ID          string
	Name        string
	Model       string
	Nodes       int
	RunfilePath string
	LogPath     string
	NodeNames   []string
}

// SubmitRequest carries everything needed to render and submit a runfile.
type SubmitRequest struct {
	JobName            string
	Model              string
	Nodes              int
	TensorParallelSize int
	LoraPath           string
}

type runfileParams struct {
	Partition   string
	LogPath     string
	JobName     string
	Nodes       int
	GPUsPerNode int
	ModelPath   string
	ExtraArgs   string
}

// Submit renders the runfile under <LOG_DIR>/scripts, points the job log at
// <LOG_DIR>/logs, and hands the runfile to sbatch. File names carry an
// execution timestamp so repeated launches of the same job never collide.
func Submit(cfg *config.Config, req SubmitRequest) (*Job, error) {
	executionID := time.Now().Format("20060102_150405")
	runfilePath := filepath.Join(cfg.ScriptsDir(), fmt.Sprintf("%s_%s.slurm", req.JobName, executionID))
	logPath := filepath.Join(cfg.LogsDir(), fmt.Sprintf("%s_%s.log", req.JobName, executionID))

	for _, dir := range []string{cfg.ScriptsDir(), cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := writeRunfile(cfg, req, runfilePath, logPath, executionID); err != nil {
		return nil, err
	}

	out, err := exec.Command("sbatch", runfilePath).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("sbatch failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return &Job{
		ID:          fmt.Sprintf("%s-%s", req.JobName, executionID),
		Name:        req.JobName,
		Model:       req.Model,
		Nodes:       req.Nodes,
		RunfilePath: runfilePath,
		LogPath:     logPath,
	}, nil
}

// writeRunfile renders the batch script for a submission.
func writeRunfile(cfg *config.Config, req SubmitRequest, runfilePath, logPath, executionID string) error {
	var extra strings.Builder
	if req.LoraPath != "" {
		fmt.Fprintf(&extra, " -l %s", req.LoraPath)
	}
	if req.TensorParallelSize > 0 {
		fmt.Fprintf(&extra, " -t %d", req.TensorParallelSize)
	}

	f, err := os.Create(runfilePath)
	if err != nil {
		return fmt.Errorf("failed to create runfile: %w", err)
	}
	renderErr := runfileTemplate.Execute(f, runfileParams{
		Partition:   cfg.SlurmPartition,
		LogPath:     logPath,
		JobName:     fmt.Sprintf("%s-%s", req.JobName, executionID),
		Nodes:       req.Nodes,
		GPUsPerNode: cfg.GPUsPerNode,
		ModelPath:   req.Model,
		ExtraArgs:   extra.String(),
	})
	if closeErr := f.Close(); renderErr == nil {
		renderErr = closeErr
	}
	if renderErr != nil {
		return fmt.Errorf("failed to write runfile: %w", renderErr)
	}
	return nil
}

// QueueStatus returns the caller's squeue listing, for a quick post-submit
// sanity print.
func QueueStatus() (string, error) {
	out, err := exec.Command("squeue", "--me").Output()
	if err != nil {
		return "", fmt.Errorf("squeue failed: %w", err)
	}
	return string(out), nil
}
