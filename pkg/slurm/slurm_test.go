package slurm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vllmfleet/pkg/config"
)

func TestWriteRunfile(t *testing.T) {
	cfg := &config.Config{
		LogDir:         t.TempDir(),
		SlurmPartition: "gpu",
		StartPort:      8000,
		GPUsPerNode:    8,
	}
	req := SubmitRequest{
		JobName:            "serve-solar",
		Model:              "upstage/solar-pro-preview-instruct",
		Nodes:              2,
		TensorParallelSize: 4,
		LoraPath:           "/data/loras/solar",
	}

	runfilePath := filepath.Join(cfg.LogDir, "serve-solar.slurm")
	logPath := filepath.Join(cfg.LogDir, "serve-solar.log")
	if err := writeRunfile(cfg, req, runfilePath, logPath, "20250101_120000"); err != nil {
		t.Fatalf("writeRunfile failed: %v", err)
	}

	data, err := os.ReadFile(runfilePath)
	if err != nil {
		t.Fatalf("failed to read runfile: %v", err)
	}
	script := string(data)

	for _, want := range []string{
		"#SBATCH --partition=gpu",
		"#SBATCH -o " + logPath,
		"#SBATCH --job-name=serve-solar-20250101_120000",
		"#SBATCH --nodes=2",
		"#SBATCH --ntasks=2",
		"#SBATCH --gpus-per-task=8",
		`echo "Nodes: $SLURM_JOB_NODELIST"`,
		"-m upstage/solar-pro-preview-instruct -l /data/loras/solar -t 4",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("runfile missing %q.\nGot:\n%s", want, script)
		}
	}
}

func TestWriteRunfileNoOptionalArgs(t *testing.T) {
	cfg := &config.Config{LogDir: t.TempDir(), SlurmPartition: "batch", GPUsPerNode: 8}
	req := SubmitRequest{JobName: "j", Model: "m", Nodes: 1}

	runfilePath := filepath.Join(cfg.LogDir, "j.slurm")
	if err := writeRunfile(cfg, req, runfilePath, filepath.Join(cfg.LogDir, "j.log"), "x"); err != nil {
		t.Fatalf("writeRunfile failed: %v", err)
	}

	data, _ := os.ReadFile(runfilePath)
	if !strings.Contains(string(data), "srun -l sh -c 'bash main.sh -m m'") {
		t.Errorf("runfile carries optional args that were not requested:\n%s", data)
	}
}
