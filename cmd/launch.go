package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vllmfleet/pkg/config"
	"vllmfleet/pkg/db"
	"vllmfleet/pkg/registry"
	"vllmfleet/pkg/router"
	"vllmfleet/pkg/slurm"
)

// launchCmd represents the launch command
var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a vLLM serving job on the Slurm cluster",
	Long: `Launch a vLLM serving job on the Slurm cluster, wait until the scheduler
has bound the requested nodes, and publish the model's endpoint inventory
under <LOG_DIR>/access_info. With --check-access the command additionally
probes every serving instance until it answers a completion request.`,
	Run: func(cmd *cobra.Command, args []string) {
		jobName, err := cmd.Flags().GetString("job-name")
		if err != nil {
			log.Fatalf("Error getting job name: %v", err)
		}
		nodes, err := cmd.Flags().GetInt("nodes")
		if err != nil {
			log.Fatalf("Error getting node count: %v", err)
		}
		modelPath, err := cmd.Flags().GetString("model-path")
		if err != nil {
			log.Fatalf("Error getting model path: %v", err)
		}
		tensorParallelSize, err := cmd.Flags().GetInt("tensor-parallel-size")
		if err != nil {
			log.Fatalf("Error getting tensor parallel size: %v", err)
		}
		loraPath, err := cmd.Flags().GetString("lora-path")
		if err != nil {
			log.Fatalf("Error getting lora path: %v", err)
		}
		checkAccess, err := cmd.Flags().GetBool("check-access")
		if err != nil {
			log.Fatalf("Error getting check-access flag: %v", err)
		}
		checkAccessRounds, err := cmd.Flags().GetInt("check-access-rounds")
		if err != nil {
			log.Fatalf("Error getting check-access-rounds flag: %v", err)
		}

		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}

		// Sharding errors abort before any cluster resources are used.
		if err := checkSharding(tensorParallelSize, cfg.GPUsPerNode); err != nil {
			log.Fatalf("Invalid sharding: %v", err)
		}

		confirmTimeout(cfg)

		job, err := slurm.Submit(cfg, slurm.SubmitRequest{
			JobName:            jobName,
			Model:              modelPath,
			Nodes:              nodes,
			TensorParallelSize: tensorParallelSize,
			LoraPath:           loraPath,
		})
		if err != nil {
			log.Fatalf("Error submitting job: %v", err)
		}
		fmt.Printf("Submitted job %s (runfile: %s)\n", job.ID, job.RunfilePath)

		// Give the scheduler a moment, then show the queue.
		time.Sleep(2 * time.Second)
		if status, err := slurm.QueueStatus(); err == nil {
			fmt.Print(status)
		}

		database, err := db.InitDB()
		if err != nil {
			log.Fatalf("Error initializing database: %v", err)
		}
		defer database.Close()

		record := &db.Job{
			ID:            job.ID,
			Name:          job.Name,
			Model:         job.Model,
			Nodes:         job.Nodes,
			LogPath:       job.LogPath,
			InventoryPath: cfg.AccessInfoPath(modelPath),
			Status:        db.StatusSubmitted,
			CreatedAt:     time.Now(),
		}
		if err := database.SaveJob(record); err != nil {
			log.Printf("Warning: failed to record job: %v", err)
		}

		fmt.Printf("Waiting for %d node(s) to be bound (log: %s)...\n", nodes, job.LogPath)
		nodeNames, err := slurm.AwaitReady(context.Background(), job.LogPath, nodes,
			config.DefaultPollInterval, cfg.Timeout())
		if err != nil {
			var timeoutErr *slurm.ReadinessTimeoutError
			if errors.As(err, &timeoutErr) {
				if updateErr := database.UpdateJobStatus(job.ID, db.StatusTimedOut); updateErr != nil {
					log.Printf("Warning: failed to update job status: %v", updateErr)
				}
				log.Fatalf("%v - the job may still be running; check the queue with squeue", err)
			}
			log.Fatalf("Error waiting for job readiness: %v", err)
		}
		job.NodeNames = nodeNames
		fmt.Printf("Job is ready on nodes: %v\n", nodeNames)

		endpoints, err := registry.Build(modelPath, nodeNames, tensorParallelSize, cfg.GPUsPerNode, cfg.StartPort)
		if err != nil {
			log.Fatalf("Error building endpoint inventory: %v", err)
		}
		inventoryPath := cfg.AccessInfoPath(modelPath)
		if err := registry.Write(inventoryPath, endpoints); err != nil {
			log.Fatalf("Error publishing endpoint inventory: %v", err)
		}
		fmt.Printf("Published %d endpoint(s) to %s\n", len(endpoints), inventoryPath)

		if err := database.UpdateJobStatus(job.ID, db.StatusReady); err != nil {
			log.Printf("Warning: failed to update job status: %v", err)
		}

		if checkAccess {
			fmt.Println("Checking accessibility of the model...")
			if checkAccessRounds <= 0 {
				log.Printf("Warning: no --check-access-rounds cap set; this will wait indefinitely while the allocation holds its GPUs")
			}
			r, err := router.Open(modelPath, inventoryPath)
			if err != nil {
				log.Fatalf("Error opening router for %s: %v", modelPath, err)
			}
			if err := r.CheckReachability(context.Background(), config.DefaultProbeInterval, checkAccessRounds); err != nil {
				log.Fatalf("Error checking model accessibility: %v", err)
			}
			fmt.Println("All serving instances are reachable.")
		}
	},
}

// checkSharding rejects a tensor-parallel size that cannot split a node's
// GPUs. The non-positive guard must run first so the modulo never sees a
// zero divisor.
func checkSharding(tensorParallelSize, gpusPerNode int) error {
	if tensorParallelSize <= 0 || gpusPerNode%tensorParallelSize != 0 {
		return &registry.InvalidShardingError{
			TensorParallelSize: tensorParallelSize,
			GPUsPerNode:        gpusPerNode,
		}
	}
	return nil
}

// confirmTimeout warns the operator about an infinite launch timeout (and
// asks for confirmation), or prints the ETA when a timeout is configured.
func confirmTimeout(cfg *config.Config) {
	if cfg.TimeoutSeconds <= 0 {
		fmt.Println("+=====================================[WARNING]=====================================+")
		fmt.Println("|                            Timeout is set to INFINITY.                            |")
		fmt.Println("| This means the vLLM serve will run indefinitely even if the model is not working. |")
		fmt.Println("|      It is recommended to set a timeout for better GPU resource utilization.      |")
		fmt.Println("+===================================================================================+")
		fmt.Print("Press Enter to continue... (Ctrl+C to cancel)")
		bufio.NewReader(os.Stdin).ReadString('\n')
		return
	}
	eta := time.Now().Add(cfg.Timeout())
	fmt.Printf("Timeout: %d seconds (ETA: %s)\n", cfg.TimeoutSeconds, eta.Format("2006-01-02 15:04:05 MST"))
}

func init() {
	rootCmd.AddCommand(launchCmd)

	launchCmd.Flags().StringP("job-name", "j", "", "Name of the job")
	launchCmd.Flags().IntP("nodes", "n", 1, "Number of nodes to use")
	launchCmd.Flags().StringP("model-path", "m", "", "Name of the model. Should be a Hugging Face model name. (e.g. upstage/solar-pro-preview-instruct)")
	launchCmd.Flags().IntP("tensor-parallel-size", "t", 1, "Tensor parallel size")
	launchCmd.Flags().String("lora-path", "", "Path to the lora model")
	launchCmd.Flags().Bool("check-access", false, "Validate accessibility of the model")
	launchCmd.Flags().Int("check-access-rounds", 0, "Give up the accessibility check after this many rounds (0 = retry forever)")

	launchCmd.MarkFlagRequired("job-name")
	launchCmd.MarkFlagRequired("model-path")
}
