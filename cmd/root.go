package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vllmfleet",
	Short: "CLI for serving models with vLLM on a Slurm cluster",
	Long: `vllmfleet launches distributed vLLM serving jobs on a Slurm cluster and
dispatches prompt workloads across the resulting serving instances.

Key Features:
  - Submit multi-node serving jobs and wait for the allocation to come up
  - Publish a durable endpoint inventory per model (access_info JSON)
  - Verify that every serving instance answers before sending real work
  - Fan a JSONL workload across all instances with bounded concurrency
  - Track launched jobs in a local database

Configuration comes from the environment or a .env file (LOG_DIR,
SLURM_PARTITION, START_PORT, TIMEOUT_SECONDS, GPUS_PER_NODE).

Use "vllmfleet [command] --help" for more information about a command.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; the environment may carry everything.
		godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
