package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"vllmfleet/pkg/db"
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List launched serving jobs",
	Long:  `List serving jobs previously launched from this machine, newest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		database, err := db.InitDB()
		if err != nil {
			log.Fatalf("Error initializing database: %v", err)
		}
		defer database.Close()

		jobs, err := database.ListJobs()
		if err != nil {
			log.Fatalf("Error listing jobs: %v", err)
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs launched yet.")
			return
		}

		for _, job := range jobs {
			fmt.Printf("%s\n", job.ID)
			fmt.Printf("  model:     %s (%d node(s))\n", job.Model, job.Nodes)
			fmt.Printf("  status:    %s\n", job.Status)
			fmt.Printf("  log:       %s\n", job.LogPath)
			fmt.Printf("  inventory: %s\n", job.InventoryPath)
			fmt.Printf("  launched:  %s\n\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
