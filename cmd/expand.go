package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"vllmfleet/pkg/hostlist"
)

// expandCmd represents the expand command
var expandCmd = &cobra.Command{
	Use:   "expand <hostlist>",
	Short: "Expand a Slurm hostlist expression to node names",
	Long: `Expand a Slurm hostlist expression like "node[01-04,07]" to the node
names it denotes, one per line.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		nodes, err := hostlist.Expand(args[0])
		if err != nil {
			log.Fatalf("Error expanding hostlist: %v", err)
		}
		for _, node := range nodes {
			fmt.Println(node)
		}
	},
}

func init() {
	rootCmd.AddCommand(expandCmd)
}
