package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vllmfleet/pkg/config"
	"vllmfleet/pkg/dispatch"
	"vllmfleet/pkg/router"
)

// dispatchCmd represents the dispatch command
var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch a prompt workload across one or more served models",
	Long: `Dispatch a prompt workload across the serving instances of one or more
models. Each model runs in its own fault boundary, so a hang or crash in
one model's run never blocks the others. Results are written as one JSONL
file per model under the output directory, one line per sample.`,
	Run: func(cmd *cobra.Command, args []string) {
		modelNames, err := cmd.Flags().GetStringSlice("model-names")
		if err != nil {
			log.Fatalf("Error getting model names: %v", err)
		}
		outputDir, err := cmd.Flags().GetString("output-dir")
		if err != nil {
			log.Fatalf("Error getting output dir: %v", err)
		}
		perInstance, err := cmd.Flags().GetInt("concurrent-tasks-per-instance")
		if err != nil {
			log.Fatalf("Error getting concurrency factor: %v", err)
		}
		inputPath, err := cmd.Flags().GetString("input")
		if err != nil {
			log.Fatalf("Error getting input path: %v", err)
		}

		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		if perInstance < 1 {
			log.Fatalf("concurrent-tasks-per-instance must be at least 1, got %d", perInstance)
		}

		var samples []dispatch.Sample
		if inputPath != "" {
			samples, err = dispatch.LoadSamples(inputPath)
			if err != nil {
				log.Fatalf("Error loading samples: %v", err)
			}
			fmt.Printf("Loaded %d samples from %s\n", len(samples), inputPath)
		} else {
			samples = dispatch.DummySamples(100)
			fmt.Printf("No --input given, using %d dummy samples\n", len(samples))
		}

		overrides := router.DefaultOverrides()
		outcomes := make(chan modelOutcome, len(modelNames))
		for _, model := range modelNames {
			go runModel(cfg, model, outputDir, perInstance, samples, overrides, outcomes)
		}

		// Collect every model's outcome independently; one failure never
		// cancels the siblings.
		failed := 0
		for range modelNames {
			outcome := <-outcomes
			if outcome.err != nil {
				failed++
				log.Printf("Error during processing of %s: %v", outcome.model, outcome.err)
				continue
			}
			fmt.Printf("Model %s completed: %d succeeded, %d failed -> %s\n",
				outcome.model, outcome.stats.Completed, outcome.stats.Failed, outcome.outputPath)
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

type modelOutcome struct {
	model      string
	outputPath string
	stats      dispatch.Stats
	err        error
}

// runModel is one model's isolated dispatch run. The deferred recover is
// the fault boundary: a panic here is reported as this model's failure and
// never reaches the other models' goroutines.
func runModel(cfg *config.Config, model, outputDir string, perInstance int, samples []dispatch.Sample, overrides map[string]router.ModelConfig, outcomes chan<- modelOutcome) {
	outcome := modelOutcome{model: model}
	defer func() {
		if r := recover(); r != nil {
			outcome.err = fmt.Errorf("panic: %v", r)
		}
		outcomes <- outcome
	}()

	r, err := router.Open(model, cfg.AccessInfoPath(model))
	if err != nil {
		outcome.err = err
		return
	}
	limit := perInstance * r.InstanceCount()
	fmt.Printf("Establishing router for %s: %d instance(s), concurrency limit %d\n",
		model, r.InstanceCount(), limit)

	modelCfg := router.ConfigFor(model, overrides)
	if response, err := r.Establish(context.Background(), modelCfg); err != nil {
		log.Printf("Warning: establishment probe for %s failed: %v", model, err)
	} else {
		fmt.Printf("Router for %s established successfully - %s\n", model, response)
	}

	outcome.outputPath = filepath.Join(outputDir, model+".jsonl")
	sink, err := dispatch.NewSink(outcome.outputPath)
	if err != nil {
		outcome.err = err
		return
	}

	stats, err := dispatch.Run(context.Background(), model, r, modelCfg, samples, limit, sink)
	if closeErr := sink.Close(); err == nil {
		err = closeErr
	}
	outcome.stats = stats
	outcome.err = err
}

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().StringSliceP("model-names", "m", nil, "Models to dispatch against (repeat or comma-separate)")
	dispatchCmd.Flags().StringP("output-dir", "o", "", "Directory for per-model result files")
	dispatchCmd.Flags().StringP("input", "i", "", "JSONL file of samples (objects with a user_prompt field)")
	dispatchCmd.Flags().Int("concurrent-tasks-per-instance", 10, "In-flight requests allowed per serving instance")

	dispatchCmd.MarkFlagRequired("model-names")
	dispatchCmd.MarkFlagRequired("output-dir")
}
