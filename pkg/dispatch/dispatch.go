/*
dispatch.go fans a workload of prompt samples out across a model's serving
instances under a concurrency ceiling, streaming one result record per
sample to the sink in completion order.
*/
package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"vllmfleet/pkg/router"
)

const systemPrompt = "You are a helpful assistant."

// Sample is one unit of work: a "user_prompt" field plus arbitrary
// pass-through metadata that must reappear in the result record.
type Sample map[string]any

// Sender is the capability the dispatcher needs from a router.
type Sender interface {
	Send(ctx context.Context, messages []router.Message, opts router.CompletionOptions) (string, error)
}

// Stats summarizes one dispatch run.
type Stats struct {
	Completed int
	Failed    int
}

// Run processes every sample against the model, keeping at most limit
// requests in flight at once. Each sample yields exactly one record in the
// sink: on success the response plus all original sample fields, on
// failure only the error text (matching the completion failure path, where
// the original fields are not echoed back). A failing sample never aborts
// the run.
func Run(ctx context.Context, model string, sender Sender, cfg router.ModelConfig, samples []Sample, limit int, sink *Sink) (Stats, error) {
	if limit < 1 {
		return Stats{}, fmt.Errorf("concurrency limit must be at least 1, got %d", limit)
	}

	sem := semaphore.NewWeighted(int64(limit))
	results := make(chan map[string]any)

	var wg sync.WaitGroup
	wg.Add(len(samples))
	for _, sample := range samples {
		go func(sample Sample) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- map[string]any{"error": err.Error()}
				return
			}
			record := processSample(ctx, sender, cfg, sample)
			sem.Release(1)
			results <- record
		}(sample)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var stats Stats
	total := len(samples)
	for record := range results {
		if err := sink.Write(record); err != nil {
			// Keep draining so the workers can finish, but report the
			// sink failure; partial output is already on disk.
			for range results {
			}
			return stats, err
		}
		if _, failed := record["error"]; failed {
			stats.Failed++
		} else {
			stats.Completed++
		}
		done := stats.Completed + stats.Failed
		if done%10 == 0 || done == total {
			log.Printf("(%s) processed %d/%d samples (%d failed)", model, done, total, stats.Failed)
		}
	}
	return stats, nil
}

// processSample builds the model-specific request for one sample and turns
// the outcome into a result record. Failures are captured, never returned.
func processSample(ctx context.Context, sender Sender, cfg router.ModelConfig, sample Sample) map[string]any {
	userPrompt, ok := sample["user_prompt"].(string)
	if !ok {
		return map[string]any{"error": "sample has no user_prompt field"}
	}

	messages := router.BuildMessages(cfg, systemPrompt, userPrompt)
	response, err := sender.Send(ctx, messages, cfg.Completion)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	record := make(map[string]any, len(sample)+1)
	record["response"] = response
	for k, v := range sample {
		record[k] = v
	}
	return record
}

// LoadSamples reads a JSONL workload file, one sample object per line.
func LoadSamples(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open samples file: %w", err)
	}
	defer f.Close()

	var samples []Sample
	scanner := bufio.NewScanner(f)
	// Prompts can be long; grow the line buffer well past the default.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var sample Sample
		if err := json.Unmarshal(line, &sample); err != nil {
			return nil, fmt.Errorf("bad sample on line %d of %s: %w", lineNo, path, err)
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples file: %w", err)
	}
	return samples, nil
}

// DummySamples builds the placeholder workload used when no input file is
// given.
func DummySamples(n int) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{"user_prompt": "Hello, how are you?"}
	}
	return samples
}
