/*
router.go wraps a model's published endpoint inventory and exposes a
single "send a chat completion to this model" call, spreading requests
across every serving instance.
*/
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"vllmfleet/pkg/registry"
)

// UnknownModelError indicates a model with no published endpoint inventory.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("no endpoint inventory published for model %q", e.Model)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Router holds the fixed endpoint set for one model. The set is immutable
// once constructed, so it is safe to share across any number of in-flight
// request tasks.
type Router struct {
	model     string
	instances []registry.AccessInfo
	client    *retryablehttp.Client
	next      atomic.Uint64
}

// New builds a router over a loaded inventory. Every instance in the
// inventory is eligible to receive traffic; requests rotate across them.
func New(model string, instances []registry.AccessInfo) (*Router, error) {
	if len(instances) == 0 {
		return nil, &UnknownModelError{Model: model}
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient.Timeout = 5 * time.Minute

	return &Router{
		model:     model,
		instances: instances,
		client:    client,
	}, nil
}

// Open loads the model's inventory file and builds a router over it. A
// missing file means the model was never launched here.
func Open(model, accessInfoPath string) (*Router, error) {
	instances, err := registry.Load(accessInfoPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &UnknownModelError{Model: model}
		}
		return nil, err
	}
	return New(model, instances)
}

// InstanceCount reports how many serving instances back this model. The
// dispatcher sizes its concurrency ceiling from it.
func (r *Router) InstanceCount() int {
	return len(r.instances)
}

// Model returns the model this router serves.
func (r *Router) Model() string {
	return r.model
}

// Send posts one chat completion to the model and returns the response
// text, selecting the next serving instance round-robin.
func (r *Router) Send(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	idx := int(r.next.Add(1)-1) % len(r.instances)
	return r.sendTo(ctx, r.instances[idx], messages, opts)
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stop        []string  `json:"stop,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (r *Router) sendTo(ctx context.Context, instance registry.AccessInfo, messages []Message, opts CompletionOptions) (string, error) {
	// The inventory stores the litellm-style "hosted_vllm/" name; the
	// server itself is registered under the bare model path.
	model := strings.TrimPrefix(instance.CompletionParams.Model, "hosted_vllm/")

	body, err := json.Marshal(completionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stop:        opts.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	url := instance.CompletionParams.APIBase + "/chat/completions"
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+instance.CompletionParams.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion request to %s returned status %d: %s",
			url, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed completionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response from %s contained no choices", url)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Establish sends a tiny completion through the router to confirm the
// model answers before a workload is dispatched at it, and returns the
// model's response.
func (r *Router) Establish(ctx context.Context, cfg ModelConfig) (string, error) {
	messages := BuildMessages(cfg, "You are a helpful assistant.",
		fmt.Sprintf("Print out the text: %s ready!", r.model))
	return r.Send(ctx, messages, cfg.Completion)
}

// CheckReachability probes every serving instance with a tiny completion
// until all of them answer, retrying each round after interval. A
// maxRounds of zero retries forever; callers should warn the operator
// before entering an uncapped wait on allocated GPUs.
func (r *Router) CheckReachability(ctx context.Context, interval time.Duration, maxRounds int) error {
	probe := []Message{
		{Role: "user", Content: `Tell me "Hello, world!" without any additional text.`},
	}
	opts := CompletionOptions{MaxTokens: 50, Temperature: 0.0}

	reachable := make([]bool, len(r.instances))
	for round := 1; ; round++ {
		for idx, instance := range r.instances {
			if reachable[idx] {
				continue
			}
			response, err := r.sendTo(ctx, instance, probe, opts)
			if err != nil {
				continue
			}
			log.Printf("Reachable: %s (%s) - %s",
				instance.ModelName, instance.CompletionParams.APIBase, response)
			reachable[idx] = true
		}

		pending := 0
		for _, ok := range reachable {
			if !ok {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}
		if maxRounds > 0 && round >= maxRounds {
			return fmt.Errorf("%d/%d instances of %s still unreachable after %d rounds",
				pending, len(r.instances), r.model, round)
		}

		log.Printf("(%s) %d/%d instances are not reachable yet. Waiting for %s...",
			r.model, pending, len(r.instances), interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
