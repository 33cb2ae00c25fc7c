/*
registry.go derives the serving-endpoint inventory for a model from its
node allocation and publishes it as the durable access-info artifact.
One endpoint exists per tensor-parallel group per node, each on its own
port starting at the configured base port.
*/
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// InvalidShardingError indicates a tensor-parallel size that does not
// evenly divide the accelerators on a node.
type InvalidShardingError struct {
	TensorParallelSize int
	GPUsPerNode        int
}

func (e *InvalidShardingError) Error() string {
	return fmt.Sprintf("tensor parallel size %d does not divide %d GPUs per node",
		e.TensorParallelSize, e.GPUsPerNode)
}

// Endpoint is one independently addressable serving instance.
type Endpoint struct {
	Model string
	Node  string
	Port  int
	Shard int
}

// APIBase is the OpenAI-compatible base URL of the endpoint.
func (e Endpoint) APIBase() string {
	return fmt.Sprintf("http://%s:%d/v1", e.Node, e.Port)
}

// AccessInfo is one element of the published inventory file. The shape is
// a contract with dispatch: dispatch runs against the file alone, with no
// dependency on the launching process.
type AccessInfo struct {
	ModelName        string           `json:"model_name"`
	CompletionParams CompletionParams `json:"completion_params"`
}

// CompletionParams identifies the serving instance behind an AccessInfo.
type CompletionParams struct {
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
}

// placeholderAPIKey satisfies vLLM's OpenAI-compatible auth; the servers
// are not configured with real keys.
const placeholderAPIKey = "token-123"

// Build produces the complete endpoint inventory for a model: for each
// node, one endpoint per tensor-parallel group, ports counted up from
// basePort. The order is stable (node-major, shard-minor).
func Build(model string, nodes []string, tensorParallelSize, gpusPerNode, basePort int) ([]Endpoint, error) {
	if tensorParallelSize <= 0 || gpusPerNode%tensorParallelSize != 0 {
		return nil, &InvalidShardingError{
			TensorParallelSize: tensorParallelSize,
			GPUsPerNode:        gpusPerNode,
		}
	}

	shardsPerNode := gpusPerNode / tensorParallelSize
	endpoints := make([]Endpoint, 0, len(nodes)*shardsPerNode)
	for _, node := range nodes {
		for i := 0; i < shardsPerNode; i++ {
			endpoints = append(endpoints, Endpoint{
				Model: model,
				Node:  node,
				Port:  basePort + i,
				Shard: i,
			})
		}
	}
	return endpoints, nil
}

// Write publishes the inventory to path as the access-info JSON artifact,
// creating parent directories as needed. The file is written once and
// never mutated afterwards.
func Write(path string, endpoints []Endpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create access info directory: %w", err)
	}

	infos := make([]AccessInfo, 0, len(endpoints))
	for _, ep := range endpoints {
		infos = append(infos, AccessInfo{
			ModelName: ep.Model,
			CompletionParams: CompletionParams{
				Model:   "hosted_vllm/" + ep.Model,
				APIKey:  placeholderAPIKey,
				APIBase: ep.APIBase(),
			},
		})
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal access info: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write access info: %w", err)
	}
	return nil
}

// Load reads a published inventory file back.
func Load(path string) ([]AccessInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var infos []AccessInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("failed to parse access info %s: %w", path, err)
	}
	return infos, nil
}
