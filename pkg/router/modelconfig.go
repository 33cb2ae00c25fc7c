package router

// CompletionOptions are the sampling parameters sent with each request.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// ModelConfig captures the quirks of one model family: which role names
// its chat template expects and which sampling parameters to use.
type ModelConfig struct {
	SystemRole string
	UserRole   string
	Completion CompletionOptions
}

// DefaultModelConfig is what a model gets when no override is registered.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		SystemRole: "system",
		UserRole:   "user",
		Completion: CompletionOptions{
			MaxTokens:   1024,
			Temperature: 0.0,
		},
	}
}

// DefaultOverrides enumerates the models that deviate from the default.
// Nemotron uses capitalized role names and needs explicit stop tokens to
// keep it from running past the end of its turn.
func DefaultOverrides() map[string]ModelConfig {
	return map[string]ModelConfig{
		"mgoin/Nemotron-4-340B-Instruct-hf-FP8": {
			SystemRole: "System",
			UserRole:   "User",
			Completion: CompletionOptions{
				MaxTokens:   1024,
				Temperature: 0.0,
				Stop:        []string{"<|endoftext|>", "<extra_id_1>", "\x11", "<extra_id_1>User"},
			},
		},
	}
}

// ConfigFor looks a model up in the override map and falls back to the
// default config when it is not listed.
func ConfigFor(model string, overrides map[string]ModelConfig) ModelConfig {
	if cfg, ok := overrides[model]; ok {
		return cfg
	}
	return DefaultModelConfig()
}

// BuildMessages assembles the two-turn prompt for a model, using the role
// names its chat template expects.
func BuildMessages(cfg ModelConfig, systemPrompt, userPrompt string) []Message {
	return []Message{
		{Role: cfg.SystemRole, Content: systemPrompt},
		{Role: cfg.UserRole, Content: userPrompt},
	}
}
