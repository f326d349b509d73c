package model

import (
	"encoding/json"
	"slices"
	"sync"
)

// Registry manages model selection based on capabilities.
// It maps capabilities to preferred models with fallback chains.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	aliases      map[string]string
	defaults     *DefaultsConfig
	health       *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Description explains what this capability is for.
	Description string `json:"description"`

	// Preferred lists models in order of preference.
	// The first available model is used.
	Preferred []string `json:"preferred"`

	// Fallback lists backup models if all preferred fail.
	Fallback []string `json:"fallback"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the model provider (anthropic, ollama, openai, gemini).
	Provider string `json:"provider"`

	// URL is the API endpoint URL (for non-Anthropic providers).
	URL string `json:"url,omitempty"`

	// Model is the actual model identifier to send to the provider.
	Model string `json:"model"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// DefaultsConfig holds default model settings.
type DefaultsConfig struct {
	// Model is the default model when no capability matches.
	Model string `json:"model"`
}

// NewRegistry creates a new model registry with the given configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		aliases:      make(map[string]string),
		defaults: &DefaultsConfig{
			Model: "default",
		},
	}
}

// NewDefaultRegistry creates a registry with sensible defaults.
// Every default endpoint is a small local model served by Ollama, so the
// compiler works offline out of the box.
func NewDefaultRegistry() *Registry {
	return &Registry{
		capabilities: map[Capability]*CapabilityConfig{
			CapabilityReasoning: {
				Description: "Decompose an instruction into logic units",
				Preferred:   []string{"qwen"},
				Fallback:    []string{"deepseek", "qwen-mini"},
			},
			CapabilityPseudocode: {
				Description: "Render a logic plan as pseudocode",
				Preferred:   []string{"qwen"},
				Fallback:    []string{"qwen-mini"},
			},
			CapabilityCoding: {
				Description: "Generate and repair Python stubs",
				Preferred:   []string{"deepseek"},
				Fallback:    []string{"qwen"},
			},
			CapabilityFast: {
				Description: "Quick responses, simple tasks",
				Preferred:   []string{"qwen-mini"},
				Fallback:    []string{"qwen"},
			},
		},
		endpoints: map[string]*EndpointConfig{
			"deepseek": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "deepseek-coder:1.3b-instruct",
				MaxTokens: 16384,
			},
			"qwen": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "qwen2.5:1.5b-instruct",
				MaxTokens: 32768,
			},
			"qwen-mini": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "qwen2.5:0.5b-instruct",
				MaxTokens: 32768,
			},
			"phi-mini": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "phi3.5",
				MaxTokens: 128000,
			},
			"claude-haiku": {
				Provider:  "anthropic",
				Model:     "claude-3-5-haiku-20241022",
				MaxTokens: 200000,
			},
			"gemini-flash": {
				Provider:  "gemini",
				Model:     "gemini-2.5-flash",
				MaxTokens: 1048576,
			},
		},
		aliases: map[string]string{
			"deepseek-coder": "deepseek",
			"qwen2.5":        "qwen",
			"phi":            "phi-mini",
			"haiku":          "claude-haiku",
			"gemini":         "gemini-flash",
		},
		defaults: &DefaultsConfig{
			Model: "qwen",
		},
	}
}

// Resolve returns the preferred model for a capability.
// Returns the first model in the preferred list.
func (r *Registry) Resolve(c Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Model
}

// GetFallbackChain returns all models for a capability in order of preference.
func (r *Registry) GetFallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaults.Model}
}

// ForStage returns the resolved model for a stage's default capability.
func (r *Registry) ForStage(stage string) string {
	return r.Resolve(CapabilityForStage(stage))
}

// GetEndpoint returns the endpoint configuration for a model name.
// Returns nil if the model is not configured.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(c Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capabilities == nil {
		r.capabilities = make(map[Capability]*CapabilityConfig)
	}
	r.capabilities[c] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	r.endpoints[name] = cfg
}

// SetAlias maps an alternative model token onto an endpoint name.
func (r *Registry) SetAlias(alias, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.aliases == nil {
		r.aliases = make(map[string]string)
	}
	r.aliases[alias] = endpoint
}

// SetDefault sets the default model.
func (r *Registry) SetDefault(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaults == nil {
		r.defaults = &DefaultsConfig{}
	}
	r.defaults.Model = model
}

// Pin routes every configured capability to a single endpoint, with no
// fallback. It is how an explicit --model token overrides capability routing.
func (r *Registry) Pin(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c, cfg := range r.capabilities {
		r.capabilities[c] = &CapabilityConfig{
			Description: cfg.Description,
			Preferred:   []string{endpoint},
		}
	}
	if r.defaults == nil {
		r.defaults = &DefaultsConfig{}
	}
	r.defaults.Model = endpoint
}

// ListCapabilities returns all configured capabilities, sorted.
func (r *Registry) ListCapabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]Capability, 0, len(r.capabilities))
	for c := range r.capabilities {
		caps = append(caps, c)
	}
	slices.Sort(caps)
	return caps
}

// ListEndpoints returns all configured endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MarshalJSON implements json.Marshaler for the registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return json.Marshal(struct {
		Capabilities map[Capability]*CapabilityConfig `json:"capabilities"`
		Endpoints    map[string]*EndpointConfig       `json:"endpoints"`
		Aliases      map[string]string                `json:"aliases,omitempty"`
		Defaults     *DefaultsConfig                  `json:"defaults,omitempty"`
	}{
		Capabilities: r.capabilities,
		Endpoints:    r.endpoints,
		Aliases:      r.aliases,
		Defaults:     r.defaults,
	})
}

// UnmarshalJSON implements json.Unmarshaler for the registry.
func (r *Registry) UnmarshalJSON(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tmp struct {
		Capabilities map[Capability]*CapabilityConfig `json:"capabilities"`
		Endpoints    map[string]*EndpointConfig       `json:"endpoints"`
		Aliases      map[string]string                `json:"aliases,omitempty"`
		Defaults     *DefaultsConfig                  `json:"defaults,omitempty"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	r.capabilities = tmp.Capabilities
	r.endpoints = tmp.Endpoints
	r.aliases = tmp.Aliases
	if r.aliases == nil {
		r.aliases = make(map[string]string)
	}
	r.defaults = tmp.Defaults
	if r.defaults == nil {
		r.defaults = &DefaultsConfig{Model: "default"}
	}
	return nil
}
