package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// RegistryConfig is the JSON configuration structure for the model registry.
// It is the format read from the file named by model.registry_file in
// semlogic.yaml.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints"`
	Aliases      map[string]string            `json:"aliases,omitempty"`
	Defaults     *DefaultsConfig              `json:"defaults,omitempty"`
}

// LoadFromFile loads a registry configuration from a JSON file.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	return LoadFromJSON(data)
}

// LoadFromJSON loads a registry from JSON data.
// Accepts either a document with a "model_registry" key or the bare registry
// config.
func LoadFromJSON(data []byte) (*Registry, error) {
	var wrapped struct {
		ModelRegistry *RegistryConfig `json:"model_registry"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.ModelRegistry != nil {
		return registryFromConfig(wrapped.ModelRegistry)
	}

	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse registry config: %w", err)
	}

	return registryFromConfig(&cfg)
}

func registryFromConfig(cfg *RegistryConfig) (*Registry, error) {
	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		c := ParseCapability(k)
		if c == "" {
			// Unknown capabilities are kept verbatim.
			c = Capability(k)
		}
		caps[c] = v
	}

	endpoints := cfg.Endpoints
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	for name, target := range cfg.Aliases {
		if _, ok := endpoints[target]; !ok {
			return nil, fmt.Errorf("alias %q targets unknown endpoint %q", name, target)
		}
	}

	aliases := cfg.Aliases
	if aliases == nil {
		aliases = make(map[string]string)
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = &DefaultsConfig{Model: "default"}
	}

	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		aliases:      aliases,
		defaults:     defaults,
	}, nil
}

// ToConfig converts a Registry to a RegistryConfig for serialization.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}

	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    r.endpoints,
		Aliases:      r.aliases,
		Defaults:     r.defaults,
	}
}

// MergeFromConfig merges configuration into an existing registry.
// Existing entries are overwritten by the new config.
func (r *Registry) MergeFromConfig(cfg *RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capabilities == nil {
		r.capabilities = make(map[Capability]*CapabilityConfig)
	}
	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	if r.aliases == nil {
		r.aliases = make(map[string]string)
	}

	for k, v := range cfg.Capabilities {
		c := ParseCapability(k)
		if c == "" {
			c = Capability(k)
		}
		r.capabilities[c] = v
	}
	for k, v := range cfg.Endpoints {
		r.endpoints[k] = v
	}
	for k, v := range cfg.Aliases {
		r.aliases[k] = v
	}
	if cfg.Defaults != nil {
		r.defaults = cfg.Defaults
	}
}
