package provider

import (
	"fmt"
	"log/slog"
	"time"

	"coverbot/internal/config"
	"coverbot/internal/domain"
)

// ProviderConstructor is a function that creates a provider from its config.
type ProviderConstructor func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider

// Factory builds the configured completion provider by name.
type Factory struct {
	logger       *slog.Logger
	constructors map[string]ProviderConstructor
}

// NewFactory creates a provider factory with the built-in constructors registered.
func NewFactory(logger *slog.Logger) *Factory {
	f := &Factory{
		logger:       logger,
		constructors: make(map[string]ProviderConstructor),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["openai"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return newOpenAIFrom(pc, logger)
	}
	f.constructors["anthropic"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewAnthropic(AnthropicConfig{
			APIKey:     pc.APIKey,
			APIBase:    pc.APIBase,
			Model:      pc.Model,
			HTTPClient: SharedHTTPClient(requestTimeout(pc)),
			Logger:     logger,
		})
	}
	f.constructors["claude"] = f.constructors["anthropic"]
}

// Build returns the provider named by pc.Name. Unknown names with an API base
// are treated as OpenAI-compatible endpoints.
func (f *Factory) Build(pc config.ProviderConfig) (domain.Provider, error) {
	name := pc.Name
	if name == "" {
		name = "openai"
	}

	if ctor, ok := f.constructors[name]; ok {
		return ctor(pc, f.logger), nil
	}
	if pc.APIBase != "" {
		return newOpenAIFrom(pc, f.logger), nil
	}
	return nil, fmt.Errorf("provider %s: no constructor registered and no API base configured", name)
}

func newOpenAIFrom(pc config.ProviderConfig, logger *slog.Logger) *OpenAI {
	return NewOpenAI(OpenAIConfig{
		APIKey:     pc.APIKey,
		APIBase:    pc.APIBase,
		Model:      pc.Model,
		HTTPClient: SharedHTTPClient(requestTimeout(pc)),
		Logger:     logger,
	})
}

func requestTimeout(pc config.ProviderConfig) time.Duration {
	return time.Duration(pc.TimeoutSeconds) * time.Second
}
