package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Factory builds a chat provider for a concrete model name. The registry
// resolves the model before calling it, so factories never see a blank one.
type Factory func(ctx context.Context, model string) (Provider, error)

type registration struct {
	defaultModel string
	build        Factory
}

// Registry routes generation requests to a named provider. Each provider
// registers together with its default model, so callers that do not care
// about the model can leave it blank.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

func (r *Registry) Register(name, defaultModel string, build Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = registration{defaultModel: defaultModel, build: build}
}

func (r *Registry) Get(ctx context.Context, name, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = reg.defaultModel
	}
	return reg.build(ctx, model)
}
