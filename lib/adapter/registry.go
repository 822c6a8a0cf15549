// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownAgentType reports a lookup for an agent type with no
// registered adapter.
var ErrUnknownAgentType = errors.New("unknown agent type")

// Registry holds the adapters available to a session manager, keyed
// by agent type. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]*Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]*Adapter)}
}

// Builtin returns a registry preloaded with the claude and codex
// adapters.
func Builtin() *Registry {
	registry := NewRegistry()
	for _, manifest := range builtinManifests {
		compiled, err := manifest.Compile()
		if err != nil {
			panic(fmt.Sprintf("built-in adapter %q: %v", manifest.Type, err))
		}
		if err := registry.Register(compiled); err != nil {
			panic(err)
		}
	}
	return registry
}

// Register adds an adapter. Registering a type that already exists is
// an error; use LoadDir with distinct type keys to extend the
// built-in set.
func (r *Registry) Register(a *Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byType[a.agentType]; exists {
		return fmt.Errorf("agent type %q already registered", a.agentType)
	}
	r.byType[a.agentType] = a
	return nil
}

// Get returns the adapter for agentType, or an error naming the
// registered types.
func (r *Registry) Get(agentType string) (*Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	compiled, ok := r.byType[agentType]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)",
			ErrUnknownAgentType, agentType, strings.Join(r.typesLocked(), ", "))
	}
	return compiled, nil
}

// Types returns the registered agent-type keys, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.typesLocked()
}

func (r *Registry) typesLocked() []string {
	types := make([]string, 0, len(r.byType))
	for agentType := range r.byType {
		types = append(types, agentType)
	}
	sort.Strings(types)
	return types
}
