package prompt

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownPrompt is returned when a prompt ID is not registered.
var ErrUnknownPrompt = errors.New("prompt not found")

// Registry maps prompt IDs to templates. Stages receive it explicitly;
// overrides loaded later replace built-ins with the same ID.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*PromptTemplate
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]*PromptTemplate{}}
}

// Register stores pt under its ID.
func (r *Registry) Register(pt *PromptTemplate) error {
	if pt == nil || pt.ID == "" {
		return fmt.Errorf("prompt ID cannot be empty")
	}
	r.mu.Lock()
	r.byID[pt.ID] = pt
	r.mu.Unlock()
	return nil
}

// Lookup returns the template registered under id.
func (r *Registry) Lookup(id string) (*PromptTemplate, error) {
	r.mu.RLock()
	pt, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, id)
	}
	return pt, nil
}

// System returns the system message of id, or "" when it has none.
func (r *Registry) System(id string) string {
	pt, err := r.Lookup(id)
	if err != nil {
		return ""
	}
	return pt.SystemPrompt
}

// Render executes the user template of id with vars.
func (r *Registry) Render(id string, vars map[string]interface{}) (string, error) {
	pt, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	ctx := NewContext()
	for k, v := range vars {
		ctx.Set(k, v)
	}
	return RenderUserPrompt(pt, ctx)
}

// IDs lists the registered IDs in category, sorted. An empty category
// lists every prompt.
func (r *Registry) IDs(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, pt := range r.byID {
		if category == "" || pt.Category == category {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Missing reports which of ids are not registered, in the order given.
func (r *Registry) Missing(ids ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range ids {
		if r.byID[id] == nil {
			out = append(out, id)
		}
	}
	return out
}
