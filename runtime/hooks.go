package runtime

import (
	"context"
	"sync"

	"github.com/initializ/cip/guardrail"
	"github.com/initializ/cip/llm"
)

// HookPoint identifies when a hook fires during mediation.
type HookPoint int

const (
	BeforeGenerate HookPoint = iota
	AfterGenerate
	OnIntervention
	OnError
)

func (p HookPoint) String() string {
	switch p {
	case BeforeGenerate:
		return "before_generate"
	case AfterGenerate:
		return "after_generate"
	case OnIntervention:
		return "on_intervention"
	case OnError:
		return "on_error"
	default:
		return "unknown"
	}
}

// HookContext carries data available to hooks at each hook point.
type HookContext struct {
	Request  *llm.Request
	Response *llm.Response
	Result   *guardrail.Result
	Error    error
}

// Hook is a function invoked at a specific point of a mediated generation.
type Hook func(ctx context.Context, hctx *HookContext) error

// HookRegistry holds the hooks for each point. It is safe for concurrent
// use; Fire runs against the hooks registered when it was called.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[HookPoint][]Hook
}

// NewHookRegistry creates an empty HookRegistry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks: make(map[HookPoint][]Hook),
	}
}

// Register adds a hook for the given point. Hooks fire in registration order.
func (r *HookRegistry) Register(point HookPoint, h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[point] = append(r.hooks[point], h)
}

// Len reports how many hooks are registered for point.
func (r *HookRegistry) Len(point HookPoint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[point])
}

// Fire runs the hooks for point in order and stops at the first error. A nil
// registry fires nothing.
func (r *HookRegistry) Fire(ctx context.Context, point HookPoint, hctx *HookContext) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	hooks := r.hooks[point]
	r.mu.RUnlock()
	for _, h := range hooks {
		if err := h(ctx, hctx); err != nil {
			return err
		}
	}
	return nil
}
