// Package provider implements the per-vendor adapters that translate
// neutral chat requests into vendor wire calls and back.
//
// Each adapter makes exactly one vendor call per ServiceCall and never
// retries internally: throttling is surfaced as the throttling error kind
// and retried by the dispatch core. Adapter construction validates the
// required environment variables so credentials failures surface early.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/modelmux/modelmux/pkg/models"
)

// Adapter is the contract exposed to the dispatch core. Start and Stop are
// idempotent and reference-counted so a per-model singleton adapter can be
// shared across concurrent requests.
type Adapter interface {
	Start() error
	Stop() error

	// ServiceCall makes exactly one vendor call and returns the completion
	// text plus token counters.
	ServiceCall(ctx context.Context, req *models.LLMRequest) (string, models.ModelTokens, error)
}

type factory func(m *models.Model) (Adapter, error)

// factories is the closed dispatch table. Adding a vendor means adding a
// constructor here; unknown providers are a configuration error.
var factories = map[string]factory{
	"AWS":        newBedrockAdapter,
	"AZURE":      newAzureAdapter,
	"OPENAI":     newOpenAIAdapter,
	"GOOGLE":     newGoogleAdapter,
	"OPENROUTER": newOpenRouterAdapter,
	"TOGETHER":   newTogetherAdapter,
	"MOCK":       newMockAdapter,
}

// Known reports whether the provider name is in the dispatch table
// (case-insensitive).
func Known(name string) bool {
	_, ok := factories[strings.ToUpper(name)]
	return ok
}

// ForModel returns a fresh adapter bound to the model.
func ForModel(m *models.Model) (Adapter, error) {
	f, ok := factories[strings.ToUpper(m.Provider)]
	if !ok {
		return nil, fmt.Errorf("provider: no adapter for provider %q", m.Provider)
	}
	return f(m)
}

// clientRef reference-counts an underlying vendor client so Start/Stop are
// safe to call repeatedly and from concurrent requests.
type clientRef struct {
	mu   sync.Mutex
	refs int
}

func (c *clientRef) acquire(init func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		if err := init(); err != nil {
			return err
		}
	}
	c.refs++
	return nil
}

func (c *clientRef) release(shutdown func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		return
	}
	c.refs--
	if c.refs == 0 && shutdown != nil {
		shutdown()
	}
}
