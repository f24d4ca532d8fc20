package provider

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/modelmux/modelmux/internal/schema"
	"github.com/modelmux/modelmux/pkg/models"
)

// MockAdapter simulates a provider for local development and tests. It echoes
// the last user message after a configurable delay and can be scripted to
// throttle a fixed number of calls before succeeding.
type MockAdapter struct {
	Model    *models.Model
	MinDelay time.Duration
	MaxDelay time.Duration

	// Throttles counts down: while positive, each call fails with a
	// throttling error and decrements.
	Throttles int
}

func newMockAdapter(m *models.Model) (Adapter, error) {
	a := &MockAdapter{Model: m, MinDelay: 5 * time.Second, MaxDelay: 10 * time.Second}
	if m.ProviderRef != nil {
		if v, ok := m.ProviderRef.Config["min_delay_seconds"].(int); ok {
			a.MinDelay = time.Duration(v) * time.Second
		}
		if v, ok := m.ProviderRef.Config["max_delay_seconds"].(int); ok {
			a.MaxDelay = time.Duration(v) * time.Second
		}
	}
	return a, nil
}

func (a *MockAdapter) Start() error { return nil }
func (a *MockAdapter) Stop() error  { return nil }

func (a *MockAdapter) ServiceCall(ctx context.Context, req *models.LLMRequest) (string, models.ModelTokens, error) {
	var zero models.ModelTokens
	if err := validateConversation(a.Model, req); err != nil {
		return "", zero, err
	}
	if a.Throttles > 0 {
		a.Throttles--
		return "", zero, models.NewError(models.KindThrottling, "MOCK: simulated throttle")
	}

	delay := a.MinDelay
	if a.MaxDelay > a.MinDelay {
		delay += time.Duration(rand.Int63n(int64(a.MaxDelay - a.MinDelay)))
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", zero, models.NewError(models.KindTimeout, "MOCK: request timed out").WithCause(ctx.Err())
	}

	content := fmt.Sprintf("%s (message took %d seconds to generate).",
		req.Conversation.LastUserText(), int(delay.Seconds()))
	if req.ResponseModel != nil {
		content = mockStructured(req.ResponseModel)
	}
	return content, models.ModelTokens{Price: a.Model.Price}, nil
}

// mockStructured renders an instance with placeholder values for every
// declared field so structured-response round trips work against the mock.
func mockStructured(s *schema.Schema) string {
	rendered := *s
	rendered.Instance = mockDict(s.Definition)
	return rendered.RenderInstance()
}

func mockDict(n *schema.Node) map[string]any {
	out := map[string]any{}
	for name, f := range n.Fields {
		out[name] = mockValue(f)
	}
	return out
}

func mockValue(n *schema.Node) any {
	switch n.Type {
	case schema.TypeStr:
		return "mock"
	case schema.TypeInt:
		return 0
	case schema.TypeFloat:
		return 0.0
	case schema.TypeBool:
		return false
	case schema.TypeEnum:
		if len(n.Choices) > 0 {
			return n.Choices[0]
		}
		return "mock"
	case schema.TypeDict:
		return mockDict(n)
	case schema.TypeList:
		return []any{}
	default:
		return nil
	}
}
