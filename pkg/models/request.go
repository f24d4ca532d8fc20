package models

import (
	"github.com/google/uuid"
	"github.com/modelmux/modelmux/internal/schema"
)

// Request defaults.
const (
	DefaultTemperature = 1.0
	DefaultMaxRetries  = 5
)

// LLMRequest is the provider-neutral chat request handed to the dispatch
// core after boundary validation.
type LLMRequest struct {
	ID           string        `json:"id,omitempty"`
	RequestType  string        `json:"request_type,omitempty"` // always "chat" for this core
	Conversation *Conversation `json:"conversation"`

	// ResponseModel, when present, makes the call a structured-output call:
	// the schema fragment is assumed to already be embedded in the prompt and
	// the raw output is parsed through the engine.
	ResponseModel *schema.Schema `json:"response_model,omitempty"`

	MaxCompletionTokens *int     `json:"max_completion_tokens,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
	TopP                *float64 `json:"top_p,omitempty"`
	MaxRetries          *int     `json:"max_retries,omitempty"`
}

// EnsureDefaults generates an id when absent and fills the request type.
func (r *LLMRequest) EnsureDefaults() {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.RequestType == "" {
		r.RequestType = "chat"
	}
}

// EffectiveTemperature resolves the sampling temperature (default 1.0).
func (r *LLMRequest) EffectiveTemperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// EffectiveMaxRetries resolves the retry budget (default 5).
func (r *LLMRequest) EffectiveMaxRetries() int {
	if r.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *r.MaxRetries
}

// Validate checks the request invariants.
func (r *LLMRequest) Validate() error {
	if r.Conversation == nil || len(r.Conversation.Messages) == 0 {
		return NewError(KindConversion, "conversation must contain at least one message")
	}
	if r.Temperature != nil && *r.Temperature < 0 {
		return NewError(KindConversion, "temperature must be >= 0")
	}
	if r.TopP != nil && (*r.TopP <= 0 || *r.TopP > 1) {
		return NewError(KindConversion, "top_p must be in (0, 1]")
	}
	if r.MaxCompletionTokens != nil && *r.MaxCompletionTokens <= 0 {
		return NewError(KindConversion, "max_completion_tokens must be > 0")
	}
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return NewError(KindConversion, "max_retries must be >= 0")
	}
	return nil
}
