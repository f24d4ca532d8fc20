package models

import (
	"time"

	"github.com/modelmux/modelmux/internal/schema"
)

// LLMResponse is the normalized chat result returned by the dispatch core.
type LLMResponse struct {
	ID            string         `json:"id"`
	ResponseModel *schema.Schema `json:"response_model,omitempty"`
	RawOutput     string         `json:"raw_output"`
	Conversation  *Conversation  `json:"conversation,omitempty"`
	Model         *Model         `json:"llm_model,omitempty"`

	// Tokens accumulates usage keyed by model id; multiple underlying calls
	// sum into the same tracker.
	Tokens TokenTracker `json:"tokens"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// TotalDuration is seconds from first attempt to final result, backoff
	// delays included.
	TotalDuration float64 `json:"total_duration"`

	// StructuredOutput is the parsed instance when a response model was
	// attached.
	StructuredOutput map[string]any `json:"structured_output,omitempty"`
}

// Output returns the parsed instance for structured calls and the raw text
// otherwise.
func (r *LLMResponse) Output() any {
	if r.ResponseModel != nil {
		return r.StructuredOutput
	}
	return r.RawOutput
}
