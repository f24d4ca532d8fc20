package models

import "time"

// ModelMetrics is one per-call metric record as stored by the metrics log
// manager and returned from stats queries.
type ModelMetrics struct {
	InputTokens           int64 `json:"input_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
	TotalTokens           int64 `json:"total_tokens"`

	CallStartTime time.Time `json:"call_start_time"`
	CallEndTime   time.Time `json:"call_end_time"`

	// CallDuration is seconds, backoff included.
	CallDuration    float64 `json:"call_duration"`
	TokensPerSecond float64 `json:"tokens_per_second"`

	StatusCode      *int   `json:"status_code,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	InternalRetries int    `json:"internal_retries"`
}

// NewModelMetrics derives a record from a completed response.
func NewModelMetrics(resp *LLMResponse, statusCode int, internalRetries int) ModelMetrics {
	m := ModelMetrics{
		InputTokens:     resp.Tokens.InputTokens(),
		OutputTokens:    resp.Tokens.CompletionTokens(),
		TotalTokens:     resp.Tokens.TotalTokens(),
		CallStartTime:   resp.StartTime,
		CallEndTime:     resp.EndTime,
		CallDuration:    resp.TotalDuration,
		StatusCode:      &statusCode,
		InternalRetries: internalRetries,
	}
	for _, t := range resp.Tokens {
		m.CachedInputTokens += t.CachedInputTokens
		m.ReasoningOutputTokens += t.ReasoningOutputTokens
	}
	if m.CallDuration > 0 {
		m.TokensPerSecond = float64(m.TotalTokens) / m.CallDuration
	}
	return m
}

// NewErrorMetrics builds a failure record with synthetic timestamps.
func NewErrorMetrics(start, end time.Time, statusCode int, errMsg string, internalRetries int) ModelMetrics {
	return ModelMetrics{
		CallStartTime:   start,
		CallEndTime:     end,
		CallDuration:    end.Sub(start).Seconds(),
		StatusCode:      &statusCode,
		ErrorMessage:    errMsg,
		InternalRetries: internalRetries,
	}
}
