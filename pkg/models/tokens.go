package models

// ModelTokens counts token usage for a single model, with a snapshot of the
// pricing rates in effect when the call was made so historical cost stays
// accurate after catalog price changes.
type ModelTokens struct {
	InputTokens           int64 `json:"input_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
	TotalTokens           int64 `json:"total_tokens"`

	Price Price `json:"price"`
}

// Add returns the sum of two counters. The receiver's price snapshot wins
// unless it is zero-valued.
func (t ModelTokens) Add(other ModelTokens) ModelTokens {
	sum := ModelTokens{
		InputTokens:           t.InputTokens + other.InputTokens,
		CachedInputTokens:     t.CachedInputTokens + other.CachedInputTokens,
		OutputTokens:          t.OutputTokens + other.OutputTokens,
		ReasoningOutputTokens: t.ReasoningOutputTokens + other.ReasoningOutputTokens,
		TotalTokens:           t.TotalTokens + other.TotalTokens,
		Price:                 t.Price,
	}
	if sum.Price == (Price{}) {
		sum.Price = other.Price
	}
	return sum
}

// Cost computes the dollar cost of this counter using its price snapshot.
func (t ModelTokens) Cost() float64 {
	uncached := t.InputTokens - t.CachedInputTokens
	if uncached < 0 {
		uncached = 0
	}
	return float64(uncached)/1e6*t.Price.InputPer1M +
		float64(t.CachedInputTokens)/1e6*t.Price.CachedInputPer1M +
		float64(t.OutputTokens)/1e6*t.Price.OutputPer1M +
		float64(t.ReasoningOutputTokens)/1e6*t.Price.ReasoningOutputPer1M
}

// TokenTracker accumulates token usage per model id across one or more calls.
type TokenTracker map[string]ModelTokens

// Add merges a counter into the tracker under the given model id.
func (tr TokenTracker) Add(modelID string, tokens ModelTokens) {
	tr[modelID] = tr[modelID].Add(tokens)
}

// Merge folds another tracker into this one, summing per model id.
func (tr TokenTracker) Merge(other TokenTracker) {
	for id, tokens := range other {
		tr.Add(id, tokens)
	}
}

// InputTokens sums input tokens across all models.
func (tr TokenTracker) InputTokens() int64 {
	var n int64
	for _, t := range tr {
		n += t.InputTokens
	}
	return n
}

// CompletionTokens sums output tokens across all models.
func (tr TokenTracker) CompletionTokens() int64 {
	var n int64
	for _, t := range tr {
		n += t.OutputTokens
	}
	return n
}

// TotalTokens sums total tokens across all models.
func (tr TokenTracker) TotalTokens() int64 {
	var n int64
	for _, t := range tr {
		n += t.TotalTokens
	}
	return n
}
