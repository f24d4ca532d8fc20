package models

// Provider is a catalog entry for an upstream model vendor: a name from the
// closed dispatch set plus an opaque configuration map.
type Provider struct {
	Name   string         `json:"name" yaml:"name"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Capabilities are the feature flags a catalog model advertises.
type Capabilities struct {
	ImageSupport     bool `json:"image_support" yaml:"image_support"`
	DocumentSupport  bool `json:"document_support" yaml:"document_support"`
	StructuredOutput bool `json:"structured_output" yaml:"structured_output"`
	Thinking         bool `json:"thinking" yaml:"thinking"`
	ReasoningEffort  bool `json:"reasoning_effort" yaml:"reasoning_effort"`
}

// Price carries per-million-token rates. Absent keys default to zero.
type Price struct {
	InputPer1M           float64 `json:"input_price_per_1m_tokens" yaml:"input_price_per_1m_tokens"`
	CachedInputPer1M     float64 `json:"cached_input_price_per_1m_tokens" yaml:"cached_input_price_per_1m_tokens"`
	OutputPer1M          float64 `json:"output_price_per_1m_tokens" yaml:"output_price_per_1m_tokens"`
	ReasoningOutputPer1M float64 `json:"reasoning_output_price_per_1m_tokens" yaml:"reasoning_output_price_per_1m_tokens"`
}

// Model is an immutable catalog entry identified by "PROVIDER/name".
type Model struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`

	// InternalModelID is the vendor-side model identifier.
	InternalModelID string `json:"internal_model_id"`

	MaxTokens       int `json:"max_tokens"`
	MaxOutputTokens int `json:"max_output_tokens"`

	FixedTemperature bool           `json:"fixed_temperature"`
	Capabilities     Capabilities   `json:"capabilities"`
	Price            Price          `json:"price"`
	Config           map[string]any `json:"config,omitempty"`

	// ProviderRef is the resolved provider record for this model.
	ProviderRef *Provider `json:"-"`
}

// ID returns the "PROVIDER/name" model key.
func (m *Model) ID() string {
	return m.Provider + "/" + m.Name
}
