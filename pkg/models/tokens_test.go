package models_test

import (
	"math"
	"testing"

	"github.com/modelmux/modelmux/pkg/models"
)

func TestModelTokensAdd(t *testing.T) {
	a := models.ModelTokens{InputTokens: 100, OutputTokens: 20, TotalTokens: 120,
		Price: models.Price{InputPer1M: 1, OutputPer1M: 2}}
	b := models.ModelTokens{InputTokens: 50, CachedInputTokens: 10, OutputTokens: 5, TotalTokens: 55,
		Price: models.Price{InputPer1M: 9, OutputPer1M: 9}}

	sum := a.Add(b)
	if sum.InputTokens != 150 || sum.OutputTokens != 25 || sum.TotalTokens != 175 {
		t.Errorf("Add() = %+v", sum)
	}
	if sum.CachedInputTokens != 10 {
		t.Errorf("CachedInputTokens = %d", sum.CachedInputTokens)
	}
	// The receiver's price snapshot wins when set.
	if sum.Price.InputPer1M != 1 {
		t.Errorf("Price.InputPer1M = %v, want 1", sum.Price.InputPer1M)
	}

	// A zero-valued receiver price defers to the other side.
	sum = models.ModelTokens{InputTokens: 1}.Add(b)
	if sum.Price.InputPer1M != 9 {
		t.Errorf("zero-price Add: Price.InputPer1M = %v, want 9", sum.Price.InputPer1M)
	}
}

func TestModelTokensCost(t *testing.T) {
	tok := models.ModelTokens{
		InputTokens:           1_000_000,
		CachedInputTokens:     250_000,
		OutputTokens:          100_000,
		ReasoningOutputTokens: 50_000,
		Price: models.Price{
			InputPer1M:           2.0,
			CachedInputPer1M:     1.0,
			OutputPer1M:          8.0,
			ReasoningOutputPer1M: 8.0,
		},
	}
	// 750k uncached input @ 2.0 + 250k cached @ 1.0 + 100k out @ 8.0 + 50k reasoning @ 8.0
	want := 0.75*2.0 + 0.25*1.0 + 0.1*8.0 + 0.05*8.0
	if got := tok.Cost(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Cost() = %v, want %v", got, want)
	}
}

func TestTokenTrackerMerge(t *testing.T) {
	a := models.TokenTracker{}
	a.Add("OPENAI/gpt-4o", models.ModelTokens{InputTokens: 10, OutputTokens: 2, TotalTokens: 12})

	b := models.TokenTracker{}
	b.Add("OPENAI/gpt-4o", models.ModelTokens{InputTokens: 5, OutputTokens: 1, TotalTokens: 6})
	b.Add("MOCK/mock", models.ModelTokens{InputTokens: 1, TotalTokens: 1})

	a.Merge(b)
	if a.InputTokens() != 16 {
		t.Errorf("InputTokens() = %d, want 16", a.InputTokens())
	}
	if a.CompletionTokens() != 3 {
		t.Errorf("CompletionTokens() = %d, want 3", a.CompletionTokens())
	}
	if a.TotalTokens() != 19 {
		t.Errorf("TotalTokens() = %d, want 19", a.TotalTokens())
	}
	if len(a) != 2 {
		t.Errorf("tracker keys = %d, want 2", len(a))
	}
}
