package models_test

import (
	"testing"

	"github.com/modelmux/modelmux/pkg/models"
)

func TestEnsureDefaults(t *testing.T) {
	req := &models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi")}
	req.EnsureDefaults()
	if req.ID == "" {
		t.Error("EnsureDefaults did not assign an id")
	}
	if req.RequestType != "chat" {
		t.Errorf("RequestType = %q, want chat", req.RequestType)
	}
	if req.EffectiveTemperature() != models.DefaultTemperature {
		t.Errorf("EffectiveTemperature() = %v", req.EffectiveTemperature())
	}
	if req.EffectiveMaxRetries() != models.DefaultMaxRetries {
		t.Errorf("EffectiveMaxRetries() = %v", req.EffectiveMaxRetries())
	}
}

func TestValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	n := func(v int) *int { return &v }

	cases := []struct {
		name    string
		req     models.LLMRequest
		wantErr bool
	}{
		{"empty conversation", models.LLMRequest{}, true},
		{"valid", models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi")}, false},
		{"negative temperature", models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi"), Temperature: f(-0.1)}, true},
		{"zero top_p", models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi"), TopP: f(0)}, true},
		{"top_p above one", models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi"), TopP: f(1.5)}, true},
		{"top_p boundary", models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi"), TopP: f(1)}, false},
		{"zero max tokens", models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi"), MaxCompletionTokens: n(0)}, true},
		{"negative retries", models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi"), MaxRetries: n(-1)}, true},
		{"zero retries", models.LLMRequest{Conversation: models.NewConversationFromPrompt("hi"), MaxRetries: n(0)}, false},
	}
	for _, tc := range cases {
		err := tc.req.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
		if err != nil && models.KindOf(err) != models.KindConversion {
			t.Errorf("%s: kind = %q, want conversion_error", tc.name, models.KindOf(err))
		}
	}
}
