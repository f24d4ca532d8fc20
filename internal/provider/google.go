package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/modelmux/modelmux/pkg/models"
)

// googleAdapter calls the Gemini generateContent API with an API key.
type googleAdapter struct {
	model  *models.Model
	apiKey string
	ref    clientRef
	client *http.Client
}

func newGoogleAdapter(m *models.Model) (Adapter, error) {
	// GOOGLE_API_KEY is canonical; GEMINI_API_KEY is the AI Studio spelling.
	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		return nil, models.NewError(models.KindCredentials,
			"GOOGLE: required environment variable GOOGLE_API_KEY (or GEMINI_API_KEY) is not set")
	}
	return &googleAdapter{model: m, apiKey: key}, nil
}

func (a *googleAdapter) Start() error {
	return a.ref.acquire(func() error {
		a.client = &http.Client{Timeout: 300 * time.Second}
		return nil
	})
}

func (a *googleAdapter) Stop() error {
	a.ref.release(func() {
		a.client.CloseIdleConnections()
		a.client = nil
	})
	return nil
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount        int64 `json:"promptTokenCount"`
		CandidatesTokenCount    int64 `json:"candidatesTokenCount"`
		ThoughtsTokenCount      int64 `json:"thoughtsTokenCount"`
		CachedContentTokenCount int64 `json:"cachedContentTokenCount"`
		TotalTokenCount         int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (a *googleAdapter) ServiceCall(ctx context.Context, req *models.LLMRequest) (string, models.ModelTokens, error) {
	var zero models.ModelTokens
	if err := validateConversation(a.model, req); err != nil {
		return "", zero, err
	}

	payload := map[string]any{
		"contents": a.buildContents(req.Conversation),
	}
	if req.Conversation.System != "" {
		payload["systemInstruction"] = geminiContent{
			Parts: []geminiPart{{Text: req.Conversation.System}},
		}
	}
	gen := map[string]any{}
	if !a.model.FixedTemperature {
		gen["temperature"] = req.EffectiveTemperature()
	}
	if req.TopP != nil {
		gen["topP"] = *req.TopP
	}
	if req.MaxCompletionTokens != nil {
		gen["maxOutputTokens"] = *req.MaxCompletionTokens
	}
	if len(gen) > 0 {
		payload["generationConfig"] = gen
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", zero, models.NewError(models.KindConversion, "GOOGLE: encode request").WithCause(err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent",
		a.model.InternalModelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", zero, fmt.Errorf("GOOGLE: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.apiKey)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return "", zero, wrapTransportError("GOOGLE", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", zero, errorFromStatus("GOOGLE", httpResp.StatusCode, string(respBody))
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", zero, models.NewError(models.KindServiceCall, "GOOGLE: decode response").WithCause(err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", zero, models.NewError(models.KindServiceCall, "GOOGLE: empty completion")
	}

	var text string
	for _, p := range resp.Candidates[0].Content.Parts {
		text += p.Text
	}
	if text == "" {
		return "", zero, models.NewError(models.KindServiceCall, "GOOGLE: completion terminated: %s",
			resp.Candidates[0].FinishReason)
	}

	u := resp.UsageMetadata
	tokens := models.ModelTokens{
		InputTokens:           u.PromptTokenCount,
		CachedInputTokens:     u.CachedContentTokenCount,
		OutputTokens:          u.CandidatesTokenCount,
		ReasoningOutputTokens: u.ThoughtsTokenCount,
		TotalTokens:           u.TotalTokenCount,
		Price:                 a.model.Price,
	}
	return text, tokens, nil
}

// buildContents maps the neutral conversation to Gemini contents. The
// assistant role is spelled "model" on this wire.
func (a *googleAdapter) buildContents(conv *models.Conversation) []geminiContent {
	out := make([]geminiContent, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		role := string(msg.Role)
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		parts := []geminiPart{}
		if msg.Text != "" {
			parts = append(parts, geminiPart{Text: msg.Text})
		}
		for _, img := range msg.Images {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{
				MimeType: img.MediaType(),
				Data:     img.ToBase64(),
			}})
		}
		for _, doc := range msg.Documents {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{
				MimeType: "application/pdf",
				Data:     doc.ToBase64(),
			}})
		}
		out = append(out, geminiContent{Role: role, Parts: parts})
	}
	return out
}
