package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelmux/modelmux/internal/schema"
	"github.com/modelmux/modelmux/pkg/models"
	"github.com/rs/zerolog/log"
)

// compatConfig parameterizes the OpenAI-compatible wire shared by the
// OpenAI, Azure, OpenRouter, and Together adapters.
type compatConfig struct {
	providerName string
	url          string // full chat-completions URL
	headers      func(*http.Request)

	// nativeJSONSchema enables the response_format json_schema path.
	nativeJSONSchema bool

	// maxTokensKey is the vendor's field name for the completion cap.
	maxTokensKey string
}

// compatAdapter speaks the OpenAI chat-completions wire format.
type compatAdapter struct {
	model  *models.Model
	cfg    compatConfig
	ref    clientRef
	client *http.Client
}

func newCompatAdapter(m *models.Model, cfg compatConfig) *compatAdapter {
	if cfg.maxTokensKey == "" {
		cfg.maxTokensKey = "max_completion_tokens"
	}
	return &compatAdapter{model: m, cfg: cfg}
}

func (a *compatAdapter) Start() error {
	return a.ref.acquire(func() error {
		a.client = &http.Client{Timeout: 300 * time.Second}
		return nil
	})
}

func (a *compatAdapter) Stop() error {
	a.ref.release(func() {
		a.client.CloseIdleConnections()
		a.client = nil
	})
	return nil
}

// ── Wire types ──────────────────────────────────────────────

type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []oaiContentPart
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
	File     *oaiFilePart `json:"file,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiFilePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type oaiResponseFormat struct {
	Type       string         `json:"type"`
	JSONSchema *oaiJSONSchema `json:"json_schema,omitempty"`
}

type oaiJSONSchema struct {
	Name   string             `json:"name"`
	Strict bool               `json:"strict"`
	Schema *schema.JSONSchema `json:"schema"`
}

type oaiResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int64 `json:"prompt_tokens"`
		CompletionTokens    int64 `json:"completion_tokens"`
		TotalTokens         int64 `json:"total_tokens"`
		PromptTokensDetails struct {
			CachedTokens int64 `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
		CompletionTokensDetails struct {
			ReasoningTokens int64 `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
}

// ServiceCall makes one chat-completions call.
func (a *compatAdapter) ServiceCall(ctx context.Context, req *models.LLMRequest) (string, models.ModelTokens, error) {
	var zero models.ModelTokens
	if err := validateConversation(a.model, req); err != nil {
		return "", zero, err
	}

	native := a.cfg.nativeJSONSchema && nativeEligible(a.model, req)

	payload := map[string]any{
		"model":    a.model.InternalModelID,
		"messages": a.buildMessages(req.Conversation),
	}
	if !a.model.FixedTemperature {
		payload["temperature"] = req.EffectiveTemperature()
	}
	if req.TopP != nil {
		payload["top_p"] = *req.TopP
	}
	if req.MaxCompletionTokens != nil {
		payload[a.cfg.maxTokensKey] = *req.MaxCompletionTokens
	}
	if native {
		payload["response_format"] = oaiResponseFormat{
			Type: "json_schema",
			JSONSchema: &oaiJSONSchema{
				Name:   req.ResponseModel.RootTag(),
				Strict: true,
				Schema: req.ResponseModel.ToJSONSchema(),
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", zero, models.NewError(models.KindConversion, "%s: encode request", a.cfg.providerName).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.url, bytes.NewReader(body))
	if err != nil {
		return "", zero, fmt.Errorf("%s: create request: %w", a.cfg.providerName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.cfg.headers(httpReq)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return "", zero, wrapTransportError(a.cfg.providerName, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", zero, errorFromStatus(a.cfg.providerName, httpResp.StatusCode, string(respBody))
	}

	var resp oaiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", zero, models.NewError(models.KindServiceCall, "%s: decode response", a.cfg.providerName).WithCause(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", zero, models.NewError(models.KindServiceCall, "%s: empty completion", a.cfg.providerName)
	}
	if fr := resp.Choices[0].FinishReason; fr == "content_filter" {
		return "", zero, models.NewError(models.KindServiceCall, "%s: completion terminated: %s", a.cfg.providerName, fr)
	}

	content := resp.Choices[0].Message.Content
	if native {
		// The native path hands back JSON; re-express it as the canonical
		// XML rendering so downstream parsing is uniform.
		inst, err := req.ResponseModel.InstanceFromJSON([]byte(content))
		if err != nil {
			log.Warn().Err(err).Str("provider", a.cfg.providerName).
				Msg("Native structured output was not valid JSON, passing raw text through")
		} else {
			rendered := &schema.Schema{
				ClassName:  req.ResponseModel.ClassName,
				Definition: req.ResponseModel.Definition,
				Instance:   inst,
			}
			content = rendered.RenderInstance()
		}
	}

	reasoning := resp.Usage.CompletionTokensDetails.ReasoningTokens
	tokens := models.ModelTokens{
		InputTokens:           resp.Usage.PromptTokens,
		CachedInputTokens:     resp.Usage.PromptTokensDetails.CachedTokens,
		OutputTokens:          resp.Usage.CompletionTokens - reasoning,
		ReasoningOutputTokens: reasoning,
		TotalTokens:           resp.Usage.TotalTokens,
		Price:                 a.model.Price,
	}
	return content, tokens, nil
}

// buildMessages converts the neutral conversation to the OpenAI shape: the
// system preamble leads the message list, attachments become content parts.
func (a *compatAdapter) buildMessages(conv *models.Conversation) []oaiMessage {
	out := make([]oaiMessage, 0, len(conv.Messages)+1)
	if conv.System != "" {
		out = append(out, oaiMessage{Role: "system", Content: conv.System})
	}
	for _, msg := range conv.Messages {
		if len(msg.Images) == 0 && len(msg.Documents) == 0 {
			out = append(out, oaiMessage{Role: string(msg.Role), Content: msg.Text})
			continue
		}
		parts := []oaiContentPart{}
		if msg.Text != "" {
			parts = append(parts, oaiContentPart{Type: "text", Text: msg.Text})
		}
		for _, img := range msg.Images {
			parts = append(parts, oaiContentPart{
				Type:     "image_url",
				ImageURL: &oaiImageURL{URL: "data:" + img.MediaType() + ";base64," + img.ToBase64()},
			})
		}
		for _, doc := range msg.Documents {
			parts = append(parts, oaiContentPart{
				Type: "file",
				File: &oaiFilePart{
					Filename: doc.Name,
					FileData: "data:application/octet-stream;base64," + doc.ToBase64(),
				},
			})
		}
		out = append(out, oaiMessage{Role: string(msg.Role), Content: parts})
	}
	return out
}
