package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/modelmux/modelmux/pkg/models"
)

// bedrockAdapter calls AWS Bedrock through the Converse API.
type bedrockAdapter struct {
	model  *models.Model
	region string
	creds  aws.Credentials
	ref    clientRef
	client *bedrockruntime.Client
}

func newBedrockAdapter(m *models.Model) (Adapter, error) {
	accessKey, err := requireEnv("AWS", "AWS_ACCESS_KEY_ID")
	if err != nil {
		return nil, err
	}
	secretKey, err := requireEnv("AWS", "AWS_SECRET_ACCESS_KEY")
	if err != nil {
		return nil, err
	}
	sessionToken := os.Getenv("AWS_SESSION_TOKEN")

	region := os.Getenv("AWS_DEFAULT_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" && m.ProviderRef != nil {
		if r, ok := m.ProviderRef.Config["region"].(string); ok {
			region = r
		}
	}
	if region == "" {
		region = "us-east-1"
	}

	a := &bedrockAdapter{model: m, region: region}
	a.creds = aws.Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    sessionToken,
	}
	return a, nil
}

func (a *bedrockAdapter) Start() error {
	return a.ref.acquire(func() error {
		a.client = bedrockruntime.New(bedrockruntime.Options{
			Region: a.region,
			Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
				return a.creds, nil
			}),
		})
		return nil
	})
}

func (a *bedrockAdapter) Stop() error {
	a.ref.release(func() {
		a.client = nil
	})
	return nil
}

func (a *bedrockAdapter) ServiceCall(ctx context.Context, req *models.LLMRequest) (string, models.ModelTokens, error) {
	var zero models.ModelTokens
	if err := validateConversation(a.model, req); err != nil {
		return "", zero, err
	}

	messages, err := encodeBedrockMessages(req.Conversation)
	if err != nil {
		return "", zero, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(a.model.InternalModelID),
		Messages: messages,
	}
	if req.Conversation.System != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.Conversation.System},
		}
	}
	input.InferenceConfig = a.inferenceConfig(req)

	output, err := a.client.Converse(ctx, input)
	if err != nil {
		return "", zero, wrapBedrockError(err)
	}

	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", zero, models.NewError(models.KindServiceCall, "AWS: unexpected converse output shape")
	}
	var text string
	for _, block := range msg.Value.Content {
		if v, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text += v.Value
		}
	}
	if text == "" {
		return "", zero, models.NewError(models.KindServiceCall, "AWS: empty completion (stop reason %s)", output.StopReason)
	}

	// Converse exposes no reasoning-token split; any reasoning stays folded
	// into OutputTokens and ReasoningOutputTokens remains zero.
	tokens := models.ModelTokens{Price: a.model.Price}
	if u := output.Usage; u != nil {
		tokens.InputTokens = int64(int32Value(u.InputTokens))
		tokens.CachedInputTokens = int64(int32Value(u.CacheReadInputTokens))
		tokens.OutputTokens = int64(int32Value(u.OutputTokens))
		tokens.TotalTokens = int64(int32Value(u.TotalTokens))
	}
	return text, tokens, nil
}

func (a *bedrockAdapter) inferenceConfig(req *models.LLMRequest) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if !a.model.FixedTemperature {
		cfg.Temperature = aws.Float32(float32(req.EffectiveTemperature()))
	}
	if req.TopP != nil {
		cfg.TopP = aws.Float32(float32(*req.TopP))
	}
	if req.MaxCompletionTokens != nil {
		cfg.MaxTokens = aws.Int32(int32(*req.MaxCompletionTokens)) //nolint:gosec // AWS SDK requires int32
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil && cfg.TopP == nil {
		return nil
	}
	return &cfg
}

// encodeBedrockMessages maps the neutral conversation to Converse messages.
// Attachments have already passed gating, so formats are known-good here.
func encodeBedrockMessages(conv *models.Conversation) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		role := brtypes.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		blocks := make([]brtypes.ContentBlock, 0, 1+len(msg.Images)+len(msg.Documents))
		if msg.Text != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: msg.Text})
		}
		for _, img := range msg.Images {
			var format brtypes.ImageFormat
			switch img.Format {
			case models.ImagePNG:
				format = brtypes.ImageFormatPng
			case models.ImageJPEG:
				format = brtypes.ImageFormatJpeg
			case models.ImageGIF:
				format = brtypes.ImageFormatGif
			case models.ImageWEBP:
				format = brtypes.ImageFormatWebp
			default:
				return nil, models.NewError(models.KindConversion, "AWS: unsupported image format %q", img.Format)
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberImage{
				Value: brtypes.ImageBlock{
					Format: format,
					Source: &brtypes.ImageSourceMemberBytes{Value: img.Content},
				},
			})
		}
		for _, doc := range msg.Documents {
			blocks = append(blocks, &brtypes.ContentBlockMemberDocument{
				Value: brtypes.DocumentBlock{
					Name:   aws.String(doc.Name),
					Format: brtypes.DocumentFormat(doc.Format),
					Source: &brtypes.DocumentSourceMemberBytes{Value: doc.Content},
				},
			})
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	if len(out) == 0 {
		return nil, models.NewError(models.KindConversion, "AWS: at least one message is required")
	}
	return out, nil
}

// wrapBedrockError translates SDK errors. Throttling surfaces both as the
// ThrottlingException code and as HTTP 429 depending on the signing path.
func wrapBedrockError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewError(models.KindTimeout, "AWS: request timed out").WithCause(err)
	}

	status := 0
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return models.NewError(models.KindThrottling, "AWS: rate limited: %s", apiErr.ErrorMessage()).WithCause(err)
		case "ResourceNotFoundException":
			return models.NewError(models.KindModelNotFound, "AWS: %s", apiErr.ErrorMessage()).WithCause(err)
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			return models.NewError(models.KindCredentials, "AWS: %s", apiErr.ErrorMessage()).WithCause(err)
		}
		if status != 0 {
			return errorFromStatus("AWS", status, fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()))
		}
		return models.NewError(models.KindServiceCall, "AWS: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()).WithCause(err)
	}
	if status == http.StatusTooManyRequests {
		return models.NewError(models.KindThrottling, "AWS: rate limited").WithCause(err)
	}
	return wrapTransportError("AWS", err)
}

func int32Value(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}
