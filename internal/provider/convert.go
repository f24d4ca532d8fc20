package provider

import (
	"github.com/modelmux/modelmux/pkg/models"
)

// Vendor attachment limits, enforced at conversion time before any network
// call.
const (
	maxImagesPerMessage    = 20
	maxImageBytes          = 3_932_160 // 3.75 MB
	maxImageDimension      = 8000
	maxDocumentsPerMessage = 5
	maxDocumentBytes       = 4_718_592 // 4.5 MB
)

// validateConversation applies capability gating and attachment limits. A
// request that fails here would never succeed as constructed, so failures
// are the conversion kind.
func validateConversation(m *models.Model, req *models.LLMRequest) error {
	conv := req.Conversation
	if conv == nil || len(conv.Messages) == 0 {
		return models.NewError(models.KindConversion, "conversation must contain at least one message")
	}
	if req.ResponseModel != nil && !m.Capabilities.StructuredOutput {
		return models.NewError(models.KindConversion,
			"model %s does not support structured output", m.ID())
	}

	for i, msg := range conv.Messages {
		hasAttachments := len(msg.Images) > 0 || len(msg.Documents) > 0
		if hasAttachments && msg.Role != models.RoleUser {
			return models.NewError(models.KindConversion,
				"message %d: attachments are only permitted on user messages", i)
		}
		if len(msg.Images) > 0 && !m.Capabilities.ImageSupport {
			return models.NewError(models.KindConversion,
				"model %s does not support image input", m.ID())
		}
		if len(msg.Documents) > 0 && !m.Capabilities.DocumentSupport {
			return models.NewError(models.KindConversion,
				"model %s does not support document input", m.ID())
		}
		if len(msg.Images) > maxImagesPerMessage {
			return models.NewError(models.KindConversion,
				"message %d: at most %d images per message", i, maxImagesPerMessage)
		}
		if len(msg.Documents) > maxDocumentsPerMessage {
			return models.NewError(models.KindConversion,
				"message %d: at most %d documents per message", i, maxDocumentsPerMessage)
		}
		if len(msg.Documents) > 0 && msg.Text == "" {
			return models.NewError(models.KindConversion,
				"message %d: text is required when documents are attached", i)
		}
		for _, img := range msg.Images {
			if len(img.Content) > maxImageBytes {
				return models.NewError(models.KindConversion,
					"message %d: image exceeds %d bytes", i, maxImageBytes)
			}
			if img.Width > maxImageDimension || img.Height > maxImageDimension {
				return models.NewError(models.KindConversion,
					"message %d: image exceeds %dx%d pixels", i, maxImageDimension, maxImageDimension)
			}
		}
		for _, doc := range msg.Documents {
			if len(doc.Content) > maxDocumentBytes {
				return models.NewError(models.KindConversion,
					"message %d: document %q exceeds %d bytes", i, doc.Name, maxDocumentBytes)
			}
		}
	}
	return nil
}

// nativeEligible reports whether the vendor-native JSON-schema path applies
// to this request. Vendors still fall back to the XML-prompt path when the
// schema cannot be expressed natively.
func nativeEligible(m *models.Model, req *models.LLMRequest) bool {
	return req.ResponseModel != nil &&
		m.Capabilities.StructuredOutput &&
		req.ResponseModel.Native &&
		req.ResponseModel.SupportsNative()
}
