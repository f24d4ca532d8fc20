package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of a conversation. Text is optional when attachments
// are present; attachments are only valid on user-role messages (vendor
// contract, enforced at conversion time).
type Message struct {
	Role      Role        `json:"role"`
	Text      string      `json:"text,omitempty"`
	Images    []*Image    `json:"images,omitempty"`
	Documents []*Document `json:"documents,omitempty"`
}

// Conversation is an ordered sequence of messages with an optional system
// preamble. Values are treated as immutable once handed to the dispatch core.
type Conversation struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// NewConversationFromPrompt builds a one-message user conversation.
func NewConversationFromPrompt(text string) *Conversation {
	return &Conversation{
		Messages: []Message{{Role: RoleUser, Text: text}},
	}
}

// LastUserText returns the text of the most recent user message, or "".
func (c *Conversation) LastUserText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Text
		}
	}
	return ""
}
