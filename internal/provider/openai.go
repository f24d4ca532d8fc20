package provider

import (
	"net/http"
	"os"

	"github.com/modelmux/modelmux/pkg/models"
)

func newOpenAIAdapter(m *models.Model) (Adapter, error) {
	key, err := requireEnv("OPENAI", "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	org := os.Getenv("OPENAI_ORGANIZATION")
	project := os.Getenv("OPENAI_PROJECT")

	return newCompatAdapter(m, compatConfig{
		providerName: "OPENAI",
		url:          "https://api.openai.com/v1/chat/completions",
		headers: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+key)
			if org != "" {
				r.Header.Set("OpenAI-Organization", org)
			}
			if project != "" {
				r.Header.Set("OpenAI-Project", project)
			}
		},
		nativeJSONSchema: true,
	}), nil
}
