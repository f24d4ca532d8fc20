package provider

import (
	"net/http"

	"github.com/modelmux/modelmux/pkg/models"
)

func newTogetherAdapter(m *models.Model) (Adapter, error) {
	key, err := requireEnv("TOGETHER", "TOGETHER_API_KEY")
	if err != nil {
		return nil, err
	}

	return newCompatAdapter(m, compatConfig{
		providerName: "TOGETHER",
		url:          "https://api.together.xyz/v1/chat/completions",
		headers: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+key)
		},
		// Together's json_schema support is model-dependent; the prompt
		// rendering path works everywhere.
		nativeJSONSchema: false,
		maxTokensKey:     "max_tokens",
	}), nil
}
