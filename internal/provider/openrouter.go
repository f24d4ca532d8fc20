package provider

import (
	"net/http"
	"os"

	"github.com/modelmux/modelmux/pkg/models"
)

func newOpenRouterAdapter(m *models.Model) (Adapter, error) {
	key, err := requireEnv("OPENROUTER", "OPENROUTER_API_KEY")
	if err != nil {
		return nil, err
	}
	siteURL := os.Getenv("OPENROUTER_SITE_URL")
	siteName := os.Getenv("OPENROUTER_SITE_NAME")

	return newCompatAdapter(m, compatConfig{
		providerName: "OPENROUTER",
		url:          "https://openrouter.ai/api/v1/chat/completions",
		headers: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+key)
			if siteURL != "" {
				r.Header.Set("HTTP-Referer", siteURL)
			}
			if siteName != "" {
				r.Header.Set("X-Title", siteName)
			}
		},
		nativeJSONSchema: true,
	}), nil
}
