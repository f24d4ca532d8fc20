package provider

import (
	"fmt"
	"net/http"
	"os"

	"github.com/modelmux/modelmux/pkg/models"
)

func newAzureAdapter(m *models.Model) (Adapter, error) {
	key, err := requireEnv("AZURE", "AZURE_OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	endpoint, err := requireEnv("AZURE", "AZURE_OPENAI_ENDPOINT")
	if err != nil {
		return nil, err
	}
	version := os.Getenv("AZURE_OPEN_AI_API_VERSION")
	if version == "" {
		version = "2024-10-21"
	}
	deployment := os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME")
	if deployment == "" {
		deployment = m.InternalModelID
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		endpoint, deployment, version)

	return newCompatAdapter(m, compatConfig{
		providerName: "AZURE",
		url:          url,
		headers: func(r *http.Request) {
			r.Header.Set("api-key", key)
		},
		nativeJSONSchema: true,
	}), nil
}
