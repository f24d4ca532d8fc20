package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/modelmux/modelmux/pkg/models"
)

// errorFromStatus maps a vendor HTTP status to the error taxonomy. The body
// is truncated into the message for operator context.
func errorFromStatus(providerName string, status int, body string) *models.Error {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody] + "..."
	}
	msg := fmt.Sprintf("%s: status %d: %s", providerName, status, body)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.NewError(models.KindCredentials, "%s", msg)
	case status == http.StatusNotFound:
		return models.NewError(models.KindModelNotFound, "%s", msg)
	case status == http.StatusTooManyRequests:
		return models.NewError(models.KindThrottling, "%s", msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return models.NewError(models.KindServiceCall, "%s: vendor timed out (status %d)", providerName, status)
	default:
		// 400 and 5xx both land here: the request reached the vendor and the
		// vendor rejected or failed it.
		return models.NewError(models.KindServiceCall, "%s", msg)
	}
}

// wrapTransportError classifies client-side call failures: deadline and
// cancellation map to the timeout kind, everything else to service-call.
func wrapTransportError(providerName string, err error) *models.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || os.IsTimeout(err) {
		return models.NewError(models.KindTimeout, "%s: request deadline exceeded", providerName).WithCause(err)
	}
	return models.NewError(models.KindServiceCall, "%s: request failed", providerName).WithCause(err)
}

// requireEnv reads a required environment variable, failing with the
// credentials kind so misconfiguration surfaces at adapter construction.
func requireEnv(providerName, key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", models.NewError(models.KindCredentials,
			"%s: required environment variable %s is not set", providerName, key)
	}
	return v, nil
}
