package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/modelmux/modelmux/pkg/models"
)

func TestKindOf(t *testing.T) {
	err := models.NewError(models.KindThrottling, "slow down")
	if got := models.KindOf(err); got != models.KindThrottling {
		t.Errorf("KindOf() = %q, want %q", got, models.KindThrottling)
	}

	wrapped := fmt.Errorf("calling vendor: %w", err)
	if got := models.KindOf(wrapped); got != models.KindThrottling {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, models.KindThrottling)
	}

	if got := models.KindOf(errors.New("plain")); got != models.KindServiceCall {
		t.Errorf("KindOf(plain) = %q, want %q", got, models.KindServiceCall)
	}
}

func TestRetryable(t *testing.T) {
	if !models.NewError(models.KindThrottling, "x").Retryable() {
		t.Error("throttling must be retryable")
	}
	for _, kind := range []models.ErrorKind{
		models.KindCredentials, models.KindModelNotFound, models.KindConversion,
		models.KindServiceCall, models.KindStructuredResponse, models.KindTimeout,
	} {
		if models.NewError(kind, "x").Retryable() {
			t.Errorf("%q must not be retryable", kind)
		}
	}
}

func TestStructuredResponseErrorFields(t *testing.T) {
	err := models.NewStructuredResponseError("bad field", "<oops>", "WeatherPrognosis")
	if err.Kind != models.KindStructuredResponse {
		t.Errorf("Kind = %q", err.Kind)
	}
	if err.RawText != "<oops>" || err.ReturnClass != "WeatherPrognosis" {
		t.Errorf("RawText/ReturnClass = %q/%q", err.RawText, err.ReturnClass)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("tcp reset")
	err := models.NewError(models.KindServiceCall, "request failed").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the cause through Unwrap")
	}
}

func TestAsErrorWrapsUnknown(t *testing.T) {
	e := models.AsError(errors.New("boom"))
	if e.Kind != models.KindServiceCall {
		t.Errorf("Kind = %q, want service_call_error", e.Kind)
	}
	if e.Message != "boom" {
		t.Errorf("Message = %q", e.Message)
	}
}
