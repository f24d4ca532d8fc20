// Package dispatch routes chat requests to provider adapters, retrying
// throttled calls with exponential backoff and parsing structured responses.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelmux/modelmux/internal/catalog"
	"github.com/modelmux/modelmux/internal/metrics"
	"github.com/modelmux/modelmux/internal/provider"
	"github.com/modelmux/modelmux/internal/schema"
	"github.com/modelmux/modelmux/pkg/models"
)

// Dispatcher resolves models, drives adapter calls, and records metrics.
type Dispatcher struct {
	registry *catalog.Catalog
	recorder *metrics.Recorder
	tracer   trace.Tracer

	// backoffInitial is the first retry delay; subsequent delays double.
	backoffInitial time.Duration

	// onBackoff, when set, observes each retry delay before it is slept.
	onBackoff func(time.Duration)

	mu       sync.Mutex
	adapters map[string]provider.Adapter
}

func New(registry *catalog.Catalog, recorder *metrics.Recorder) *Dispatcher {
	return &Dispatcher{
		registry:       registry,
		recorder:       recorder,
		tracer:         otel.Tracer("modelmux/dispatch"),
		backoffInitial: time.Second,
		adapters:       make(map[string]provider.Adapter),
	}
}

// Close stops all cached adapters.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, a := range d.adapters {
		if err := a.Stop(); err != nil {
			log.Warn().Err(err).Str("model", key).Msg("Failed to stop adapter")
		}
		delete(d.adapters, key)
	}
}

// adapterFor returns a started adapter for the model, caching it for reuse.
func (d *Dispatcher) adapterFor(m *models.Model) (provider.Adapter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.adapters[m.ID()]; ok {
		return a, nil
	}
	a, err := d.registry.AdapterFor(m)
	if err != nil {
		return nil, err
	}
	if err := a.Start(); err != nil {
		return nil, fmt.Errorf("start adapter for %s: %w", m.ID(), err)
	}
	d.adapters[m.ID()] = a
	return a, nil
}

// Chat resolves modelID, dispatches the request, and assembles the response.
// Throttled calls are retried with exponentially growing delays until the
// request's retry budget runs out.
func (d *Dispatcher) Chat(ctx context.Context, modelID string, req *models.LLMRequest) (*models.LLMResponse, error) {
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model, err := d.registry.GetModel(modelID)
	if err != nil {
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.chat",
		trace.WithAttributes(
			attribute.String("llm.model", model.ID()),
			attribute.String("llm.request_id", req.ID),
		))
	defer span.End()

	adapter, err := d.adapterFor(model)
	if err != nil {
		return nil, err
	}

	if req.ResponseModel != nil && !nativeCapable(model, req) {
		injectSchemaPrompt(req)
	}

	start := time.Now().UTC()
	content, tokens, retries, err := d.callWithRetry(ctx, adapter, model, req)
	end := time.Now().UTC()

	if err != nil {
		d.record(model, models.NewErrorMetrics(start, end, statusForError(err), err.Error(), retries))
		span.RecordError(err)
		return nil, err
	}

	resp := &models.LLMResponse{
		ID:            req.ID,
		ResponseModel: req.ResponseModel,
		RawOutput:     content,
		Conversation:  req.Conversation,
		Model:         model,
		Tokens:        models.TokenTracker{},
		StartTime:     start,
		EndTime:       end,
		TotalDuration: end.Sub(start).Seconds(),
	}
	resp.Tokens.Add(model.ID(), tokens)

	if req.ResponseModel != nil {
		parsed, perr := req.ResponseModel.FromPrompt(content)
		if perr != nil {
			var pe *schema.ParseError
			if errors.As(perr, &pe) {
				err = models.NewStructuredResponseError(pe.Message, pe.RawText, pe.ClassName)
			} else {
				err = models.NewStructuredResponseError(perr.Error(), content, req.ResponseModel.ClassName)
			}
			d.record(model, models.NewErrorMetrics(start, end, statusForError(err), err.Error(), retries))
			span.RecordError(err)
			return nil, err
		}
		resp.StructuredOutput = parsed
	}

	d.record(model, models.NewModelMetrics(resp, 200, retries))
	log.Info().
		Str("model", model.ID()).
		Str("request_id", req.ID).
		Float64("duration_seconds", resp.TotalDuration).
		Int("retries", retries).
		Msg("Chat dispatched")
	return resp, nil
}

// callWithRetry runs the adapter call under an exponential backoff policy.
// Only throttling errors are retried; delays double starting at one second.
func (d *Dispatcher) callWithRetry(ctx context.Context, adapter provider.Adapter, model *models.Model, req *models.LLMRequest) (string, models.ModelTokens, int, error) {
	maxRetries := req.EffectiveMaxRetries()
	retries := 0

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.backoffInitial
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = time.Hour
	policy.MaxElapsedTime = 0

	var content string
	var tokens models.ModelTokens
	firstAttempt := time.Now()

	operation := func() error {
		c, t, err := adapter.ServiceCall(ctx, req)
		if err != nil {
			if models.KindOf(err) == models.KindThrottling {
				return err
			}
			return backoff.Permanent(err)
		}
		content, tokens = c, t
		return nil
	}
	notify := func(err error, delay time.Duration) {
		retries++
		if d.onBackoff != nil {
			d.onBackoff(delay)
		}
		log.Warn().Err(err).
			Str("model", model.ID()).
			Dur("delay", delay).
			Int("attempt", retries).
			Msg("Throttled, backing off")
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx)
	err := backoff.RetryNotify(operation, wrapped, notify)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = models.NewError(models.KindTimeout, "request deadline exceeded while backing off").WithCause(err)
		} else if models.KindOf(err) == models.KindThrottling {
			err = models.NewError(models.KindThrottling,
				"%s still throttled after %d retries (%.1fs elapsed)",
				model.ID(), maxRetries, time.Since(firstAttempt).Seconds()).WithCause(err)
		}
		return "", tokens, retries, err
	}
	return content, tokens, retries, nil
}

// record hands metrics to the recorder without blocking the request path.
func (d *Dispatcher) record(model *models.Model, m models.ModelMetrics) {
	if d.recorder == nil {
		return
	}
	d.recorder.AddLog(model.ID(), m)
}

// nativeCapable mirrors the adapters' native structured output gate.
func nativeCapable(m *models.Model, req *models.LLMRequest) bool {
	return req.ResponseModel != nil &&
		m.Capabilities.StructuredOutput &&
		req.ResponseModel.Native &&
		req.ResponseModel.SupportsNative()
}

// injectSchemaPrompt appends the XML schema scaffold to the system prompt so
// the model answers in the parseable shape.
func injectSchemaPrompt(req *models.LLMRequest) {
	prompt := req.ResponseModel.ToPrompt()
	instruction := "Answer using the following XML structure and nothing else:\n\n" + prompt
	if req.Conversation.System != "" {
		req.Conversation.System += "\n\n" + instruction
	} else {
		req.Conversation.System = instruction
	}
}

// statusForError maps an error kind to the HTTP status recorded in metrics.
func statusForError(err error) int {
	switch models.KindOf(err) {
	case models.KindConversion:
		return 400
	case models.KindCredentials:
		return 401
	case models.KindModelNotFound:
		return 404
	case models.KindThrottling:
		return 429
	case models.KindStructuredResponse:
		return 422
	case models.KindTimeout:
		return 504
	default:
		return 502
	}
}
