package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelmux/modelmux/internal/catalog"
	"github.com/modelmux/modelmux/internal/metrics"
	"github.com/modelmux/modelmux/internal/provider"
	"github.com/modelmux/modelmux/internal/schema"
	"github.com/modelmux/modelmux/pkg/models"
)

const testCatalogYAML = `
PROVIDERS:
  MOCK:
    config:
      min_delay_seconds: 0
      max_delay_seconds: 0
MODELS:
  MOCK/mock:
    internal_model_id: mock
    capabilities:
      structured_output: true
`

func newTestDispatcher(t *testing.T) (*Dispatcher, *metrics.Recorder) {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("catalog.Parse() error = %v", err)
	}
	rec := metrics.NewRecorder(t.TempDir(), 1000, 10)
	d := New(cat, rec)
	d.backoffInitial = time.Millisecond
	t.Cleanup(d.Close)
	return d, rec
}

func chatRequest(text string) *models.LLMRequest {
	return &models.LLMRequest{Conversation: models.NewConversationFromPrompt(text)}
}

// mockFor digs the started mock adapter out of the cache so tests can script
// throttling behavior.
func mockFor(t *testing.T, d *Dispatcher, modelID string) *provider.MockAdapter {
	t.Helper()
	m, err := d.registry.GetModel(modelID)
	if err != nil {
		t.Fatalf("GetModel() error = %v", err)
	}
	a, err := d.adapterFor(m)
	if err != nil {
		t.Fatalf("adapterFor() error = %v", err)
	}
	mock, ok := a.(*provider.MockAdapter)
	if !ok {
		t.Fatalf("adapter is %T, want *provider.MockAdapter", a)
	}
	return mock
}

func TestChatEcho(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp, err := d.Chat(context.Background(), "MOCK/mock", chatRequest("hello there"))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !strings.HasPrefix(resp.RawOutput, "hello there") {
		t.Errorf("RawOutput = %q, want echo of the prompt", resp.RawOutput)
	}
	if resp.ID == "" {
		t.Error("response ID was not populated")
	}
	if resp.Model == nil || resp.Model.ID() != "MOCK/mock" {
		t.Errorf("Model = %v, want MOCK/mock", resp.Model)
	}
	if resp.EndTime.Before(resp.StartTime) {
		t.Error("EndTime precedes StartTime")
	}
}

func TestChatModelNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Chat(context.Background(), "MOCK/no-such-model", chatRequest("hi"))
	if models.KindOf(err) != models.KindModelNotFound {
		t.Errorf("KindOf() = %q, want %q", models.KindOf(err), models.KindModelNotFound)
	}
}

func TestChatInvalidRequest(t *testing.T) {
	d, _ := newTestDispatcher(t)

	bad := chatRequest("hi")
	topP := 1.5
	bad.TopP = &topP
	_, err := d.Chat(context.Background(), "MOCK/mock", bad)
	if models.KindOf(err) != models.KindConversion {
		t.Errorf("KindOf() = %q, want %q", models.KindOf(err), models.KindConversion)
	}
}

func TestChatRetriesThrottling(t *testing.T) {
	d, rec := newTestDispatcher(t)
	mockFor(t, d, "MOCK/mock").Throttles = 2

	resp, err := d.Chat(context.Background(), "MOCK/mock", chatRequest("retry me"))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !strings.HasPrefix(resp.RawOutput, "retry me") {
		t.Errorf("RawOutput = %q, want echo after retries", resp.RawOutput)
	}

	_, recs, err := rec.GetLogs("MOCK/mock", nil, nil, 10)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("metrics record count = %d, want 1", len(recs))
	}
	if recs[0].InternalRetries != 2 {
		t.Errorf("InternalRetries = %d, want 2", recs[0].InternalRetries)
	}
}

func TestChatThrottlingExhaustion(t *testing.T) {
	d, rec := newTestDispatcher(t)
	mockFor(t, d, "MOCK/mock").Throttles = 100

	req := chatRequest("always throttled")
	maxRetries := 3
	req.MaxRetries = &maxRetries

	_, err := d.Chat(context.Background(), "MOCK/mock", req)
	if models.KindOf(err) != models.KindThrottling {
		t.Fatalf("KindOf() = %q, want %q", models.KindOf(err), models.KindThrottling)
	}
	if !strings.Contains(err.Error(), "after 3 retries") {
		t.Errorf("error = %q, want retry budget in message", err)
	}
	if !strings.Contains(err.Error(), "s elapsed)") {
		t.Errorf("error = %q, want elapsed time in message", err)
	}

	_, recs, err := rec.GetLogs("MOCK/mock", nil, nil, 10)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("metrics record count = %d, want 1", len(recs))
	}
	if recs[0].StatusCode == nil || *recs[0].StatusCode != 429 {
		t.Errorf("StatusCode = %v, want 429", recs[0].StatusCode)
	}
	if recs[0].ErrorMessage == "" {
		t.Error("ErrorMessage is empty on a failure record")
	}
}

func TestRetryDelaysDouble(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.backoffInitial = 10 * time.Millisecond
	mockFor(t, d, "MOCK/mock").Throttles = 3

	var delays []time.Duration
	d.onBackoff = func(delay time.Duration) { delays = append(delays, delay) }

	if _, err := d.Chat(context.Background(), "MOCK/mock", chatRequest("eventually")); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delay count = %d, want %d (%v)", len(delays), len(want), delays)
	}
	for i, delay := range delays {
		if delay != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delay, want[i])
		}
	}
}

func TestChatDoesNotRetryPermanentErrors(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// The mock model has no image support, so the adapter fails conversion;
	// the retry loop must surface that immediately without consuming budget.
	req := chatRequest("look at this")
	req.Conversation.Messages[0].Images = []*models.Image{
		{Content: []byte("x"), Format: models.ImagePNG},
	}
	_, err := d.Chat(context.Background(), "MOCK/mock", req)
	if models.KindOf(err) != models.KindConversion {
		t.Fatalf("KindOf() = %q, want %q", models.KindOf(err), models.KindConversion)
	}
}

func TestChatTimeoutDuringBackoff(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.backoffInitial = time.Second
	mockFor(t, d, "MOCK/mock").Throttles = 100

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.Chat(ctx, "MOCK/mock", chatRequest("slow"))
	if models.KindOf(err) != models.KindTimeout {
		t.Errorf("KindOf() = %q, want %q", models.KindOf(err), models.KindTimeout)
	}
}

func TestChatStructuredOutput(t *testing.T) {
	d, _ := newTestDispatcher(t)

	s := schema.New("Verdict")
	if err := s.AddNode("summary", schema.NewLeaf(schema.TypeStr, "one line")); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if err := s.AddNode("confidence", schema.NewLeaf(schema.TypeFloat, "0..1")); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}

	req := chatRequest("assess this")
	req.ResponseModel = s

	resp, err := d.Chat(context.Background(), "MOCK/mock", req)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.StructuredOutput == nil {
		t.Fatal("StructuredOutput is nil")
	}
	if resp.StructuredOutput["summary"] != "mock" {
		t.Errorf("summary = %v, want %q", resp.StructuredOutput["summary"], "mock")
	}
	if _, ok := resp.StructuredOutput["confidence"].(float64); !ok {
		t.Errorf("confidence = %T, want float64", resp.StructuredOutput["confidence"])
	}
}

func TestInjectSchemaPrompt(t *testing.T) {
	s := schema.New("Verdict")
	if err := s.AddNode("summary", schema.NewLeaf(schema.TypeStr, "one line")); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}

	req := chatRequest("assess")
	req.ResponseModel = s
	req.Conversation.System = "You are terse."
	injectSchemaPrompt(req)

	if !strings.HasPrefix(req.Conversation.System, "You are terse.") {
		t.Error("existing system prompt was displaced")
	}
	if !strings.Contains(req.Conversation.System, "<verdict type='dict'>") {
		t.Errorf("system prompt missing schema scaffold: %q", req.Conversation.System)
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		kind models.ErrorKind
		want int
	}{
		{models.KindConversion, 400},
		{models.KindCredentials, 401},
		{models.KindModelNotFound, 404},
		{models.KindThrottling, 429},
		{models.KindStructuredResponse, 422},
		{models.KindTimeout, 504},
		{models.KindServiceCall, 502},
	}
	for _, tc := range cases {
		err := models.NewError(tc.kind, "boom")
		if got := statusForError(err); got != tc.want {
			t.Errorf("statusForError(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
