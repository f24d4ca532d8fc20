package schema_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/internal/schema"
)

func TestToPromptLeafRendering(t *testing.T) {
	s := buildReportSchema(t)
	prompt := s.ToPrompt()

	assert.True(t, strings.HasPrefix(prompt, "<bug_report type='dict'>"), "prompt = %q", prompt)
	assert.True(t, strings.HasSuffix(prompt, "</bug_report>"))
	assert.Contains(t, prompt, "<id type='str'>[ticket id - as a str]</id>")
	assert.Contains(t, prompt, `<severity type='enum' choices='["low","medium","high"]'>`)
	assert.Contains(t, prompt, "<score type='float' greater_or_equal='0' less_or_equal='1'>")
}

func TestToPromptListRendering(t *testing.T) {
	s := buildReportSchema(t)
	prompt := s.ToPrompt()

	assert.Contains(t, prompt, "<tags type='list' elements='str' description='labels'>")
	assert.Contains(t, prompt, "<li index='0'>[value here - as a str]</li>")
	assert.Contains(t, prompt, "<steps type='list' elements='dict' description='reproduction steps'>")
	// One example element followed by the continuation sentinel.
	assert.Contains(t, prompt, "...")
}

func TestToPromptEscapesQuotesInDescriptions(t *testing.T) {
	s := schema.New("Note")
	require.NoError(t, s.AddNode("text", schema.NewLeaf(schema.TypeStr, "the user's words")))

	prompt := s.ToPrompt()
	assert.NotContains(t, prompt, "description='the user's words'")
	assert.Contains(t, prompt, "description='the user’s words'")
}

func TestRenderInstanceRoundTrip(t *testing.T) {
	s := buildReportSchema(t)
	s.Instance = map[string]any{
		"id":       "PROJ-7",
		"severity": "medium",
		"score":    0.5,
		"details":  map[string]any{"reporter": "qa", "open": false},
		"tags":     []any{"ui", "flaky"},
		"steps": []any{
			map[string]any{"order": 1, "action": "open page"},
			map[string]any{"order": 2, "action": "click save"},
		},
	}

	rendered := s.RenderInstance()
	assert.NotContains(t, rendered, "type=", "canonical rendering carries no type attributes")

	parsed, err := s.FromPrompt(rendered)
	require.NoError(t, err)
	assert.Equal(t, s.Instance, parsed)
}

func TestRenderInstanceSkipsNilFields(t *testing.T) {
	s := buildReportSchema(t)
	s.Instance = map[string]any{"id": "PROJ-8"}

	rendered := s.RenderInstance()
	assert.Contains(t, rendered, "<id>PROJ-8</id>")
	assert.NotContains(t, rendered, "<severity>")
	assert.NotContains(t, rendered, "<details>")
}
