package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-platform/internal/model/llm"
)

var allTools = []llm.ToolSpec{{Name: "calculator"}, {Name: "lookup"}}

func TestExtractExpression(t *testing.T) {
	cases := map[string]string{
		"What is 12*(3+4)?":               "12*(3+4)",
		"what is 2 plus 2":                "2 + 2",
		"Calculate 3 times 4 minus 1":     "3 * 4 - 1",
		"What is 5 squared?":              "5 ^ 2",
		"what is 10 divided by 4":         "10 / 4",
		"2 to the power of 10":            "2 ^ 10",
		"(1+2)*3":                         "(1+2)*3",
		"Explain the Pythagorean theorem": "",
		"Is 2024 a leap year?":            "",
		"derivative of x^2":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractExpression(in), in)
	}
}

func TestExtractReference(t *testing.T) {
	cases := []struct {
		in, name, kind string
	}{
		{"What is the speed of light?", "c", "constant"},
		{"acceleration due to gravity on earth", "g", "constant"},
		{"Tell me the gravitational constant", "G", "constant"},
		{"What is Planck's constant", "h", "constant"},
		{"formula for kinetic energy", "kinetic_energy", "formula"},
		{"explain Newton's second law", "newton_second_law", "formula"},
		{"how is work related to power", "power", "formula"},
		{"distance with uniform acceleration", "uniform_acceleration_distance", "formula"},
	}
	for _, c := range cases {
		name, kind, ok := ExtractReference(c.in)
		require.True(t, ok, c.in)
		assert.Equal(t, c.name, name, c.in)
		assert.Equal(t, c.kind, kind, c.in)
	}
	_, _, ok := ExtractReference("what is the capital of France")
	assert.False(t, ok)
}

func TestComplete_CalculatorRoundTrip(t *testing.T) {
	c := New()
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "math tutor"},
		{Role: llm.RoleUser, Content: "What is 12*(3+4)?"},
	}
	out, err := c.Complete(context.Background(), msgs, allTools, llm.Options{})
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	call := out.ToolCalls[0]
	assert.Equal(t, "calculator", call.Name)
	assert.Equal(t, "12*(3+4)", call.Arguments["expression"])

	msgs = append(msgs,
		llm.Message{Role: llm.RoleAssistant, ToolCalls: out.ToolCalls},
		llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Name: "calculator",
			Content: `{"tool_name":"calculator","success":true,"value":{"expression":"12*(3+4)","result":84,"formatted":"84",` +
				`"steps":["Start with the expression: 12*(3+4)","Take the first factor: 12","Multiply by 7","Result: 84"]}}`},
	)
	out, err = c.Complete(context.Background(), msgs, allTools, llm.Options{})
	require.NoError(t, err)
	assert.Empty(t, out.ToolCalls)
	assert.Equal(t, "12*(3+4) = 84. Steps: Start with the expression: 12*(3+4); Take the first factor: 12; Multiply by 7; Result: 84.", out.Content)
}

func TestComplete_LookupThenAnswer(t *testing.T) {
	c := New()
	msgs := []llm.Message{{Role: llm.RoleUser, Content: "What is the speed of light?"}}
	out, err := c.Complete(context.Background(), msgs, allTools, llm.Options{})
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "lookup", out.ToolCalls[0].Name)
	assert.Equal(t, "c", out.ToolCalls[0].Arguments["name"])

	msgs = append(msgs,
		llm.Message{Role: llm.RoleAssistant, ToolCalls: out.ToolCalls},
		llm.Message{Role: llm.RoleTool, ToolCallID: out.ToolCalls[0].ID, Name: "lookup",
			Content: `{"tool_name":"lookup","success":true,"value":{"kind":"constant","key":"c","name":"speed of light","formatted":"299792458","unit":"m/s","description":"Speed of light in vacuum"}}`},
	)
	out, err = c.Complete(context.Background(), msgs, allTools, llm.Options{})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "299792458 m/s")
}

func TestComplete_FailureIsExplained(t *testing.T) {
	c := New()
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "what is 1/0"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "calculator"}}},
		{Role: llm.RoleTool, ToolCallID: "call_1", Name: "calculator",
			Content: `{"tool_name":"calculator","success":false,"error":"division by zero","code":"DIVISION_BY_ZERO"}`},
	}
	out, err := c.Complete(context.Background(), msgs, allTools, llm.Options{})
	require.NoError(t, err)
	assert.Empty(t, out.ToolCalls)
	assert.Contains(t, out.Content, "division by zero")
}

func TestComplete_NoToolsAndHistoryIgnored(t *testing.T) {
	c := New()
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "what is 2+2"},
		{Role: llm.RoleAssistant, Content: "2+2 = 4."},
		{Role: llm.RoleUser, Content: "hello"},
	}
	out, err := c.Complete(context.Background(), msgs, allTools, llm.Options{})
	require.NoError(t, err)
	assert.Empty(t, out.ToolCalls)
	assert.NotEmpty(t, out.Content)

	out, err = c.Complete(context.Background(), msgs[:1], nil, llm.Options{})
	require.NoError(t, err)
	assert.Empty(t, out.ToolCalls)
	assert.Contains(t, out.Content, "tutor")
}

func TestComplete_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Complete(ctx, nil, nil, llm.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
