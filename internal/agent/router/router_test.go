package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-platform/internal/agent"
	"tutor-platform/internal/model/llm"
	"tutor-platform/internal/model/llm/llmtest"
	"tutor-platform/internal/runtime/session"
	"tutor-platform/pkg/errors"
)

func TestClassify_Arithmetic(t *testing.T) {
	d, err := New().Classify(context.Background(), "what is 12 * (3+4)", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindMath, d.Agent)
	assert.GreaterOrEqual(t, d.Confidence, DefaultThreshold)
	assert.Equal(t, MethodLexical, d.Method)
}

func TestClassify_Physics(t *testing.T) {
	d, err := New().Classify(context.Background(), "What is the speed of light?", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindPhysics, d.Agent)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
	assert.Equal(t, 0.0, d.Scores[agent.KindMath])
}

func TestClassify_NoSignalFallsBack(t *testing.T) {
	r := New()
	d, err := r.Classify(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindGeneral, d.Agent)
	assert.Equal(t, DefaultThreshold, d.Confidence)
	assert.Equal(t, RationaleAmbiguous, d.Rationale)
	assert.Equal(t, MethodFallback, d.Method)

	// 历史不影响词法得分
	history := []session.Turn{{QueryText: "solve the quadratic equation", AnswerText: "x = 2", AgentName: "math"}}
	d2, err := r.Classify(context.Background(), "hello", history)
	require.NoError(t, err)
	assert.Equal(t, d, d2)
}

func TestClassify_Deterministic(t *testing.T) {
	r := New()
	first, err := r.Classify(context.Background(), "calculate the derivative of x squared", nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		d, err := r.Classify(context.Background(), "calculate the derivative of x squared", nil)
		require.NoError(t, err)
		assert.Equal(t, first, d)
	}
}

func TestClassify_TieWithoutDelegateFallsBack(t *testing.T) {
	d, err := New().Classify(context.Background(), "calculate the energy", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, d.Scores[agent.KindMath], 1e-9)
	assert.InDelta(t, 0.8, d.Scores[agent.KindPhysics], 1e-9)
	assert.Equal(t, agent.KindGeneral, d.Agent)
	assert.Equal(t, RationaleAmbiguous, d.Rationale)
}

func testDomains() []Domain {
	return []Domain{
		{Agent: agent.KindMath, Keywords: []string{"alpha"}},
		{Agent: agent.KindPhysics, Keywords: []string{"beta", "gamma"}},
	}
}

func TestClassify_MarginBoundary(t *testing.T) {
	// 0.8 与 0.9 相差恰好 0.1，视为歧义
	d, err := New(WithDomains(testDomains())).Classify(context.Background(), "alpha beta gamma", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindGeneral, d.Agent)

	d, err = New(WithDomains(testDomains()), WithMargin(0.05)).Classify(context.Background(), "alpha beta gamma", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindPhysics, d.Agent)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
}

func TestClassify_Threshold(t *testing.T) {
	d, err := New(WithDomains(testDomains()), WithThreshold(0.85)).Classify(context.Background(), "alpha", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindGeneral, d.Agent)
	assert.Equal(t, 0.85, d.Confidence)
}

func TestClassify_DelegateResolvesTie(t *testing.T) {
	client := llmtest.New(llmtest.Text(" Physics. "))
	history := []session.Turn{{QueryText: "what is a joule", AnswerText: "a unit of energy", AgentName: "physics"}}
	d, err := New(WithDelegate(client)).Classify(context.Background(), "calculate the energy", history)
	require.NoError(t, err)
	assert.Equal(t, agent.KindPhysics, d.Agent)
	assert.Equal(t, MethodDelegate, d.Method)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)

	require.Equal(t, 1, client.CallCount())
	msgs := client.Calls[0]
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "math, physics")
	assert.Equal(t, "what is a joule", msgs[1].Content)
	assert.Equal(t, "calculate the energy", msgs[3].Content)
	assert.Empty(t, client.Tools[0])
}

func TestClassify_DelegateNamesUnknownAgent(t *testing.T) {
	client := llmtest.New(llmtest.Text("chemistry"))
	d, err := New(WithDelegate(client)).Classify(context.Background(), "calculate the energy", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindGeneral, d.Agent)
	assert.Equal(t, RationaleAmbiguous, d.Rationale)
}

func TestClassify_DelegateUnavailable(t *testing.T) {
	client := llmtest.New(llmtest.Fail(errors.New(errors.CodeUpstreamUnavailable, "")))
	_, err := New(WithDelegate(client)).Classify(context.Background(), "calculate the energy", nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeClassificationUnavailable, errors.CodeOf(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestClassify_DelegateSkippedWhenClear(t *testing.T) {
	client := llmtest.New()
	d, err := New(WithDelegate(client)).Classify(context.Background(), "solve this quadratic equation", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindMath, d.Agent)
	assert.Equal(t, 0, client.CallCount())

	d, err = New(WithDelegate(client)).Classify(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, agent.KindGeneral, d.Agent)
	assert.Equal(t, 0, client.CallCount())
}

func TestScore(t *testing.T) {
	r := New()
	s := r.Score("Add these fractions")
	assert.InDelta(t, 0.8, s[agent.KindMath], 1e-9)

	s = r.Score("A 2 kg mass accelerates at 3 m/s^2 under a force. Find the acceleration using Newton's second law.")
	assert.InDelta(t, 0.95, s[agent.KindPhysics], 1e-9)

	s = r.Score("using a sine")
	assert.Equal(t, 0.0, s[agent.KindMath])
}
