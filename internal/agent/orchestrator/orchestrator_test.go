package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-platform/internal/agent"
	"tutor-platform/internal/agent/router"
	"tutor-platform/internal/agent/tools"
	"tutor-platform/internal/model/llm"
	"tutor-platform/internal/model/llm/llmtest"
	"tutor-platform/internal/model/llm/rules"
	"tutor-platform/internal/runtime/session"
	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/redaction"
)

type fixture struct {
	orch  *Orchestrator
	store *session.MemoryStore
	mgr   *session.Manager
}

func newFixture(t *testing.T, client llm.Client, classifier router.Classifier, opts ...Option) *fixture {
	t.Helper()
	agents, err := agent.NewSet(client, tools.NewBuiltinRegistry())
	require.NoError(t, err)
	store := session.NewMemoryStore()
	mgr := session.NewManager(store)
	if classifier == nil {
		classifier = router.New()
	}
	o, err := New(classifier, agents, mgr, opts...)
	require.NoError(t, err)
	return &fixture{orch: o, store: store, mgr: mgr}
}

func turns(t *testing.T, f *fixture, id string) []session.Turn {
	t.Helper()
	s, err := f.store.Get(context.Background(), id)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	return s.History
}

func TestHandle_ArithmeticRoutesToMath(t *testing.T) {
	f := newFixture(t, rules.New(), nil)
	resp := f.orch.Handle(context.Background(), Query{Text: "what is 12 * (3+4)", RequestID: "req-1"})
	require.True(t, resp.OK(), "%+v", resp.Error)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "req-1", resp.RequestID)
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, resp.Answer, "84")
	require.NotNil(t, resp.AgentDetails)
	assert.Equal(t, "math", resp.AgentDetails.Name)
	assert.GreaterOrEqual(t, resp.AgentDetails.Confidence, 0.4)
	assert.Contains(t, resp.AgentDetails.ToolsUsed, "calculator")
	assert.Nil(t, resp.DebugInfo)

	history := turns(t, f, resp.SessionID)
	require.Len(t, history, 1)
	assert.Equal(t, "what is 12 * (3+4)", history[0].QueryText)
	assert.Equal(t, "math", history[0].AgentName)
}

func TestHandle_NoSignalUsesGeneral(t *testing.T) {
	f := newFixture(t, rules.New(), nil)
	resp := f.orch.Handle(context.Background(), Query{Text: "hello", Debug: true})
	require.True(t, resp.OK())
	assert.Equal(t, "general", resp.AgentDetails.Name)
	assert.Equal(t, router.DefaultThreshold, resp.AgentDetails.Confidence)
	assert.Empty(t, resp.AgentDetails.ToolsUsed)
	require.NotNil(t, resp.DebugInfo)
	assert.Equal(t, router.RationaleAmbiguous, resp.DebugInfo.Classification.Rationale)
}

func TestHandle_DebugInfo(t *testing.T) {
	f := newFixture(t, rules.New(), nil)
	resp := f.orch.Handle(context.Background(), Query{Text: "What is the speed of light?", Debug: true, UserID: "u-1"})
	require.True(t, resp.OK())
	d := resp.DebugInfo
	require.NotNil(t, d)

	var states []string
	for _, tr := range d.States {
		states = append(states, tr.To.String())
	}
	assert.Equal(t, []string{"classifying", "delegated", "tool_loop", "responding", "done"}, states)
	assert.Equal(t, agent.KindPhysics, d.Classification.Agent)
	assert.NotEmpty(t, d.Classification.Scores)
	require.NotEmpty(t, d.ToolInvocations)
	assert.Equal(t, "lookup", d.ToolInvocations[0].ToolName)
	for _, k := range []string{"session_load", "classification", "agent", "session_save", "total"} {
		assert.Contains(t, d.TimingsMs, k)
	}
	assert.Equal(t, "u-1", d.UserID)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"to":"done"`)
	assert.NotContains(t, string(raw), `"error"`)
}

func TestHandle_ToolLoopExceeded(t *testing.T) {
	steps := make([]llmtest.Step, 0, agent.DefaultMaxIterations)
	for i := 0; i < agent.DefaultMaxIterations; i++ {
		steps = append(steps, llmtest.Call(fmt.Sprintf("c%d", i), "calculator", map[string]any{"expression": "1+1"}))
	}
	client := llmtest.New(steps...)
	f := newFixture(t, client, nil)
	resp := f.orch.Handle(context.Background(), Query{Text: "what is 1+1", SessionID: "8d9c6a0e-5b7c-4d36-9a53-1c1c0f0b3f11", Debug: true})
	require.False(t, resp.OK())
	assert.Equal(t, errors.CodeToolLoopExceeded, resp.Error.Code)
	assert.False(t, resp.Error.Retry)
	assert.NotEmpty(t, resp.Error.TraceID)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode())
	assert.Empty(t, resp.Answer)
	assert.Nil(t, resp.AgentDetails)
	assert.Equal(t, agent.DefaultMaxIterations, client.CallCount())

	// 失败不写入历史
	assert.Empty(t, turns(t, f, "8d9c6a0e-5b7c-4d36-9a53-1c1c0f0b3f11"))
}

func TestHandle_ToolErrorRecovered(t *testing.T) {
	client := llmtest.New(
		llmtest.Call("c1", "calculator", map[string]any{"expression": "5/0"}),
		llmtest.Text("Dividing by zero is undefined."),
	)
	f := newFixture(t, client, nil)
	resp := f.orch.Handle(context.Background(), Query{Text: "what is 5/0"})
	require.True(t, resp.OK())
	assert.Equal(t, []string{"calculator"}, resp.AgentDetails.ToolsUsed)
}

func TestHandle_SessionContinuity(t *testing.T) {
	client := llmtest.New(llmtest.Text("Hi there"), llmtest.Text("Hello again"))
	f := newFixture(t, client, nil)

	first := f.orch.Handle(context.Background(), Query{Text: "hello"})
	require.True(t, first.OK())
	second := f.orch.Handle(context.Background(), Query{Text: "hello again", SessionID: first.SessionID})
	require.True(t, second.OK())
	assert.Equal(t, first.SessionID, second.SessionID)

	msgs := client.Calls[1]
	require.Len(t, msgs, 4)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, "Hi there", msgs[2].Content)
	assert.Equal(t, "hello again", msgs[3].Content)
	assert.Len(t, turns(t, f, first.SessionID), 2)
}

func TestHandle_UnknownSessionIDStartsFresh(t *testing.T) {
	f := newFixture(t, rules.New(), nil)
	id := "0f8fad5b-d9cb-469f-a165-70867728950e"
	resp := f.orch.Handle(context.Background(), Query{Text: "hello", SessionID: id})
	require.True(t, resp.OK())
	assert.Equal(t, id, resp.SessionID)
	assert.Len(t, turns(t, f, id), 1)
}

func TestHandle_EmptyQuestion(t *testing.T) {
	f := newFixture(t, rules.New(), nil)
	resp := f.orch.Handle(context.Background(), Query{Text: "   "})
	require.False(t, resp.OK())
	assert.Equal(t, errors.CodeValidation, resp.Error.Code)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, 0, f.store.Len())
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string, []session.Turn) (*router.Decision, error) {
	return nil, errors.New(errors.CodeClassificationUnavailable, "")
}

func TestHandle_ClassificationUnavailable(t *testing.T) {
	f := newFixture(t, rules.New(), failingClassifier{})
	resp := f.orch.Handle(context.Background(), Query{Text: "calculate the energy"})
	require.False(t, resp.OK())
	assert.Equal(t, errors.CodeClassificationUnavailable, resp.Error.Code)
	assert.True(t, resp.Error.Retry)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode())
	assert.Empty(t, turns(t, f, resp.SessionID))
}

func TestHandle_UpstreamErrorIsSafe(t *testing.T) {
	cause := fmt.Errorf("secret system prompt leaked here")
	client := llmtest.New(llmtest.Fail(errors.WithCode(cause, errors.CodeUpstreamTimeout, "")))
	f := newFixture(t, client, nil)
	resp := f.orch.Handle(context.Background(), Query{Text: "hello"})
	require.False(t, resp.OK())
	assert.Equal(t, errors.CodeUpstreamTimeout, resp.Error.Code)
	assert.True(t, resp.Error.Retry)
	assert.NotContains(t, resp.Error.Message, "secret")
}

// blockingClient 阻塞到 ctx 结束
type blockingClient struct{}

func (blockingClient) Complete(ctx context.Context, _ []llm.Message, _ []llm.ToolSpec, _ llm.Options) (*llm.Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingClient) Model() string    { return "blocking" }
func (blockingClient) Provider() string { return "blocking" }

func TestHandle_ServerDeadlineIsTimeout(t *testing.T) {
	f := newFixture(t, blockingClient{}, nil, WithTimeout(20*time.Millisecond))
	resp := f.orch.Handle(context.Background(), Query{Text: "what is 2+2"})
	require.False(t, resp.OK())
	assert.Equal(t, errors.CodeUpstreamTimeout, resp.Error.Code)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode())
	assert.True(t, resp.Error.Retry)
}

func TestHandle_Cancelled(t *testing.T) {
	f := newFixture(t, rules.New(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := f.orch.Handle(ctx, Query{Text: "what is 2+2", SessionID: "4b3c1f0e-8f6a-4c8e-9a3d-5a7e2b1c9d00"})
	require.False(t, resp.OK())
	assert.Equal(t, errors.CodeCancelled, resp.Error.Code)
	assert.Empty(t, turns(t, f, "4b3c1f0e-8f6a-4c8e-9a3d-5a7e2b1c9d00"))
}

func TestHandle_SameSessionSerialized(t *testing.T) {
	f := newFixture(t, rules.New(), nil)
	id := "c56a4180-65aa-42ec-a945-5fd21dec0538"
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := f.orch.Handle(context.Background(), Query{Text: fmt.Sprintf("what is %d+1", i), SessionID: id})
			assert.True(t, resp.OK())
		}(i)
	}
	wg.Wait()
	assert.Len(t, turns(t, f, id), 8)
}

func TestHandle_Timeout(t *testing.T) {
	f := newFixture(t, codedBlockingClient{}, nil, WithTimeout(20*time.Millisecond))
	resp := f.orch.Handle(context.Background(), Query{Text: "hello"})
	require.False(t, resp.OK())
	assert.True(t, resp.Error.Retry)
}

// codedBlockingClient 阻塞直到 ctx 结束
type codedBlockingClient struct{}

func (codedBlockingClient) Complete(ctx context.Context, _ []llm.Message, _ []llm.ToolSpec, _ llm.Options) (*llm.Completion, error) {
	<-ctx.Done()
	return nil, errors.WithCode(ctx.Err(), errors.CodeUpstreamTimeout, "")
}
func (codedBlockingClient) Model() string    { return "blocking" }
func (codedBlockingClient) Provider() string { return "blocking" }

func TestNew_RequiresAllAgents(t *testing.T) {
	agents, err := agent.NewSet(rules.New(), tools.NewBuiltinRegistry())
	require.NoError(t, err)
	delete(agents, agent.KindPhysics)
	_, err = New(router.New(), agents, session.NewManager(session.NewMemoryStore()))
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, rules.New(), nil)
	h := f.orch.Health(context.Background())
	assert.True(t, h.Healthy())
	assert.Equal(t, StatusHealthy, h.Components["session_store"])
	assert.Equal(t, StatusHealthy, h.Components["orchestrator"])

	f = newFixture(t, rules.New(), nil, WithProbe(Probe{
		Name:  "completion_service",
		Check: func(context.Context) error { return fmt.Errorf("dial tcp 10.0.0.7:5432: connection refused") },
	}))
	h = f.orch.Health(context.Background())
	assert.False(t, h.Healthy())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, StatusUnhealthy, h.Components["completion_service"])
}

func TestMachine(t *testing.T) {
	m := newMachine(nil)
	require.NoError(t, m.advance(StateClassifying, ""))
	assert.Error(t, m.advance(StateToolLoop, ""))
	m.fail("boom")
	assert.Equal(t, StateErrored, m.state)
	assert.Error(t, m.advance(StateDelegated, ""))
	m.fail("again")
	assert.Len(t, m.history, 2)
}

func TestHandle_LogsRedactedQuestion(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(&log.Config{Level: "info", Format: "json"}, &buf)
	redactor := redaction.New(redaction.ModeHash, "")
	f := newFixture(t, rules.New(), nil, WithLogger(logger), WithRedactor(redactor))

	question := "what is 12 * (3+4)"
	resp := f.orch.Handle(context.Background(), Query{Text: question})
	require.True(t, resp.OK(), "%+v", resp.Error)

	out := buf.String()
	assert.Contains(t, out, "query completed")
	assert.Contains(t, out, redactor.String(question))
	assert.NotContains(t, out, question)
}
