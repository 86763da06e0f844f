package grpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"tutor-platform/internal/agent"
	"tutor-platform/internal/agent/orchestrator"
	"tutor-platform/internal/agent/router"
	"tutor-platform/internal/agent/tools"
	"tutor-platform/internal/model/llm/llmtest"
	"tutor-platform/internal/model/llm/rules"
	"tutor-platform/internal/runtime/session"
	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/log"
)

func dial(t *testing.T, svc QueryService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(log.Nop())))
	NewServer(svc, nil).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newService(t *testing.T, agents map[agent.Kind]agent.SubAgent) *orchestrator.Orchestrator {
	t.Helper()
	o, err := orchestrator.New(router.New(), agents, session.NewManager(session.NewMemoryStore()))
	require.NoError(t, err)
	return o
}

func rulesAgents(t *testing.T) map[agent.Kind]agent.SubAgent {
	t.Helper()
	agents, err := agent.NewSet(rules.New(), tools.NewBuiltinRegistry())
	require.NoError(t, err)
	return agents
}

func TestAsk_Success(t *testing.T) {
	conn := dial(t, newService(t, rulesAgents(t)))
	in, err := structpb.NewStruct(map[string]interface{}{"question": "what is 12 * (3+4)", "request_id": "grpc-1"})
	require.NoError(t, err)

	out, err := Ask(context.Background(), conn, in)
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, "grpc-1", m["request_id"])
	assert.Contains(t, m["answer"], "84")
	assert.Equal(t, "math", m["agent_details"].(map[string]interface{})["name"])
}

func TestAsk_Validation(t *testing.T) {
	conn := dial(t, newService(t, rulesAgents(t)))
	in, _ := structpb.NewStruct(map[string]interface{}{"question": "  ", "request_id": "grpc-bad"})
	_, err := Ask(context.Background(), conn, in)
	st := status.Convert(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	require.Len(t, st.Details(), 1)
	env, ok := st.Details()[0].(*structpb.Struct)
	require.True(t, ok)
	m := env.AsMap()
	assert.Equal(t, "grpc-bad", m["request_id"])
	e := m["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", e["code"])
	assert.Equal(t, "question", e["details"].(map[string]interface{})["field"])
	assert.NotEmpty(t, e["trace_id"])
	assert.Equal(t, false, e["retry"])
}

func TestAsk_ErrorCarriesEnvelope(t *testing.T) {
	client := llmtest.New(llmtest.Fail(errors.New(errors.CodeUpstreamUnavailable, "")))
	agents, err := agent.NewSet(client, tools.NewBuiltinRegistry())
	require.NoError(t, err)
	conn := dial(t, newService(t, agents))

	in, _ := structpb.NewStruct(map[string]interface{}{"question": "hello"})
	_, err = Ask(context.Background(), conn, in)
	st := status.Convert(err)
	assert.Equal(t, codes.Unavailable, st.Code())
	require.Len(t, st.Details(), 1)
	env, ok := st.Details()[0].(*structpb.Struct)
	require.True(t, ok)
	e := env.AsMap()["error"].(map[string]interface{})
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", e["code"])
	assert.Equal(t, true, e["retry"])
}

func TestHealthService(t *testing.T) {
	conn := dial(t, newService(t, rulesAgents(t)))
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

// toggleService 健康状态可切换的 QueryService
type toggleService struct {
	healthy atomic.Bool
}

func (s *toggleService) Handle(ctx context.Context, q orchestrator.Query) *orchestrator.Response {
	return &orchestrator.Response{RequestID: q.RequestID, Answer: "ok"}
}

func (s *toggleService) Health(ctx context.Context) *orchestrator.HealthReport {
	st := orchestrator.StatusHealthy
	if !s.healthy.Load() {
		st = orchestrator.StatusDegraded
	}
	return &orchestrator.HealthReport{Status: st}
}

func TestWatchHealth_FollowsServiceHealth(t *testing.T) {
	svc := &toggleService{}
	svc.healthy.Store(true)
	srv := NewServer(svc, nil)
	srv.Register(grpc.NewServer())
	srv.WatchHealth(5 * time.Millisecond)
	defer srv.Shutdown()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	svc.healthy.Store(false)
	assert.Eventually(t, func() bool { return check() == healthpb.HealthCheckResponse_NOT_SERVING },
		time.Second, 5*time.Millisecond)

	svc.healthy.Store(true)
	assert.Eventually(t, func() bool { return check() == healthpb.HealthCheckResponse_SERVING },
		time.Second, 5*time.Millisecond)
}

func TestCode(t *testing.T) {
	assert.Equal(t, codes.DeadlineExceeded, Code(errors.CodeUpstreamTimeout))
	assert.Equal(t, codes.ResourceExhausted, Code(errors.CodeRateLimited))
	assert.Equal(t, codes.FailedPrecondition, Code(errors.CodeToolLoopExceeded))
	assert.Equal(t, codes.Internal, Code(errors.CodeUnknownTool))
}
