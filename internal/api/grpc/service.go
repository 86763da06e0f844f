// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package grpc 提供 gRPC 服务端，与 HTTP /api/query 能力对齐；载荷为 google.protobuf.Struct。
package grpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tutor-platform/internal/agent/orchestrator"
	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/tracing"
)

const (
	ServiceName   = "tutor.v1.QueryService"
	AskFullMethod = "/" + ServiceName + "/Ask"

	DefaultHealthInterval = 15 * time.Second
)

// QueryService 查询编排能力
type QueryService interface {
	Handle(ctx context.Context, q orchestrator.Query) *orchestrator.Response
	Health(ctx context.Context) *orchestrator.HealthReport
}

// QueryServiceServer tutor.v1.QueryService 服务端接口
type QueryServiceServer interface {
	Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// QueryServiceDesc 手写的服务描述；请求与响应均为 structpb.Struct
var QueryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ask", Handler: askHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tutor/v1/query.proto",
}

func askHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServiceServer).Ask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AskFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryServiceServer).Ask(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Ask 客户端调用
func Ask(ctx context.Context, cc grpc.ClientConnInterface, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, AskFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Server gRPC 服务端，持有查询编排与健康服务
type Server struct {
	svc    QueryService
	health *health.Server
	logger *log.Logger

	mu        sync.Mutex
	stopWatch context.CancelFunc
}

// NewServer 创建 gRPC Server
func NewServer(svc QueryService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{svc: svc, health: health.NewServer(), logger: logger}
}

// Register 注册 QueryService 与标准健康服务到 grpc.Server
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&QueryServiceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.RefreshHealth(context.Background())
}

// RefreshHealth 依据编排器健康检查更新 SERVING 状态
func (s *Server) RefreshHealth(ctx context.Context) {
	report := s.svc.Health(ctx)
	if ctx.Err() != nil {
		return
	}
	st := healthpb.HealthCheckResponse_SERVING
	if !report.Healthy() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// WatchHealth 按 interval 周期刷新健康状态，直到 Shutdown；重复调用只保留最后一次
func (s *Server) WatchHealth(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.stopWatch = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RefreshHealth(ctx)
			}
		}
	}()
}

// Shutdown 停止健康刷新并将状态置为 NOT_SERVING
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	s.mu.Unlock()
	s.health.Shutdown()
}

// Ask 实现 QueryService.Ask。请求字段：question, session_id, user_id, debug。
// 成功返回响应信封；失败返回对应 gRPC 状态码，信封附在 status details 中。
func (s *Server) Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	raw := orchestrator.Query{
		Text:      fields["question"].GetStringValue(),
		SessionID: fields["session_id"].GetStringValue(),
		UserID:    fields["user_id"].GetStringValue(),
		Debug:     fields["debug"].GetBoolValue(),
		RequestID: fields["request_id"].GetStringValue(),
	}
	if raw.RequestID == "" {
		raw.RequestID = uuid.New().String()
	}
	q, err := orchestrator.Normalize(raw)
	if err != nil {
		return s.respond(orchestrator.RejectedResponse(q, err, tracing.TraceID(ctx)))
	}
	return s.respond(s.svc.Handle(ctx, q))
}

// respond 成功返回信封；失败返回映射后的状态码并把信封放入 details
func (s *Server) respond(resp *orchestrator.Response) (*structpb.Struct, error) {
	out, err := toStruct(resp)
	if err != nil {
		s.logger.Error("encode grpc response", "request_id", resp.RequestID, "error", err)
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	if resp.OK() {
		return out, nil
	}
	st := status.New(Code(resp.Error.Code), resp.Error.Message)
	if withDetails, derr := st.WithDetails(out); derr == nil {
		st = withDetails
	}
	return nil, st.Err()
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// Code 错误码到 gRPC 状态码的映射
func Code(c errors.Code) codes.Code {
	switch c {
	case errors.CodeValidation:
		return codes.InvalidArgument
	case errors.CodeUnauthorized:
		return codes.Unauthenticated
	case errors.CodeClassificationUnavailable, errors.CodeUpstreamUnavailable:
		return codes.Unavailable
	case errors.CodeToolLoopExceeded, errors.CodeInvalidToolArguments,
		errors.CodeMalformedExpression, errors.CodeDivisionByZero, errors.CodeNotFound:
		return codes.FailedPrecondition
	case errors.CodeUpstreamTimeout:
		return codes.DeadlineExceeded
	case errors.CodeRateLimited:
		return codes.ResourceExhausted
	case errors.CodeCancelled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// LoggingInterceptor 记录每次调用的方法、耗时与状态码
func LoggingInterceptor(logger *log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", float64(time.Since(start).Microseconds())/1000,
		)
		return resp, err
	}
}
