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

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"tutor-platform/internal/agent"
	apigrpc "tutor-platform/internal/api/grpc"
	"tutor-platform/internal/api/http"
	"tutor-platform/internal/api/http/middleware"
	"tutor-platform/internal/app"
	"tutor-platform/pkg/config"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/utils"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 HTTP Router、Handler、Middleware 与可选 gRPC 服务）
type App struct {
	config       *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	grpcService  *apigrpc.Server
	grpcServer   *grpcRun
	otelProvider otelProviderShutdown
}

// grpcRun 持有 gRPC Server 与端口，用于 GracefulStop 时关闭
type grpcRun struct {
	srv            *grpc.Server
	port           int
	healthInterval time.Duration
}

func (g *grpcRun) GracefulStop() {
	if g.srv != nil {
		g.srv.GracefulStop()
	}
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Orchestrator == nil {
		return nil, fmt.Errorf("bootstrap 未初始化")
	}
	cfg := bootstrap.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	handler := http.NewHandler(bootstrap.Orchestrator, serviceInfo(cfg))

	var mwOpts []middleware.Option
	if cfg.API.CORS.Enable {
		mwOpts = append(mwOpts, middleware.WithAllowOrigins(cfg.API.CORS.AllowOrigins))
	}
	if cfg.API.Middleware.RateLimit {
		mwOpts = append(mwOpts, middleware.WithRateLimit(cfg.API.Middleware.RateLimitRPS))
	}
	router := http.NewRouter(handler, middleware.NewMiddleware(mwOpts...))

	if cfg.Monitoring.Prometheus.Enable {
		router.SetMetricsPath(cfg.Monitoring.Prometheus.Path)
	}

	if cfg.API.Middleware.Auth {
		timeout := config.ParseDuration(cfg.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := config.ParseDuration(cfg.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth([]byte(cfg.API.Middleware.JWTKey), timeout, maxRefresh, cfg.API.Middleware.Clients)
		if err != nil {
			return nil, fmt.Errorf("初始化 JWT 认证failed: %w", err)
		}
		router.SetJWT(jwtAuth)
		bootstrap.Logger.Info("JWT 认证已启用", "clients", len(cfg.API.Middleware.Clients))
	}

	a := &App{config: bootstrap, router: router}
	if cfg.API.Grpc.Enable && cfg.API.Grpc.Port > 0 {
		a.grpcService = apigrpc.NewServer(bootstrap.Orchestrator, bootstrap.Logger)
		srv := grpc.NewServer(grpc.UnaryInterceptor(apigrpc.LoggingInterceptor(bootstrap.Logger)))
		a.grpcService.Register(srv)
		a.grpcServer = &grpcRun{
			srv:            srv,
			port:           cfg.API.Grpc.Port,
			healthInterval: config.ParseDuration(cfg.API.Grpc.HealthInterval, apigrpc.DefaultHealthInterval),
		}
	}
	return a, nil
}

// serviceInfo GET / 的服务描述
func serviceInfo(cfg *config.Config) http.ServiceInfo {
	agents := make([]string, 0, len(agent.Kinds()))
	for _, k := range agent.Kinds() {
		agents = append(agents, string(k))
	}
	endpoints := map[string]string{
		"query":  "POST /api/query",
		"health": "GET /health",
		"info":   "GET /",
	}
	if cfg.Monitoring.Prometheus.Enable && cfg.Monitoring.Prometheus.Path != "" {
		endpoints["metrics"] = "GET " + cfg.Monitoring.Prometheus.Path
	}
	if cfg.API.Middleware.Auth {
		endpoints["login"] = "POST /api/auth/login"
	}
	if cfg.API.Grpc.Enable {
		endpoints["grpc"] = fmt.Sprintf("%s/Ask on :%d", apigrpc.ServiceName, cfg.API.Grpc.Port)
	}
	return http.ServiceInfo{
		Name:        app.ServiceName,
		Version:     app.Version,
		Description: "Routes academic questions to math, physics and general tutoring agents",
		Agents:      agents,
		Endpoints:   endpoints,
	}
}

// Run 启动 HTTP 服务（及可选 gRPC 服务），addr 如 ":8080"；任一服务退出即返回
func (a *App) Run(addr string) error {
	a.config.Logger.Info("API 服务启动", "addr", addr)

	if err := a.setupHertzLogger(); err != nil {
		return err
	}
	a.hertz = a.router.Build(addr, a.setupTracing()...)

	var g errgroup.Group
	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.grpcServer.port))
		if err != nil {
			return fmt.Errorf("gRPC 监听failed: %w", err)
		}
		a.config.Logger.Info("gRPC 服务启动", "port", a.grpcServer.port)
		a.grpcService.WatchHealth(a.grpcServer.healthInterval)
		g.Go(func() error { return a.grpcServer.srv.Serve(lis) })
	}
	g.Go(a.hertz.Run)
	return g.Wait()
}

// setupHertzLogger 使用 Hertz slog 扩展，与 bootstrap 日志配置对齐
func (a *App) setupHertzLogger() error {
	logCfg := &log.Config{}
	if c := a.config.Config; c != nil {
		logCfg = &log.Config{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
	}
	output, err := log.Output(logCfg)
	if err != nil {
		return fmt.Errorf("打开日志文件failed: %w", err)
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(logCfg.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))
	return nil
}

// setupTracing 可选：启用链路追踪（OpenTelemetry），追踪中间件置于路由最外层
func (a *App) setupTracing() []hertzconfig.Option {
	c := a.config.Config
	if c == nil || !c.Monitoring.Tracing.Enable {
		return nil
	}
	serviceName := utils.CoalesceString(c.Monitoring.Tracing.ServiceName, "tutor-api")
	exportEndpoint := utils.CoalesceString(c.Monitoring.Tracing.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if exportEndpoint == "" {
		a.config.Logger.Warn("链路追踪已开启但未配置 export_endpoint，跳过")
		return nil
	}
	opts := []provider.Option{
		provider.WithServiceName(serviceName),
		provider.WithExportEndpoint(exportEndpoint),
	}
	if c.Monitoring.Tracing.Insecure {
		opts = append(opts, provider.WithInsecure())
	}
	a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
	tracerOpt, tracerCfg := hertztracing.NewServerTracer()
	a.router.Use(hertztracing.ServerMiddleware(tracerCfg))
	a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
	return []hertzconfig.Option{tracerOpt}
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	if a.grpcService != nil {
		a.grpcService.Shutdown()
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	var firstErr error
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if err := a.config.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
