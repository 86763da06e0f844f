package http

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"tutor-platform/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler     *Handler
	middleware  *middleware.Middleware
	jwt         *jwt.HertzJWTMiddleware
	metricsPath string
	pre         []app.HandlerFunc
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetJWT 启用 /api 下的 JWT 认证
func (r *Router) SetJWT(j *jwt.HertzJWTMiddleware) { r.jwt = j }

// SetMetricsPath 设置 Prometheus 路径；为空则不暴露
func (r *Router) SetMetricsPath(path string) { r.metricsPath = path }

// Use 追加在内置中间件之前执行的全局中间件（如链路追踪），须在 Build 前调用
func (r *Router) Use(h ...app.HandlerFunc) { r.pre = append(r.pre, h...) }

// Build 创建 Hertz 实例并注册路由；客户端断开时取消请求 ctx
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{
		server.WithHostPorts(addr),
		server.WithSenseClientDisconnection(true),
	}, opts...)
	h := server.New(opts...)
	r.Register(h)
	return h
}

// Register 在已有 Hertz 实例上注册中间件与路由
func (r *Router) Register(h *server.Hertz) {
	mw := r.middleware
	if len(r.pre) > 0 {
		h.Use(r.pre...)
	}
	// RequestID 在最外层，panic 时仍能写回 X-Request-ID
	h.Use(mw.RequestID(), mw.Recover(), mw.CORS())

	h.GET("/", r.handler.Info)
	h.GET("/health", r.handler.Health)
	if r.metricsPath != "" {
		h.GET(r.metricsPath, r.handler.Metrics)
	}

	api := h.Group("/api")
	api.OPTIONS("/query", r.handler.Preflight)

	var auth []app.HandlerFunc
	if r.jwt != nil {
		api.OPTIONS("/auth/login", r.handler.Preflight)
		api.POST("/auth/login", r.jwt.LoginHandler)
		auth = append(auth, r.jwt.MiddlewareFunc())
	}
	api.POST("/query", append(auth, mw.RateLimit(), r.handler.Query)...)
}
