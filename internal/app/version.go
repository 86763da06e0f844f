package app

// Version 构建版本，发布时通过 -ldflags "-X tutor-platform/internal/app.Version=..." 覆盖
var Version = "0.1.0-dev"

// ServiceName 服务名，用于 GET / 与 gRPC 健康检查
const ServiceName = "tutor-platform"
