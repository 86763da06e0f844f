package llm

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"tutor-platform/pkg/errors"
	"tutor-platform/pkg/utils"
)

// statusError 将 provider 的 HTTP 状态映射为错误码
func statusError(provider string, status int, body string) error {
	var code errors.Code
	switch {
	case status == http.StatusTooManyRequests:
		code = errors.CodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = errors.CodeUpstreamTimeout
	case status >= 500:
		code = errors.CodeUpstreamUnavailable
	default:
		// 鉴权失败、请求格式错误等属于配置问题，重试无意义
		code = errors.CodeInternal
	}
	// 响应体只进入 cause（日志），不进入对外 details
	cause := fmt.Errorf("%s response body: %s", provider, utils.Truncate(body, 512))
	return errors.AsError(errors.WithCode(cause, code, fmt.Sprintf("%s returned HTTP %d", provider, status))).
		WithDetails(map[string]any{"provider": provider, "status": status})
}

// transportError 将网络层错误映射为错误码
func transportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return errors.WithCode(err, errors.CodeCancelled, "")
	case errors.Is(err, context.DeadlineExceeded):
		return errors.WithCode(err, errors.CodeUpstreamTimeout, "")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.WithCode(err, errors.CodeUpstreamTimeout, "")
	}
	return errors.WithCode(err, errors.CodeUpstreamUnavailable, provider+" is unreachable")
}
