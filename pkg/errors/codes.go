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

package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code 对外错误码，与 HTTP 响应 error.code 一致
type Code string

const (
	CodeValidation                Code = "VALIDATION_ERROR"
	CodeUnauthorized              Code = "UNAUTHORIZED"
	CodeClassificationUnavailable Code = "CLASSIFICATION_UNAVAILABLE"
	CodeToolLoopExceeded          Code = "TOOL_LOOP_EXCEEDED"
	CodeUnknownTool               Code = "UNKNOWN_TOOL"
	CodeInvalidToolArguments      Code = "INVALID_TOOL_ARGUMENTS"
	CodeMalformedExpression       Code = "MALFORMED_EXPRESSION"
	CodeDivisionByZero            Code = "DIVISION_BY_ZERO"
	CodeNotFound                  Code = "NOT_FOUND"
	CodeUpstreamTimeout           Code = "UPSTREAM_TIMEOUT"
	CodeUpstreamUnavailable       Code = "UPSTREAM_UNAVAILABLE"
	CodeRateLimited               Code = "RATE_LIMITED"
	CodeCancelled                 Code = "CANCELLED"
	CodeInternal                  Code = "INTERNAL_ERROR"
)

// statusClientClosed 客户端主动断开（nginx 约定）
const statusClientClosed = 499

type codeInfo struct {
	status    int
	retryable bool
	message   string // 默认对外文案
}

var codes = map[Code]codeInfo{
	CodeValidation:                {http.StatusBadRequest, false, "invalid request"},
	CodeUnauthorized:              {http.StatusUnauthorized, false, "authentication required"},
	CodeClassificationUnavailable: {http.StatusServiceUnavailable, true, "unable to route the question right now"},
	CodeToolLoopExceeded:          {http.StatusUnprocessableEntity, false, "the agent could not reach an answer within the allowed number of steps"},
	CodeUnknownTool:               {http.StatusInternalServerError, false, "the agent requested a tool that is not available"},
	CodeInvalidToolArguments:      {http.StatusUnprocessableEntity, false, "the agent produced invalid tool arguments"},
	CodeMalformedExpression:       {http.StatusUnprocessableEntity, false, "the expression could not be evaluated"},
	CodeDivisionByZero:            {http.StatusUnprocessableEntity, false, "division by zero"},
	CodeNotFound:                  {http.StatusUnprocessableEntity, false, "no matching entry was found"},
	CodeUpstreamTimeout:           {http.StatusGatewayTimeout, true, "the language model service timed out"},
	CodeUpstreamUnavailable:       {http.StatusServiceUnavailable, true, "the language model service is unavailable"},
	CodeRateLimited:               {http.StatusTooManyRequests, true, "too many requests, please retry later"},
	CodeCancelled:                 {statusClientClosed, true, "the request was cancelled"},
	CodeInternal:                  {http.StatusInternalServerError, false, "an unexpected error occurred"},
}

// Error 带错误码的错误；Message 面向调用方，cause 仅用于日志
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Details   map[string]any
	cause     error
}

// New 以默认可重试标记创建错误
func New(code Code, msg string) *Error {
	if msg == "" {
		msg = codes[code].message
	}
	return &Error{Code: code, Message: msg, Retryable: codes[code].retryable}
}

// Newf 格式化创建错误
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithCode 为底层错误附加错误码；err 为 nil 时返回 nil
func WithCode(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	e := New(code, msg)
	e.cause = err
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is 按错误码匹配，使 errors.Is(err, New(CodeX, "")) 成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails 返回附带 details 的副本
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// AsError 将任意错误归一为 *Error；context 取消与超时映射为对应错误码
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.Canceled):
		return WithCode(err, CodeCancelled, "").(*Error)
	case errors.Is(err, context.DeadlineExceeded):
		return WithCode(err, CodeUpstreamTimeout, "").(*Error)
	}
	return WithCode(err, CodeInternal, "").(*Error)
}

// FromContext 将 ctx.Err() 归一为错误码：调用方取消为 CANCELLED，截止时间到达为 UPSTREAM_TIMEOUT
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WithCode(err, CodeUpstreamTimeout, "the request did not complete within the allowed time")
	}
	return WithCode(err, CodeCancelled, "")
}

// CodeOf 返回错误码，nil 返回空串
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return AsError(err).Code
}

// IsRetryable 判断错误是否可由调用方重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return AsError(err).Retryable
}

// HTTPStatus 错误码对应的 HTTP 状态码
func HTTPStatus(code Code) int {
	if info, ok := codes[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
