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

package tools

import (
	"context"

	"tutor-platform/pkg/errors"
)

// Tool 工具接口：Schema 声明参数，Execute 只在参数校验通过后被调用
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Invocation 一次工具调用请求（由模型产生）
type Invocation struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Result 工具调用结果，回填给推理循环
type Result struct {
	ToolName string      `json:"tool_name"`
	Success  bool        `json:"success"`
	Value    any         `json:"value,omitempty"`
	Error    string      `json:"error,omitempty"`
	Code     errors.Code `json:"code,omitempty"`
}

func failed(name string, err error) Result {
	e := errors.AsError(err)
	return Result{ToolName: name, Success: false, Error: e.Message, Code: e.Code}
}
