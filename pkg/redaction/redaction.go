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

// Package redaction 日志中用户文本的脱敏
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Mode 脱敏模式
type Mode string

const (
	ModeNone   Mode = "none"   // 原样输出
	ModeRedact Mode = "redact" // 替换为 Redacted
	ModeHash   Mode = "hash"   // 替换为 sha256 前缀，便于关联相同问题
	ModeRemove Mode = "remove" // 输出空串
)

// Redacted redact 模式的占位文本
const Redacted = "***REDACTED***"

const hashPrefixLen = 12

// ParseMode 解析配置值；空值为 hash
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeHash, nil
	case ModeNone, ModeRedact, ModeHash, ModeRemove:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported redaction mode %q", s)
	}
}

// Redactor 按模式处理字符串；零值等价于 ModeNone
type Redactor struct {
	mode Mode
	salt string
}

// New 创建 Redactor；salt 仅用于 hash 模式
func New(mode Mode, salt string) *Redactor {
	return &Redactor{mode: mode, salt: salt}
}

// Mode 当前模式
func (r *Redactor) Mode() Mode {
	if r == nil || r.mode == "" {
		return ModeNone
	}
	return r.mode
}

// String 脱敏单个值；空串保持为空
func (r *Redactor) String(s string) string {
	if s == "" {
		return s
	}
	switch r.Mode() {
	case ModeRedact:
		return Redacted
	case ModeHash:
		sum := sha256.Sum256([]byte(r.salt + s))
		return "sha256:" + hex.EncodeToString(sum[:])[:hashPrefixLen]
	case ModeRemove:
		return ""
	default:
		return s
	}
}
