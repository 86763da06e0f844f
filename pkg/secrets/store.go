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

// Package secrets 解析模型 API Key 等敏感配置，支持 env / memory / vault
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound secret 不存在
var ErrSecretNotFound = errors.New("secret not found")

// Store 只读 secret 来源
type Store interface {
	// Get 获取 secret 值，不存在时返回 ErrSecretNotFound
	Get(ctx context.Context, key string) (string, error)
}

// Config secret store 配置
type Config struct {
	Provider string            // env | memory | vault
	Vault    VaultConfig       // provider=vault 时使用
	Values   map[string]string // provider=memory 时的初始值
}

// NewStore 按 provider 创建 Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(config.Values), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 解析配置中的 secret 引用：
//   - "secret:<key>" 从 store 读取
//   - "env:<NAME>" 读取环境变量
//   - 其余原样返回
func Resolve(ctx context.Context, store Store, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "secret:"):
		if store == nil {
			return "", fmt.Errorf("secret reference %q requires a secret store", ref)
		}
		return store.Get(ctx, strings.TrimPrefix(ref, "secret:"))
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v := os.Getenv(name)
		if v == "" {
			return "", fmt.Errorf("%w: env %s", ErrSecretNotFound, name)
		}
		return v, nil
	default:
		return ref, nil
	}
}
