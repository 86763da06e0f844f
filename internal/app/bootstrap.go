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

package app

import (
	"context"
	"fmt"
	"time"

	"tutor-platform/internal/agent"
	"tutor-platform/internal/agent/orchestrator"
	"tutor-platform/internal/agent/router"
	"tutor-platform/internal/agent/tools"
	"tutor-platform/internal/model/llm"
	"tutor-platform/internal/model/llm/rules"
	"tutor-platform/internal/runtime/session"
	"tutor-platform/pkg/config"
	"tutor-platform/pkg/log"
	"tutor-platform/pkg/redaction"
	"tutor-platform/pkg/retry"
	"tutor-platform/pkg/secrets"
)

// ProviderRules 离线规则模型，无需 API key
const ProviderRules = "rules"

// Bootstrap 统一初始化：供 api 与 cli 复用，避免在 cmd 内写业务装配
type Bootstrap struct {
	Config       *config.Config
	Logger       *log.Logger
	Client       llm.Client
	Registry     *tools.Registry
	Sessions     *session.Manager
	Router       *router.Router
	Orchestrator *orchestrator.Orchestrator
}

// NewBootstrap 根据配置创建 Bootstrap（Logger/Secrets/Model/Session/Agents）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}

	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := session.NewStore(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("初始化会话存储failed: %w", err)
	}
	sessions := session.NewManager(store,
		session.WithHistoryLimit(cfg.Session.HistoryLimit),
		session.WithLogger(logger),
	)

	registry := tools.NewBuiltinRegistry()
	agents, err := agent.NewSet(client, registry,
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithToolPolicy(toolPolicy(cfg.Agent)),
		agent.WithCompletionOptions(llm.Options{
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxTokens,
		}),
		agent.WithLogger(logger),
	)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("初始化子 Agent failed: %w", err)
	}

	routerOpts := []router.Option{
		router.WithMargin(cfg.Router.Margin),
		router.WithThreshold(cfg.Router.Threshold),
		router.WithLogger(logger),
	}
	if cfg.Router.Delegate && client.Provider() != ProviderRules {
		routerOpts = append(routerOpts, router.WithDelegate(client))
	}
	r := router.New(routerOpts...)

	mode, err := redaction.ParseMode(cfg.Log.RedactQuestions)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("log.redact_questions: %w", err)
	}

	orch, err := orchestrator.New(r, agents, sessions,
		orchestrator.WithLogger(logger),
		orchestrator.WithRedactor(redaction.New(mode, "")),
		orchestrator.WithTimeout(config.ParseDuration(cfg.API.Timeout, 120*time.Second)),
		orchestrator.WithProbe(completionProbe(client)),
	)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("初始化 orchestrator failed: %w", err)
	}

	return &Bootstrap{
		Config:       cfg,
		Logger:       logger,
		Client:       client,
		Registry:     registry,
		Sessions:     sessions,
		Router:       r,
		Orchestrator: orch,
	}, nil
}

// Close 释放会话存储连接
func (b *Bootstrap) Close() error {
	if b == nil || b.Sessions == nil {
		return nil
	}
	return b.Sessions.Close()
}

// newClient 按 provider 创建模型客户端；远程 provider 依次包裹限流与重试
func newClient(ctx context.Context, cfg *config.Config, logger *log.Logger) (llm.Client, error) {
	provider := cfg.Model.Provider
	if provider == "" || provider == ProviderRules {
		return rules.New(), nil
	}

	store, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 secret store failed: %w", err)
	}
	apiKey, err := secrets.Resolve(ctx, store, cfg.Model.APIKey)
	if err != nil {
		return nil, fmt.Errorf("解析 model.api_key failed: %w", err)
	}

	remote, err := llm.NewClient(ctx, llm.Config{
		Provider: provider,
		Model:    cfg.Model.Name,
		APIKey:   apiKey,
		BaseURL:  cfg.Model.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化模型客户端failed: %w", err)
	}

	var client llm.Client = remote
	if len(cfg.RateLimits.LLM) > 0 {
		client = llm.NewRateLimitedClient(client, llm.NewRateLimiter(cfg.RateLimits.LLM, nil))
	}
	return llm.NewResilientClient(client, toolPolicy(cfg.Agent), logger), nil
}

// toolPolicy 模型与工具调用共用的超时与重试策略
func toolPolicy(a config.AgentConfig) retry.Policy {
	p := retry.DefaultPolicy()
	p.AttemptTimeout = config.ParseDuration(a.CallTimeout, p.AttemptTimeout)
	p.InitialInterval = config.ParseDuration(a.RetryBackoff, p.InitialInterval)
	if a.MaxRetries > 0 {
		p.MaxRetries = a.MaxRetries
	}
	return p
}

// completionProbe 远程 provider 经模型元数据端点探测可用性；rules 为本地实现，始终可用
func completionProbe(client llm.Client) orchestrator.Probe {
	return orchestrator.Probe{
		Name:  "completion_service",
		Check: func(ctx context.Context) error { return llm.Ping(ctx, client) },
	}
}
