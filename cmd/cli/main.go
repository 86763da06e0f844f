package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"tutor-platform/internal/agent/orchestrator"
	"tutor-platform/internal/app"
	"tutor-platform/pkg/config"
	"tutor-platform/pkg/tracing"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Printf("tutor %s\n", app.Version)
	case "health":
		os.Exit(runHealth(os.Stdout, os.Stderr))
	case "config":
		os.Exit(runConfig(os.Stdout, os.Stderr))
	case "ask":
		os.Exit(runAsk(args, os.Stdout, os.Stderr))
	case "chat":
		os.Exit(runChat(args, os.Stdin, os.Stdout, os.Stderr))
	default:
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tutor <command> [args]")
	fmt.Fprintln(w, "  version                  - 显示版本")
	fmt.Fprintln(w, "  health                   - 查询服务健康状态（TUTOR_API_URL）")
	fmt.Fprintln(w, "  config                   - 显示配置概要")
	fmt.Fprintln(w, "  ask [flags] <question>   - 提问一次；--debug 输出调试信息，--local 进程内执行")
	fmt.Fprintln(w, "  chat [flags]             - 交互式对话，跨轮次沿用 session_id；exit/quit 退出")
}

func runHealth(stdout, stderr io.Writer) int {
	report, err := getHealth()
	if err != nil {
		fmt.Fprintf(stderr, "健康检查失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(report))
	if !report.Healthy() {
		return 1
	}
	return 0
}

func runConfig(stdout, stderr io.Writer) int {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "api.host=%s\n", cfg.API.Host)
	fmt.Fprintf(stdout, "api.port=%d\n", cfg.API.Port)
	fmt.Fprintf(stdout, "api.timeout=%s\n", cfg.API.Timeout)
	fmt.Fprintf(stdout, "api.auth=%t\n", cfg.API.Middleware.Auth)
	fmt.Fprintf(stdout, "api.grpc.enable=%t\n", cfg.API.Grpc.Enable)
	fmt.Fprintf(stdout, "router.margin=%g\n", cfg.Router.Margin)
	fmt.Fprintf(stdout, "router.threshold=%g\n", cfg.Router.Threshold)
	fmt.Fprintf(stdout, "router.delegate=%t\n", cfg.Router.Delegate)
	fmt.Fprintf(stdout, "agent.max_iterations=%d\n", cfg.Agent.MaxIterations)
	fmt.Fprintf(stdout, "session.store=%s\n", cfg.Session.Store)
	fmt.Fprintf(stdout, "session.history_limit=%d\n", cfg.Session.HistoryLimit)
	fmt.Fprintf(stdout, "model.provider=%s\n", cfg.Model.Provider)
	fmt.Fprintf(stdout, "model.name=%s\n", cfg.Model.Name)
	// api_key 仅显示是否已配置
	fmt.Fprintf(stdout, "model.api_key_set=%t\n", cfg.Model.APIKey != "")
	return 0
}

// asker 远程（HTTP）或进程内执行一次提问
type asker interface {
	ask(ctx context.Context, req askRequest) (*askResponse, error)
	close()
}

type remoteAsker struct{}

func (remoteAsker) ask(_ context.Context, req askRequest) (*askResponse, error) {
	return postQuery(req)
}

func (remoteAsker) close() {}

type localAsker struct {
	bootstrap *app.Bootstrap
	shutdown  func(context.Context) error
}

func newLocalAsker(ctx context.Context) (*localAsker, error) {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	// 未配置日志文件时只输出 error 级别
	if cfg.Log.File == "" {
		cfg.Log.Level = "error"
	}
	b, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		return nil, err
	}
	l := &localAsker{bootstrap: b}
	t := cfg.Monitoring.Tracing
	if t.Enable && t.ExportEndpoint != "" {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    t.ServiceName,
			ExportEndpoint: t.ExportEndpoint,
			Insecure:       t.Insecure,
		})
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("初始化链路追踪失败: %w", err)
		}
		l.shutdown = tp.Shutdown
	}
	return l, nil
}

func (l *localAsker) ask(ctx context.Context, req askRequest) (*askResponse, error) {
	q, err := orchestrator.Normalize(orchestrator.Query{
		Text:      req.Question,
		SessionID: req.SessionID,
		Debug:     req.Debug,
	})
	if err != nil {
		return nil, err
	}
	resp := l.bootstrap.Orchestrator.Handle(ctx, q)
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var out askResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *localAsker) close() {
	if l.shutdown != nil {
		_ = l.shutdown(context.Background())
	}
	_ = l.bootstrap.Close()
}

type askFlags struct {
	debug   bool
	local   bool
	session string
}

func parseAskFlags(name string, args []string, stderr io.Writer) (*askFlags, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &askFlags{}
	fs.BoolVar(&f.debug, "debug", false, "输出调试信息（状态流转、分类分数、工具调用）")
	fs.BoolVar(&f.local, "local", false, "不经 API，进程内执行")
	fs.StringVar(&f.session, "session", "", "沿用已有 session_id")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

func newAsker(ctx context.Context, local bool) (asker, error) {
	if local {
		return newLocalAsker(ctx)
	}
	return remoteAsker{}, nil
}

func runAsk(args []string, stdout, stderr io.Writer) int {
	f, rest, err := parseAskFlags("ask", args, stderr)
	if err != nil {
		return 2
	}
	question := strings.TrimSpace(strings.Join(rest, " "))
	if question == "" {
		fmt.Fprintln(stderr, "Usage: tutor ask [--debug] [--local] [--session id] <question>")
		return 2
	}
	ctx := context.Background()
	a, err := newAsker(ctx, f.local)
	if err != nil {
		fmt.Fprintf(stderr, "初始化失败: %v\n", err)
		return 1
	}
	defer a.close()

	resp, err := a.ask(ctx, askRequest{Question: question, SessionID: f.session, Debug: f.debug})
	if err != nil {
		fmt.Fprintf(stderr, "提问失败: %v\n", err)
		return 1
	}
	return printResponse(resp, f.debug, stdout, stderr)
}

// printResponse 输出回答；错误信封返回退出码 1
func printResponse(resp *askResponse, debug bool, stdout, stderr io.Writer) int {
	if resp.Error != nil {
		fmt.Fprintf(stderr, "error %s: %s (trace_id=%s, retry=%t)\n",
			resp.Error.Code, resp.Error.Message, resp.Error.TraceID, resp.Error.Retry)
		return 1
	}
	agentName := ""
	if resp.AgentDetails != nil {
		agentName = resp.AgentDetails.Name
	}
	fmt.Fprintf(stdout, "[%s] %s\n", agentName, resp.Answer)
	if debug && len(resp.DebugInfo) > 0 {
		var v any
		if err := json.Unmarshal(resp.DebugInfo, &v); err == nil {
			fmt.Fprintln(stdout, prettyJSON(v))
		}
	}
	return 0
}

func runChat(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	f, _, err := parseAskFlags("chat", args, stderr)
	if err != nil {
		return 2
	}
	ctx := context.Background()
	a, err := newAsker(ctx, f.local)
	if err != nil {
		fmt.Fprintf(stderr, "初始化失败: %v\n", err)
		return 1
	}
	defer a.close()

	sessionID := f.session
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		line, err := reader.ReadString('\n')
		msg := strings.TrimSpace(line)
		if msg == "exit" || msg == "quit" {
			break
		}
		if msg != "" {
			resp, askErr := a.ask(ctx, askRequest{Question: msg, SessionID: sessionID, Debug: f.debug})
			if askErr != nil {
				fmt.Fprintf(stderr, "发送失败: %v\n", askErr)
			} else {
				if resp.SessionID != "" {
					sessionID = resp.SessionID
				}
				printResponse(resp, f.debug, stdout, stderr)
			}
		}
		if err != nil {
			break
		}
	}
	if sessionID != "" {
		fmt.Fprintf(stdout, "session: %s\n", sessionID)
	}
	return 0
}
