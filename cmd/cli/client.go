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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"tutor-platform/internal/agent/orchestrator"
)

func apiBaseURL() string {
	if u := os.Getenv("TUTOR_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(150 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token := os.Getenv("TUTOR_API_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Debug     bool   `json:"debug,omitempty"`
}

// askResponse 响应信封；debug_info 原样保留用于打印
type askResponse struct {
	RequestID    string                     `json:"request_id"`
	SessionID    string                     `json:"session_id"`
	Answer       string                     `json:"answer"`
	AgentDetails *orchestrator.AgentDetails `json:"agent_details"`
	DebugInfo    json.RawMessage            `json:"debug_info"`
	Error        *orchestrator.ErrorInfo    `json:"error"`
}

// postQuery 错误信封同样解码返回，仅传输失败或非 JSON 响应返回 error
func postQuery(req askRequest) (*askResponse, error) {
	var out askResponse
	resp, err := newClient().R().
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/api/query")
	if err != nil {
		return nil, err
	}
	if out.RequestID == "" && out.Error == nil {
		return nil, fmt.Errorf("POST /api/query: HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}

func getHealth() (*orchestrator.HealthReport, error) {
	var out orchestrator.HealthReport
	resp, err := newClient().R().
		SetResult(&out).
		SetError(&out).
		Get("/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusServiceUnavailable {
		return nil, fmt.Errorf("GET /health: %s", resp.String())
	}
	return &out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
