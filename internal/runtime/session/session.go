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

package session

import (
	"time"

	"github.com/google/uuid"
)

// Turn 一轮成功的问答，写入后不可变
type Turn struct {
	QueryText  string    `json:"query_text" bson:"query_text"`
	AnswerText string    `json:"answer_text" bson:"answer_text"`
	AgentName  string    `json:"agent_name" bson:"agent_name"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// Session 会话：只追加的问答历史
type Session struct {
	ID           string    `json:"session_id" bson:"_id"`
	History      []Turn    `json:"history" bson:"history"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	LastActiveAt time.Time `json:"last_active_at" bson:"last_active_at"`
}

// New 创建空会话；id 为空时生成 UUID
func New(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	return &Session{ID: id, CreatedAt: now, LastActiveAt: now}
}

// Recent 返回最近 n 轮（按时间正序）的副本；n <= 0 返回全部
func (s *Session) Recent(n int) []Turn {
	h := s.History
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]Turn(nil), h...)
}

// Clone 深拷贝，存储层读写时使用，避免调用方改动共享状态
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.History = append([]Turn(nil), s.History...)
	return &cp
}

func (s *Session) append(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	s.History = append(s.History, t)
	s.LastActiveAt = t.Timestamp
}
