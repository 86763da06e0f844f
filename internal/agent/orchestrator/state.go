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

package orchestrator

import (
	"fmt"
	"time"
)

// State 单次查询的状态
type State int

const (
	StateReceived State = iota
	StateClassifying
	StateDelegated
	StateToolLoop
	StateResponding
	StateDone
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateClassifying:
		return "classifying"
	case StateDelegated:
		return "delegated"
	case StateToolLoop:
		return "tool_loop"
	case StateResponding:
		return "responding"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal Done 与 Errored 为终态
func (s State) Terminal() bool { return s == StateDone || s == StateErrored }

// MarshalText 以名称序列化
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// next 合法的前进迁移；Errored 可由任一非终态进入
var next = map[State]State{
	StateReceived:    StateClassifying,
	StateClassifying: StateDelegated,
	StateDelegated:   StateToolLoop,
	StateToolLoop:    StateResponding,
	StateResponding:  StateDone,
}

// Transition 一次状态迁移记录
type Transition struct {
	From      State   `json:"from"`
	To        State   `json:"to"`
	ElapsedMs float64 `json:"elapsed_ms"` // 自查询开始
	Reason    string  `json:"reason,omitempty"`
}

// machine 单次查询的状态机，不在 goroutine 间共享
type machine struct {
	state   State
	started time.Time
	history []Transition
	onMove  func(Transition)
}

func newMachine(onMove func(Transition)) *machine {
	return &machine{state: StateReceived, started: time.Now(), onMove: onMove}
}

func (m *machine) advance(to State, reason string) error {
	if m.state.Terminal() {
		return fmt.Errorf("query already finished in state %s", m.state)
	}
	if to != StateErrored && next[m.state] != to {
		return fmt.Errorf("illegal transition %s -> %s", m.state, to)
	}
	t := Transition{
		From:      m.state,
		To:        to,
		ElapsedMs: float64(time.Since(m.started).Microseconds()) / 1000,
		Reason:    reason,
	}
	m.state = to
	m.history = append(m.history, t)
	if m.onMove != nil {
		m.onMove(t)
	}
	return nil
}

// fail 进入 Errored；已是终态时忽略
func (m *machine) fail(reason string) {
	if m.state.Terminal() {
		return
	}
	_ = m.advance(StateErrored, reason)
}
