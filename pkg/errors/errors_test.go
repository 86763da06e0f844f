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
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil, msg) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrap(err, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err, msg) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "format %s", "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrapf(err, "step %d", 3)
	if wrapped.Error() != "step 3: base" {
		t.Errorf("Wrapf message = %q", wrapped.Error())
	}
}

func TestCodedError_RetryableDefaults(t *testing.T) {
	cases := []struct {
		code      Code
		retryable bool
		status    int
	}{
		{CodeClassificationUnavailable, true, http.StatusServiceUnavailable},
		{CodeUpstreamTimeout, true, http.StatusGatewayTimeout},
		{CodeUpstreamUnavailable, true, http.StatusServiceUnavailable},
		{CodeToolLoopExceeded, false, http.StatusUnprocessableEntity},
		{CodeUnknownTool, false, http.StatusInternalServerError},
		{CodeInvalidToolArguments, false, http.StatusUnprocessableEntity},
		{CodeValidation, false, http.StatusBadRequest},
	}
	for _, c := range cases {
		e := New(c.code, "")
		if e.Retryable != c.retryable {
			t.Errorf("%s retryable = %v, want %v", c.code, e.Retryable, c.retryable)
		}
		if e.Message == "" {
			t.Errorf("%s should carry a default message", c.code)
		}
		if got := HTTPStatus(c.code); got != c.status {
			t.Errorf("%s status = %d, want %d", c.code, got, c.status)
		}
	}
}

func TestAsError_UnwrapsThroughFmt(t *testing.T) {
	base := New(CodeDivisionByZero, "")
	err := fmt.Errorf("calculator: %w", base)
	if CodeOf(err) != CodeDivisionByZero {
		t.Fatalf("CodeOf = %s", CodeOf(err))
	}
	if !errors.Is(err, New(CodeDivisionByZero, "other message")) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, New(CodeNotFound, "")) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestAsError_ContextErrors(t *testing.T) {
	if CodeOf(context.Canceled) != CodeCancelled {
		t.Errorf("canceled -> %s", CodeOf(context.Canceled))
	}
	if CodeOf(context.DeadlineExceeded) != CodeUpstreamTimeout {
		t.Errorf("deadline -> %s", CodeOf(context.DeadlineExceeded))
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be retryable")
	}
	if CodeOf(errors.New("boom")) != CodeInternal {
		t.Error("plain error should map to INTERNAL_ERROR")
	}
	if CodeOf(nil) != "" || IsRetryable(nil) {
		t.Error("nil error should have no code")
	}
}

func TestWithCode_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := WithCode(cause, CodeUpstreamUnavailable, "")
	if !errors.Is(err, cause) {
		t.Error("WithCode should keep the cause in the chain")
	}
	if AsError(err).Message == cause.Error() {
		t.Error("public message must not expose the cause")
	}
	if WithCode(nil, CodeInternal, "") != nil {
		t.Error("WithCode(nil) should be nil")
	}
}

func TestWithDetails_Copies(t *testing.T) {
	e := New(CodeNotFound, "no such constant")
	d := e.WithDetails(map[string]any{"suggestions": []string{"c"}})
	if e.Details != nil {
		t.Error("WithDetails must not mutate the receiver")
	}
	if d.Details["suggestions"] == nil {
		t.Error("details missing")
	}
}
