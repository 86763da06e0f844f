package orchestrator

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"tutor-platform/pkg/errors"
)

const (
	MaxQuestionLen = 1000
	AnonymousUser  = "anonymous"
)

// Normalize 校验并规范化入口参数：问题去首尾空白后 1..1000 字符，
// session_id/user_id 非空时须为 UUID，user_id 缺省为 anonymous。
// 失败返回 VALIDATION_ERROR，details.field 指出字段。
func Normalize(q Query) (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if n := utf8.RuneCountInString(q.Text); n == 0 || n > MaxQuestionLen {
		return q, invalid("question", "question must be between 1 and 1000 characters")
	}
	if q.SessionID != "" {
		if _, err := uuid.Parse(q.SessionID); err != nil {
			return q, invalid("session_id", "session_id must be a valid UUID")
		}
	}
	if q.UserID == "" {
		q.UserID = AnonymousUser
	} else if _, err := uuid.Parse(q.UserID); err != nil {
		return q, invalid("user_id", "user_id must be a valid UUID")
	}
	return q, nil
}

func invalid(field, msg string) error {
	return errors.New(errors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
