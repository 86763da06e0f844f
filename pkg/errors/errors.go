// Package errors 提供统一错误辅助与对外错误码分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// ErrNotFound 资源不存在（如会话存储未命中）
var ErrNotFound = errors.New("not found")

// Wrap 包装错误并附加上下文
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 格式化包装错误
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is 透传标准库 errors.Is，便于调用方只引入本包
func Is(err, target error) bool { return errors.Is(err, target) }

// As 透传标准库 errors.As
func As(err error, target any) bool { return errors.As(err, target) }
