package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"tutor-platform/pkg/errors"
)

// Kind 参数值类型
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

// Property 单个参数声明
type Property struct {
	Type        Kind
	Description string
	Enum        []string // 仅 string 生效
}

// Schema 工具参数声明：必填键与值类型；未声明的键忽略
type Schema struct {
	Properties map[string]Property
	Required   []string
}

// Validate 校验参数，失败返回 INVALID_TOOL_ARGUMENTS
func (s Schema) Validate(args map[string]any) error {
	for _, key := range s.Required {
		v, ok := args[key]
		if !ok || v == nil {
			return invalidArgs(key, "missing required argument")
		}
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		prop, declared := s.Properties[key]
		if !declared {
			continue
		}
		v := args[key]
		if v == nil {
			continue
		}
		if !matchesKind(prop.Type, v) {
			return invalidArgs(key, fmt.Sprintf("expected %s, got %T", prop.Type, v))
		}
		if prop.Type == KindString && len(prop.Enum) > 0 && !contains(prop.Enum, v.(string)) {
			return invalidArgs(key, fmt.Sprintf("must be one of %v", prop.Enum))
		}
	}
	return nil
}

// JSONSchema 转为 JSON Schema（object），供模型 function declaration 使用
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = append([]string(nil), s.Required...)
	}
	return out
}

func matchesKind(k Kind, v any) bool {
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindNumber:
		_, ok := toFloat(v)
		return ok
	case KindInteger:
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func invalidArgs(field, reason string) error {
	return errors.Newf(errors.CodeInvalidToolArguments, "invalid argument %q: %s", field, reason).
		WithDetails(map[string]any{"field": field, "reason": reason})
}
