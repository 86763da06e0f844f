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

package tools

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"tutor-platform/pkg/errors"
)

// LookupName 常数/公式查询工具名
const LookupName = "lookup"

const (
	kindConstant = "constant"
	kindFormula  = "formula"

	maxSuggestions = 3
)

type entry struct {
	kind     string
	constant *Constant
	formula  *Formula
}

func (e entry) value() map[string]any {
	if e.constant != nil {
		c := e.constant
		return map[string]any{
			"kind":        kindConstant,
			"key":         c.Key,
			"name":        c.Name,
			"value":       c.Value,
			"formatted":   FormatNumber(c.Value),
			"unit":        c.Unit,
			"description": c.Description,
		}
	}
	f := e.formula
	vars := make(map[string]any, len(f.Variables))
	for k, v := range f.Variables {
		vars[k] = v
	}
	return map[string]any{
		"kind":        kindFormula,
		"key":         f.Key,
		"name":        f.Name,
		"formula":     f.Expression,
		"description": f.Description,
		"variables":   vars,
	}
}

type index struct {
	exact      map[string]entry
	normalized map[string]entry
	candidates []string // 用于编辑距离建议的展示名
}

func newIndex() *index {
	return &index{exact: make(map[string]entry), normalized: make(map[string]entry)}
}

// add 先注册者优先：大小写不同的 g/G 在规范化后冲突时保留 g
func (ix *index) add(e entry, names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := ix.exact[n]; !ok {
			ix.exact[n] = e
			ix.candidates = append(ix.candidates, n)
		}
		if _, ok := ix.normalized[normalizeName(n)]; !ok {
			ix.normalized[normalizeName(n)] = e
		}
	}
}

// Lookup 静态常数与公式查询：先精确匹配，再规范化匹配，失败给出最近名称
type Lookup struct {
	byKind map[string]*index
}

// NewLookup 使用内置常数与公式表创建查询工具
func NewLookup() *Lookup {
	return NewLookupWith(Constants, Formulas)
}

// NewLookupWith 使用指定表创建查询工具
func NewLookupWith(constants []Constant, formulas []Formula) *Lookup {
	l := &Lookup{byKind: map[string]*index{kindConstant: newIndex(), kindFormula: newIndex()}}
	for i := range constants {
		c := &constants[i]
		l.byKind[kindConstant].add(entry{kind: kindConstant, constant: c}, append([]string{c.Key, c.Name}, c.Aliases...)...)
	}
	for i := range formulas {
		f := &formulas[i]
		l.byKind[kindFormula].add(entry{kind: kindFormula, formula: f}, append([]string{f.Key, f.Name}, f.Aliases...)...)
	}
	return l
}

func (l *Lookup) Name() string { return LookupName }

func (l *Lookup) Description() string {
	return "Look up a physical constant (value and unit) or a physics formula by name, e.g. \"speed of light\" or \"kinetic energy\"."
}

func (l *Lookup) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"name": {Type: KindString, Description: "Constant or formula name, symbol or key"},
			"kind": {Type: KindString, Description: "Restrict the search", Enum: []string{kindConstant, kindFormula}},
		},
		Required: []string{"name"},
	}
}

func (l *Lookup) Execute(ctx context.Context, args map[string]any) (any, error) {
	name, _ := args["name"].(string)
	kind, _ := args["kind"].(string)
	e, err := l.find(name, kind)
	if err != nil {
		return nil, err
	}
	return e.value(), nil
}

// find 解析名称；kind 为空时先常数后公式
func (l *Lookup) find(name, kind string) (entry, error) {
	kinds := []string{kindConstant, kindFormula}
	if kind != "" {
		kinds = []string{kind}
	}
	trimmed := strings.TrimSpace(name)
	for _, k := range kinds {
		if e, ok := l.byKind[k].exact[trimmed]; ok {
			return e, nil
		}
	}
	norm := normalizeName(trimmed)
	for _, k := range kinds {
		if e, ok := l.byKind[k].normalized[norm]; ok {
			return e, nil
		}
	}

	suggestions := l.suggest(norm, kinds)
	return entry{}, errors.Newf(errors.CodeNotFound, "no constant or formula named %q", trimmed).
		WithDetails(map[string]any{"suggestions": suggestions})
}

func (l *Lookup) suggest(norm string, kinds []string) []string {
	type scored struct {
		name string
		dist int
	}
	seen := make(map[string]bool)
	var all []scored
	for _, k := range kinds {
		for _, c := range l.byKind[k].candidates {
			if seen[c] {
				continue
			}
			seen[c] = true
			all = append(all, scored{name: c, dist: levenshtein(norm, normalizeName(c))})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].name < all[j].name
	})
	out := make([]string, 0, maxSuggestions)
	for i := 0; i < len(all) && i < maxSuggestions; i++ {
		out = append(out, all[i].name)
	}
	return out
}

// normalizeName 小写并去掉空白、下划线、连字符与撇号
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || r == '_' || r == '-' || r == '\'' || r == '’' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
