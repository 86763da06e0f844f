package rules

import (
	"regexp"
	"strings"
)

// 运算词替换顺序有关：多词短语在前
var operatorWords = []struct {
	re  *regexp.Regexp
	sym string
}{
	{regexp.MustCompile(`\bmultiplied\s+by\b`), " * "},
	{regexp.MustCompile(`\bdivided\s+by\b`), " / "},
	{regexp.MustCompile(`\bto\s+the\s+power\s+of\b`), " ^ "},
	{regexp.MustCompile(`\bplus\b`), " + "},
	{regexp.MustCompile(`\bminus\b`), " - "},
	{regexp.MustCompile(`\btimes\b`), " * "},
	{regexp.MustCompile(`\bover\b`), " / "},
	{regexp.MustCompile(`\bsquared\b`), " ^ 2"},
	{regexp.MustCompile(`\bcubed\b`), " ^ 3"},
	{regexp.MustCompile(`×`), " * "},
	{regexp.MustCompile(`÷`), " / "},
}

var (
	candidatePattern = regexp.MustCompile(`[(\-]*\d[\d\s.+\-*/^()]*`)
	binaryOpPattern  = regexp.MustCompile(`[\d)]\s*(\*\*|[+\-*/^])\s*[\d(\-]`)
)

// ExtractExpression 从自然语言问题中抽取算术表达式；找不到返回空串
func ExtractExpression(question string) string {
	s := strings.ToLower(question)
	for _, w := range operatorWords {
		s = w.re.ReplaceAllString(s, w.sym)
	}
	best := ""
	for _, c := range candidatePattern.FindAllString(s, -1) {
		c = strings.TrimRight(strings.TrimSpace(c), "+-*/^( ")
		c = strings.Join(strings.Fields(c), " ")
		if !binaryOpPattern.MatchString(c) {
			continue
		}
		if len(c) > len(best) {
			best = c
		}
	}
	return balance(best)
}

// balance 去掉多余的右括号（常见于 "(... 12*(3+4))?" 之类的标点残留）
func balance(expr string) string {
	depth := 0
	var b strings.Builder
	for _, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				continue
			}
			depth--
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

type reference struct {
	re   *regexp.Regexp
	not  *regexp.Regexp
	name string
	kind string
}

// 先常数后公式，与 lookup 工具的默认查找顺序一致
var references = []reference{
	{re: regexp.MustCompile(`acceleration\s+due\s+to\s+gravity|gravitational\s+acceleration`), name: "g", kind: "constant"},
	{re: regexp.MustCompile(`speed\s+of\s+light|light\s+speed`), name: "c", kind: "constant"},
	{re: regexp.MustCompile(`gravitational\s+constant`), name: "G", kind: "constant"},
	{re: regexp.MustCompile(`planck'?s?\s+constant`), name: "h", kind: "constant"},
	{re: regexp.MustCompile(`elementary\s+charge|charge\s+of\s+an?\s+electron`), name: "e", kind: "constant"},
	{re: regexp.MustCompile(`electron\s+mass|mass\s+of\s+an?\s+electron`), name: "me", kind: "constant"},
	{re: regexp.MustCompile(`proton\s+mass|mass\s+of\s+a\s+proton`), name: "mp", kind: "constant"},
	{re: regexp.MustCompile(`boltzmann'?s?\s+constant`), name: "k", kind: "constant"},
	{re: regexp.MustCompile(`avogadro'?s?\s+(number|constant)`), name: "NA", kind: "constant"},
	{re: regexp.MustCompile(`gas\s+constant`), name: "R", kind: "constant"},

	{re: regexp.MustCompile(`newton'?s?\s+second\s+law|second\s+law\s+of\s+motion`), name: "newton_second_law", kind: "formula"},
	{re: regexp.MustCompile(`kinetic\s+energy`), name: "kinetic_energy", kind: "formula"},
	{re: regexp.MustCompile(`potential\s+energy`), name: "potential_energy_gravitational", kind: "formula"},
	{re: regexp.MustCompile(`\bmomentum\b`), name: "momentum", kind: "formula"},
	{re: regexp.MustCompile(`distance\s+(with|under)\s+(uniform\s+)?acceleration`), name: "uniform_acceleration_distance", kind: "formula"},
	{re: regexp.MustCompile(`uniform\s+acceleration`), not: regexp.MustCompile(`distance`), name: "uniform_acceleration", kind: "formula"},
	{re: regexp.MustCompile(`ohm'?s?\s+law`), name: "ohms_law", kind: "formula"},
	{re: regexp.MustCompile(`universal\s+gravitation|gravitational\s+force|law\s+of\s+gravitation`), name: "universal_gravitation", kind: "formula"},
	{re: regexp.MustCompile(`\bwork\b`), not: regexp.MustCompile(`\bpower\b`), name: "work", kind: "formula"},
	{re: regexp.MustCompile(`\bpower\b`), not: regexp.MustCompile(`to\s+the\s+power`), name: "power", kind: "formula"},
}

// ExtractReference 从问题中识别常数或公式名；ok=false 表示未识别
func ExtractReference(question string) (name, kind string, ok bool) {
	s := strings.ToLower(question)
	for _, r := range references {
		if !r.re.MatchString(s) {
			continue
		}
		if r.not != nil && r.not.MatchString(s) {
			continue
		}
		return r.name, r.kind, true
	}
	return "", "", false
}
