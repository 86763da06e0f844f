package router

import (
	"regexp"

	"tutor-platform/internal/agent"
)

// Domain 一个可路由子 Agent 的词法领域定义
type Domain struct {
	Agent    agent.Kind
	Keywords []string         // 小写单词，按整词匹配（允许复数 s/es）
	Patterns []*regexp.Regexp // 每个命中的模式计一次
}

var mathKeywords = []string{
	"math", "mathematics", "algebra", "calculus", "geometry", "trigonometry",
	"equation", "solve", "simplify", "factor", "expand", "derivative", "integral",
	"function", "graph", "polynomial", "matrix", "logarithm", "exponent",
	"sin", "cos", "tan", "calculate", "compute", "computation", "arithmetic", "number",
	"theorem", "proof", "expression", "variable", "coefficient",
	"quadratic", "linear", "inequality", "fraction", "decimal", "percentage",
	"sum", "product", "quotient", "root", "prime",
}

var physicsKeywords = []string{
	"physics", "mechanics", "dynamics", "kinematics", "force", "energy", "momentum",
	"gravity", "acceleration", "velocity", "displacement", "motion", "newton",
	"thermodynamics", "heat", "temperature", "pressure", "gas",
	"electromagnetism", "electric", "magnetic", "field", "charge", "current",
	"voltage", "resistance", "circuit", "wave", "optics", "light", "reflection",
	"refraction", "quantum", "relativity", "nuclear", "atom", "particle",
	"conservation", "friction", "fluid", "density", "oscillation",
	"mass", "speed", "planck", "boltzmann", "avogadro", "ohm", "electron", "proton",
}

var (
	arithmeticPattern   = regexp.MustCompile(`\d\s*[-+*/^×÷]\s*[-(]?\s*\d`)
	wordOperatorPattern = regexp.MustCompile(`\d+(\.\d+)?\s+(plus|minus|times|over|divided by|multiplied by|to the power of)\s+\d`)
	powerWordPattern    = regexp.MustCompile(`\d+(\.\d+)?\s+(squared|cubed)\b|square root`)
	unitPattern         = regexp.MustCompile(`\d+(\.\d+)?\s*(m/s²|m/s\^2|m/s|km/h|kg|newtons?|joules?|watts?|volts?|amps?|hz|kelvin)\b`)
	namedLawPattern     = regexp.MustCompile(`speed of light|newton'?s (first|second|third) law|law of (gravitation|motion)|ohm'?s law`)
)

// DefaultDomains math 与 physics 的词法领域；general 无领域信号，只作回落
func DefaultDomains() []Domain {
	return []Domain{
		{
			Agent:    agent.KindMath,
			Keywords: mathKeywords,
			Patterns: []*regexp.Regexp{arithmeticPattern, wordOperatorPattern, powerWordPattern},
		},
		{
			Agent:    agent.KindPhysics,
			Keywords: physicsKeywords,
			Patterns: []*regexp.Regexp{unitPattern, namedLawPattern},
		},
	}
}
