package tools

// Constant 物理常数
type Constant struct {
	Key         string
	Name        string
	Value       float64
	Unit        string
	Description string
	Aliases     []string
}

// Formula 物理公式
type Formula struct {
	Key         string
	Name        string
	Expression  string
	Description string
	Variables   map[string]string
	Aliases     []string
}

// Constants 内置常数表（CODATA 2018）
var Constants = []Constant{
	{Key: "g", Name: "acceleration due to gravity", Value: 9.81, Unit: "m/s²",
		Description: "Standard acceleration due to gravity near Earth's surface",
		Aliases:     []string{"gravity", "standard gravity", "gravitational acceleration"}},
	{Key: "c", Name: "speed of light", Value: 299792458, Unit: "m/s",
		Description: "Speed of light in vacuum",
		Aliases:     []string{"speed of light in vacuum", "light speed"}},
	{Key: "G", Name: "gravitational constant", Value: 6.67430e-11, Unit: "m³/(kg·s²)",
		Description: "Newtonian constant of gravitation",
		Aliases:     []string{"universal gravitational constant", "newtonian constant of gravitation"}},
	{Key: "h", Name: "planck constant", Value: 6.62607015e-34, Unit: "J·s",
		Description: "Planck constant",
		Aliases:     []string{"planck's constant"}},
	{Key: "e", Name: "elementary charge", Value: 1.602176634e-19, Unit: "C",
		Description: "Elementary charge",
		Aliases:     []string{"electron charge", "charge of an electron"}},
	{Key: "me", Name: "electron mass", Value: 9.1093837015e-31, Unit: "kg",
		Description: "Electron rest mass",
		Aliases:     []string{"mass of electron", "mass of an electron"}},
	{Key: "mp", Name: "proton mass", Value: 1.67262192369e-27, Unit: "kg",
		Description: "Proton rest mass",
		Aliases:     []string{"mass of proton", "mass of a proton"}},
	{Key: "k", Name: "boltzmann constant", Value: 1.380649e-23, Unit: "J/K",
		Description: "Boltzmann constant",
		Aliases:     []string{"boltzmann's constant"}},
	{Key: "NA", Name: "avogadro constant", Value: 6.02214076e23, Unit: "mol⁻¹",
		Description: "Avogadro constant",
		Aliases:     []string{"avogadro's number", "avogadro number"}},
	{Key: "R", Name: "gas constant", Value: 8.31446261815324, Unit: "J/(mol·K)",
		Description: "Molar gas constant",
		Aliases:     []string{"ideal gas constant", "universal gas constant"}},
}

// Formulas 内置公式表
var Formulas = []Formula{
	{Key: "newton_second_law", Name: "newton's second law", Expression: "F = m·a",
		Description: "Force equals mass times acceleration",
		Variables:   map[string]string{"F": "Force (N)", "m": "Mass (kg)", "a": "Acceleration (m/s²)"},
		Aliases:     []string{"second law of motion", "force"}},
	{Key: "kinetic_energy", Name: "kinetic energy", Expression: "KE = 0.5·m·v²",
		Description: "The energy of motion",
		Variables:   map[string]string{"KE": "Kinetic energy (J)", "m": "Mass (kg)", "v": "Velocity (m/s)"}},
	{Key: "potential_energy_gravitational", Name: "gravitational potential energy", Expression: "PE = m·g·h",
		Description: "Energy due to position in a gravitational field",
		Variables:   map[string]string{"PE": "Potential energy (J)", "m": "Mass (kg)", "g": "Gravitational acceleration (m/s²)", "h": "Height (m)"},
		Aliases:     []string{"potential energy"}},
	{Key: "momentum", Name: "momentum", Expression: "p = m·v",
		Description: "Product of mass and velocity",
		Variables:   map[string]string{"p": "Momentum (kg·m/s)", "m": "Mass (kg)", "v": "Velocity (m/s)"}},
	{Key: "uniform_acceleration", Name: "velocity with uniform acceleration", Expression: "v = v₀ + a·t",
		Description: "Final velocity under constant acceleration",
		Variables:   map[string]string{"v": "Final velocity (m/s)", "v₀": "Initial velocity (m/s)", "a": "Acceleration (m/s²)", "t": "Time (s)"},
		Aliases:     []string{"uniform acceleration"}},
	{Key: "uniform_acceleration_distance", Name: "distance with uniform acceleration", Expression: "d = v₀·t + 0.5·a·t²",
		Description: "Distance travelled under constant acceleration",
		Variables:   map[string]string{"d": "Distance (m)", "v₀": "Initial velocity (m/s)", "a": "Acceleration (m/s²)", "t": "Time (s)"},
		Aliases:     []string{"distance with acceleration"}},
	{Key: "work", Name: "work", Expression: "W = F·d·cos(θ)",
		Description: "Work done by a constant force",
		Variables:   map[string]string{"W": "Work (J)", "F": "Force (N)", "d": "Distance (m)", "θ": "Angle between force and displacement (rad)"}},
	{Key: "power", Name: "power", Expression: "P = W/t",
		Description: "Rate of doing work",
		Variables:   map[string]string{"P": "Power (W)", "W": "Work (J)", "t": "Time (s)"}},
	{Key: "ohms_law", Name: "ohm's law", Expression: "V = I·R",
		Description: "Relationship between voltage, current and resistance",
		Variables:   map[string]string{"V": "Voltage (V)", "I": "Current (A)", "R": "Resistance (Ω)"}},
	{Key: "universal_gravitation", Name: "universal gravitation", Expression: "F = G·(m₁·m₂)/r²",
		Description: "Newton's law of universal gravitation",
		Variables:   map[string]string{"F": "Force (N)", "G": "Gravitational constant (m³/(kg·s²))", "m₁": "Mass 1 (kg)", "m₂": "Mass 2 (kg)", "r": "Distance between centers (m)"},
		Aliases:     []string{"newton's law of gravitation", "law of gravitation"}},
}
