package tools

// NewBuiltinRegistry 注册全部内置工具（calculator、lookup），子 Agent 通过 Subset 取用
func NewBuiltinRegistry() *Registry {
	return NewRegistry(NewCalculator(), NewLookup())
}
