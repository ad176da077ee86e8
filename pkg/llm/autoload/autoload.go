// Package autoload registers every built-in reasoning engine provider.
package autoload

import (
	_ "plutus/pkg/llm/gemini"
	_ "plutus/pkg/llm/ollama"
	_ "plutus/pkg/llm/openailm"
)
