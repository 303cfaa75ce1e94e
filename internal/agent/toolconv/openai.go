// Package toolconv converts agent tool definitions into the wire shapes
// LLM runtimes expect. Ollama's /api/chat consumes OpenAI-style function
// definitions, so that is the one conversion implemented here.
package toolconv

import (
	"encoding/json"

	"github.com/nexuscore/agentcore/internal/agent"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAITools maps each tool to an OpenAI function definition. A schema
// that fails to decode degrades to an empty object schema rather than
// dropping the tool.
func ToOpenAITools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema(), &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaMap,
			},
		}
	}
	return result
}
