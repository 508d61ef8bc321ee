package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/germinal-ai/germinal/internal/domain/tool"
)

const basePromptTemplate = `You are an autonomous agent with a set of tools available to assist you with helping the user.

ENVIRONMENT INFORMATION:
- Current working directory: %s
- Data directory: %s
- Operating System: %s (%s)
- Runtime: %s

RULES:
- You may only take actions by invoking tools via the tool_call field of your response.
- Think through the task step by step before acting.
- Never fabricate file contents or command results. Use tools to get real data.
- Stop when the task is complete or no further tool calls are useful.
- One tool call per response. After each result is returned you may reason and
  emit the next call.
- Do no harm to humans or the operating environment where you are running.

RESPONSE FORMAT:
Every response must be a JSON object with exactly these fields:
  - "reasoning": your reply to the user (required). When you are about to call a
    tool, briefly explain what you are doing here. When no tool call is needed,
    this is your final answer — write it as if speaking directly to the user.
  - "tool_call": the tool to invoke next, or null when no tool is needed (optional)

A tool_call has the form:
  {"tool": "<tool_name>", "parameters": {<json parameters>}}

When your task is complete or no tool is needed, set tool_call to null and write
your response to the user in reasoning. The user will see exactly what you write there.
`

// BuildSystemPrompt assembles the system prompt: base rules plus the tool
// catalogue as JSON. Exact parameter names and types matter — prose
// descriptions alone are not enough for reliable structured output from
// smaller models.
func BuildSystemPrompt(defs []tool.Definition) string {
	cwd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "germinal")
	hostname, _ := os.Hostname()

	base := fmt.Sprintf(basePromptTemplate,
		cwd,
		dataDir,
		runtime.GOOS+"/"+runtime.GOARCH,
		hostname,
		runtime.Version(),
	)

	catalogue, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		catalogue = []byte("[]")
	}
	return base + "\nAVAILABLE TOOLS:\n" + string(catalogue) + "\n"
}
