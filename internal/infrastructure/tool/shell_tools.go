package tool

import (
	"context"
	"fmt"

	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
	"github.com/germinal-ai/germinal/internal/infrastructure/sandbox"
)

// NewShellRunTool 创建 shell_run 工具
//
// The command is tokenised and executed directly — never through a shell
// interpreter — and the executable must be on the configured allowlist.
func NewShellRunTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"shell_run",
		"Run an allowlisted command and return its stdout, stderr, and exit code. "+
			"Commands run without a shell: no pipes, globs, or redirection. "+
			"Provide either a command string (split on whitespace) or an explicit argv array.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Command line, split on whitespace. Ignored when argv is provided.",
				},
				"argv": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Explicit argument vector. Takes precedence over command.",
				},
			},
			"additionalProperties": false,
		},
		domaintool.RiskHigh,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			argv := argvFromParams(params)
			if len(argv) == 0 {
				return nil, fmt.Errorf("either command or argv is required")
			}
			result, err := runner.Run(context.Background(), argv)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"stdout":    result.Stdout,
				"stderr":    result.Stderr,
				"exit_code": result.ExitCode,
				"killed":    result.Killed,
			}, nil
		},
	)
}

// NewRunTestsTool 创建 run_tests 工具
//
// Runs the project test suite with a fixed argv; the package path is the
// only caller-controlled part and is passed as a single argument.
func NewRunTestsTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"run_tests",
		"Run the Go test suite. Optionally restrict to a package path pattern like ./internal/...",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"package": map[string]interface{}{
					"type":        "string",
					"description": "Package pattern to test. Defaults to ./...",
				},
			},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			pkg, _ := params["package"].(string)
			if pkg == "" {
				pkg = "./..."
			}
			result, err := runner.Run(context.Background(), []string{"go", "test", pkg})
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"output":    result.Stdout + result.Stderr,
				"exit_code": result.ExitCode,
				"passed":    result.ExitCode == 0,
			}, nil
		},
	)
}

func argvFromParams(params map[string]interface{}) []string {
	if raw, ok := params["argv"].([]interface{}); ok && len(raw) > 0 {
		argv := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				argv = append(argv, s)
			}
		}
		return argv
	}
	if command, ok := params["command"].(string); ok {
		return sandbox.SplitCommand(command)
	}
	return nil
}
