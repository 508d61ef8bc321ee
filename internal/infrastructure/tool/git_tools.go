package tool

import (
	"context"
	"fmt"
	"strconv"

	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
	"github.com/germinal-ai/germinal/internal/infrastructure/sandbox"
)

// Git tools. Each wraps a fixed git subcommand; only narrowly-typed
// arguments flow through. git_rollback is the one high-risk member — it
// rewrites the working tree.

func runGit(runner *sandbox.CommandRunner, args ...string) (map[string]interface{}, error) {
	result, err := runner.Run(context.Background(), append([]string{"git"}, args...))
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("git %s failed (exit %d): %s", args[0], result.ExitCode, result.Stderr)
	}
	return map[string]interface{}{
		"output":    result.Stdout,
		"exit_code": result.ExitCode,
	}, nil
}

func noParamsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{},
		"additionalProperties": false,
	}
}

// NewGitStatusTool 创建 git_status 工具
func NewGitStatusTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"git_status",
		"Show the working tree status in short format.",
		noParamsSchema(),
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			return runGit(runner, "status", "--short", "--branch")
		},
	)
}

// NewGitAddTool 创建 git_add 工具
func NewGitAddTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"git_add",
		"Stage one or more paths for the next commit.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"minItems":    1,
					"description": "Paths to stage.",
				},
			},
			"required":             []string{"paths"},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			raw, _ := params["paths"].([]interface{})
			args := []string{"add", "--"}
			for _, p := range raw {
				if s, ok := p.(string); ok {
					args = append(args, s)
				}
			}
			return runGit(runner, args...)
		},
	)
}

// NewGitCommitTool 创建 git_commit 工具
func NewGitCommitTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"git_commit",
		"Create a commit from the staged changes with the given message.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"minLength":   1,
					"description": "Commit message.",
				},
			},
			"required":             []string{"message"},
			"additionalProperties": false,
		},
		domaintool.RiskMedium,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			message, _ := params["message"].(string)
			return runGit(runner, "commit", "-m", message)
		},
	)
}

// NewGitBranchTool 创建 git_branch 工具
func NewGitBranchTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"git_branch",
		"Create a new branch and switch to it.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"minLength":   1,
					"description": "Name of the branch to create.",
				},
			},
			"required":             []string{"name"},
			"additionalProperties": false,
		},
		domaintool.RiskMedium,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			name, _ := params["name"].(string)
			return runGit(runner, "checkout", "-b", name)
		},
	)
}

// NewGitListBranchesTool 创建 git_list_branches 工具
func NewGitListBranchesTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"git_list_branches",
		"List local branches; the current branch is marked with an asterisk.",
		noParamsSchema(),
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			return runGit(runner, "branch", "--list")
		},
	)
}

// NewGitDiffTool 创建 git_diff 工具
func NewGitDiffTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"git_diff",
		"Show unstaged changes, or changes against a ref when provided.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ref": map[string]interface{}{
					"type":        "string",
					"description": "Optional ref to diff against (e.g. HEAD~1).",
				},
			},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			if ref, ok := params["ref"].(string); ok && ref != "" {
				return runGit(runner, "diff", ref)
			}
			return runGit(runner, "diff")
		},
	)
}

// NewGitLogTool 创建 git_log 工具
func NewGitLogTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"git_log",
		"Show recent commit history, one line per commit.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     100,
					"description": "Number of commits to show. Default 10.",
				},
			},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			limit := 10
			if n, ok := params["limit"].(float64); ok {
				limit = int(n)
			}
			return runGit(runner, "log", "--oneline", "-n", strconv.Itoa(limit))
		},
	)
}

// NewGitRollbackTool 创建 git_rollback 工具
func NewGitRollbackTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"git_rollback",
		"Hard-reset the working tree to the given ref. Discards uncommitted changes.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ref": map[string]interface{}{
					"type":        "string",
					"minLength":   1,
					"description": "Ref to reset to (e.g. HEAD~1 or a commit hash).",
				},
			},
			"required":             []string{"ref"},
			"additionalProperties": false,
		},
		domaintool.RiskHigh,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			ref, _ := params["ref"].(string)
			return runGit(runner, "reset", "--hard", ref)
		},
	)
}
