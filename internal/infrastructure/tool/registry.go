package tool

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/repository"
	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
	"github.com/germinal-ai/germinal/internal/infrastructure/sandbox"
)

// ToolLayerDeps aggregates the external dependencies of the tool layer.
// This is the single configuration point for the entire tool subsystem.
type ToolLayerDeps struct {
	// Paths
	AllowedRead  []string
	AllowedWrite []string

	// Shell
	ShellAllowlist []string
	CommandTimeout time.Duration

	// Persistence
	Tasks repository.TaskRepository

	// Large-content side channel (nil = content tools not registered)
	Content *ContentStore

	// Notify transport (nil = stdout)
	NotifyOut io.Writer

	Logger *zap.Logger
}

// RegisterAllTools builds the full tool registry. This is the ONLY tool
// registration entry point: agent-specific subsets are filtered from this
// registry at dispatch time. Adding a new tool? Add it here.
func RegisterAllTools(deps ToolLayerDeps) *domaintool.Registry {
	readGuard := sandbox.NewPathGuard(deps.AllowedRead)
	writeGuard := sandbox.NewPathGuard(deps.AllowedWrite)
	shellRunner := sandbox.NewCommandRunner(deps.ShellAllowlist, deps.CommandTimeout, deps.Logger)
	gitRunner := sandbox.NewCommandRunner([]string{"git"}, deps.CommandTimeout, deps.Logger)
	testRunner := sandbox.NewCommandRunner([]string{"go"}, 5*time.Minute, deps.Logger)
	psRunner := sandbox.NewCommandRunner([]string{"ps"}, deps.CommandTimeout, deps.Logger)

	tools := []*domaintool.Tool{
		// ── Filesystem ──
		NewReadFileTool(readGuard),
		NewWriteFileTool(writeGuard),
		NewListDirectoryTool(readGuard),

		// ── Shell ──
		NewShellRunTool(shellRunner),
		NewRunTestsTool(testRunner),

		// ── Git ──
		NewGitStatusTool(gitRunner),
		NewGitAddTool(gitRunner),
		NewGitCommitTool(gitRunner),
		NewGitBranchTool(gitRunner),
		NewGitListBranchesTool(gitRunner),
		NewGitDiffTool(gitRunner),
		NewGitLogTool(gitRunner),
		NewGitRollbackTool(gitRunner),

		// ── Tasks ──
		NewReadTaskListTool(deps.Tasks),
		NewWriteTaskTool(deps.Tasks),

		// ── Notify ──
		NewNotifyUserTool(deps.NotifyOut, deps.Logger),

		// ── System ──
		NewShowOSTool(),
		NewShowHardwareTool(),
		NewShowPSTool(psRunner),
	}

	// ── Large-content access ──
	if deps.Content != nil {
		tools = append(tools,
			NewGetContentInfoTool(deps.Content),
			NewReadContentRangeTool(deps.Content),
			NewSearchContentTool(deps.Content),
		)
	}

	registry := domaintool.NewRegistry()
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			deps.Logger.Warn("Failed to register tool",
				zap.String("tool", t.Name),
				zap.Error(err),
			)
		}
	}
	deps.Logger.Info("Tool layer initialized", zap.Int("registered", len(registry.All())))
	return registry
}
