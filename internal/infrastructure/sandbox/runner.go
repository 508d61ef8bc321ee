package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CommandRunner executes external commands under an executable-name
// allowlist.
//
// Commands are run directly via exec — never through a shell interpreter, so
// there is no quoting, globbing, or command substitution to escape. Timeouts
// are mandatory; a command without a deadline is a contract violation.
type CommandRunner struct {
	allowlist map[string]bool
	timeout   time.Duration
	logger    *zap.Logger
}

// RunResult 命令执行结果
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Killed   bool // 是否被超时杀死
}

// NewCommandRunner 创建命令执行器
func NewCommandRunner(allowlist []string, timeout time.Duration, logger *zap.Logger) *CommandRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	allowed := make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		allowed[name] = true
	}
	return &CommandRunner{
		allowlist: allowed,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "command-runner")),
	}
}

// Allowed reports whether the executable name is on the allowlist.
// The check uses the basename so "/usr/bin/ls" and "ls" agree.
func (r *CommandRunner) Allowed(executable string) bool {
	return r.allowlist[filepath.Base(executable)]
}

// Run executes argv[0] with argv[1:] and captures output.
func (r *CommandRunner) Run(ctx context.Context, argv []string) (*RunResult, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if !r.Allowed(argv[0]) {
		return nil, fmt.Errorf("command %q is not in the allowlist", argv[0])
	}

	cmdPath, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("command not found: %s", argv[0])
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(execCtx, cmdPath, argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := &RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		Killed:   execCtx.Err() == context.DeadlineExceeded,
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else if !result.Killed {
			return nil, fmt.Errorf("run %s: %w", argv[0], runErr)
		}
	}
	if result.Killed {
		result.ExitCode = -1
	}

	r.logger.Debug("Command finished",
		zap.String("command", argv[0]),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Bool("killed", result.Killed),
	)
	return result, nil
}

// SplitCommand turns a simply-split command string into argv. Tools accept
// either a tokenised argv or a plain string; this is deliberately naive —
// there is no shell, so there is no quoting to honour.
func SplitCommand(command string) []string {
	return strings.Fields(command)
}
