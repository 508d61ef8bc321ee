package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
)

// ApprovalGate blocks high-risk tool calls until a human approves or denies.
//
// The gate is the sole enforcement point for high-risk execution. The
// approval record is written before the prompt is shown and updated before
// Request returns; reversing that order would open a window where the tool
// could execute with no DB record.
type ApprovalGate struct {
	approvals repository.ApprovalRepository
	logger    *zap.Logger

	in  io.Reader
	out io.Writer
	// interactive reports whether a human can actually answer. Overridable
	// in tests; the default checks whether stdin is a terminal.
	interactive func() bool
	now         func() time.Time
}

// NewApprovalGate 创建终端审批门
func NewApprovalGate(approvals repository.ApprovalRepository, logger *zap.Logger) *ApprovalGate {
	return &ApprovalGate{
		approvals:   approvals,
		logger:      logger.With(zap.String("component", "approval-gate")),
		in:          os.Stdin,
		out:         os.Stdout,
		interactive: stdinIsTerminal,
		now:         time.Now,
	}
}

// Request shows an approval prompt and blocks until the human answers.
// Returns true only on an explicit "y". EOF, interrupt, or any other answer
// denies. When stdin is non-interactive (server context, piped run) the
// request auto-denies: an unattended process cannot approve a high-risk
// action on behalf of the human.
func (g *ApprovalGate) Request(ctx context.Context, toolName string, parameters map[string]interface{}, agentType, projectID, toolCallID string) bool {
	approvalID := "appr_" + shortID()
	prompt := buildApprovalPrompt(toolName, parameters, agentType, projectID)

	if err := g.approvals.Insert(ctx, &entity.Approval{
		ID:         approvalID,
		ToolCallID: toolCallID,
		Prompt:     prompt,
		CreatedAt:  g.now().UTC(),
	}); err != nil {
		g.logger.Error("Failed to record approval request — denying", zap.Error(err))
		return false
	}

	if !g.interactive() {
		g.logger.Warn("Non-interactive stdin — auto-denying high-risk tool",
			zap.String("tool", toolName),
		)
		g.record(ctx, approvalID, entity.ApprovalDenied)
		return false
	}

	// Print the formatted prompt directly so the human sees it without a
	// logger prefix cluttering the approval block.
	fmt.Fprintln(g.out, prompt)
	fmt.Fprint(g.out, "Approve? [y/N]: ")

	answer := ""
	scanner := bufio.NewScanner(g.in)
	if scanner.Scan() {
		answer = strings.ToLower(strings.TrimSpace(scanner.Text()))
	}

	approved := answer == "y"
	if approved {
		g.record(ctx, approvalID, entity.ApprovalApproved)
	} else {
		g.record(ctx, approvalID, entity.ApprovalDenied)
	}
	return approved
}

func (g *ApprovalGate) record(ctx context.Context, approvalID string, response entity.ApprovalResponse) {
	if err := g.approvals.Respond(ctx, approvalID, response, g.now().UTC()); err != nil {
		g.logger.Error("Failed to record approval response", zap.Error(err))
	}
}

func buildApprovalPrompt(toolName string, parameters map[string]interface{}, agentType, projectID string) string {
	params, err := json.MarshalIndent(parameters, "", "  ")
	if err != nil {
		params = []byte("{}")
	}
	if projectID == "" {
		projectID = "(none)"
	}
	divider := strings.Repeat("=", 60)
	return fmt.Sprintf(
		"\n%s\n[APPROVAL REQUIRED]\nAgent: %s  |  Project: %s  |  Risk: high\nTool: %s\nParameters:\n%s\n%s",
		divider, agentType, projectID, toolName, string(params), divider,
	)
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func shortID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}
