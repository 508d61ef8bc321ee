package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

// ContextConfig 上下文层 token 预算
type ContextConfig struct {
	RecentBufferTokens int
	SummaryTokens      int
	BriefTokens        int
}

// EstimateTokens approximates token count as len/4. A ~30% error does not
// affect contract behaviour, and budget boundaries are calibrated to this
// approximation — do not swap in a real tokenizer.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ContextManager 三层项目上下文管理
//
// Brief is human-authored and injected verbatim; Summary is the compacted
// tier owned by this component; the recent window is the token-bounded
// suffix of the history table.
type ContextManager struct {
	projects repository.ProjectRepository
	history  repository.HistoryRepository
	llm      LLMClient
	config   ContextConfig
	logger   *zap.Logger

	now func() time.Time
}

// NewContextManager 创建上下文管理器
func NewContextManager(
	projects repository.ProjectRepository,
	history repository.HistoryRepository,
	llm LLMClient,
	config ContextConfig,
	logger *zap.Logger,
) *ContextManager {
	if config.RecentBufferTokens <= 0 {
		config.RecentBufferTokens = 2000
	}
	return &ContextManager{
		projects: projects,
		history:  history,
		llm:      llm,
		config:   config,
		logger:   logger.With(zap.String("component", "context-manager")),
		now:      time.Now,
	}
}

// EnsureProject guarantees a row exists for projectID. Idempotent: safe to
// call before every invocation; never overwrites name, brief, or summary.
func (m *ContextManager) EnsureProject(ctx context.Context, projectID, name string) error {
	now := m.now().UTC()
	return m.projects.InsertIgnore(ctx, &entity.Project{
		ID:        projectID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Assemble builds the context block injected between the system prompt and
// the task. Returns "" when the project does not exist or all three tiers
// are empty, so the caller injects nothing.
//
// Recent history is collected newest-first until the token budget is
// consumed, then reversed so the prompt reads chronologically.
func (m *ContextManager) Assemble(ctx context.Context, projectID string) (string, error) {
	project, err := m.projects.FindByID(ctx, projectID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}

	rows, err := m.history.FindByProject(ctx, projectID, true)
	if err != nil {
		return "", err
	}

	budget := m.config.RecentBufferTokens
	var recent []*entity.HistoryEntry
	for _, row := range rows {
		if budget <= 0 {
			break
		}
		recent = append(recent, row)
		budget -= EstimateTokens(fmt.Sprintf("[%s] %s", strings.ToUpper(string(row.Role)), row.Content))
	}
	// Reverse to chronological order.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	if project.Brief == "" && project.Summary == "" && len(recent) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("=== PROJECT CONTEXT ===\n\n")
	b.WriteString("[BRIEF]\n")
	b.WriteString(orNone(project.Brief))
	b.WriteString("\n\n[SUMMARY]\n")
	b.WriteString(orNone(project.Summary))
	b.WriteString("\n\n[RECENT HISTORY]\n")
	for _, row := range recent {
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(row.Role)), row.Content)
	}
	b.WriteString("=== END CONTEXT ===")
	return b.String(), nil
}

// Append inserts one history row. Called twice after each invocation:
// user task and agent response.
func (m *ContextManager) Append(ctx context.Context, projectID string, role entity.HistoryRole, content string) error {
	return m.history.Insert(ctx, &entity.HistoryEntry{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now().UTC(),
	})
}

// MaybeSummarise compresses old history into the project summary when the
// buffer is over budget.
//
// Split logic: walk rows oldest-first, accumulate tokens, stop once
// accumulated >= total - budget (floor of one row). Those rows are folded
// into the summary via one model call, then deleted together with the
// summary update in a single transaction.
//
// When total history is within budget this is a no-op — no model call, no
// writes. That keeps short-lived projects cheap.
func (m *ContextManager) MaybeSummarise(ctx context.Context, projectID, model string) error {
	rows, err := m.history.FindByProject(ctx, projectID, false)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	total := 0
	for _, row := range rows {
		total += EstimateTokens(row.Content)
	}
	budget := m.config.RecentBufferTokens
	if total <= budget {
		return nil
	}

	target := total - budget
	accumulated := 0
	split := 0
	for i, row := range rows {
		accumulated += EstimateTokens(row.Content)
		if accumulated >= target {
			split = i + 1
			break
		}
	}
	if split == 0 {
		split = 1
	}
	toSummarise := rows[:split]

	project, err := m.projects.FindByID(ctx, projectID)
	if err != nil {
		return err
	}

	var historyText strings.Builder
	for _, row := range toSummarise {
		fmt.Fprintf(&historyText, "[%s] %s\n", strings.ToUpper(string(row.Role)), row.Content)
	}

	prompt := fmt.Sprintf(
		"You are a context compressor. Produce a concise summary of the "+
			"conversation history below, incorporating any existing summary.\n\n"+
			"Existing summary:\n%s\n\n"+
			"New history to incorporate:\n%s\n"+
			"Write a dense, factual summary. Preserve key decisions, outcomes, and "+
			"open questions. Omit pleasantries and repetition. Output only the summary.",
		orNone(project.Summary),
		historyText.String(),
	)

	summary, err := m.llm.Complete(ctx, model, prompt)
	if err != nil {
		return fmt.Errorf("summarise history: %w", err)
	}

	ids := make([]string, 0, len(toSummarise))
	for _, row := range toSummarise {
		ids = append(ids, row.ID)
	}

	m.logger.Info("Compacting history into summary",
		zap.String("project_id", projectID),
		zap.Int("rows_folded", len(ids)),
		zap.Int("total_tokens", total),
		zap.Int("budget_tokens", budget),
	)
	return m.history.FoldIntoSummary(ctx, projectID, ids, summary, m.now().UTC())
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
