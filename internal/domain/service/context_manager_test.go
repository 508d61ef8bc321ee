package service

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence"
)

type fakeTextLLM struct {
	summary       string
	completeCalls int
}

func (f *fakeTextLLM) Extract(ctx context.Context, model string, messages []Message, maxTokens int) (*AgentResponse, string, error) {
	panic("not used")
}

func (f *fakeTextLLM) Complete(ctx context.Context, model, prompt string) (string, error) {
	f.completeCalls++
	return f.summary, nil
}

func testContextManager(budget int) (*ContextManager, *persistence.MemoryProjectRepository, *persistence.MemoryHistoryRepository, *fakeTextLLM) {
	projects := persistence.NewMemoryProjectRepository()
	history := persistence.NewMemoryHistoryRepository(projects)
	llm := &fakeTextLLM{summary: "compacted summary"}
	m := NewContextManager(projects, history, llm, ContextConfig{RecentBufferTokens: budget}, zap.NewNop())
	return m, projects, history, llm
}

func TestEnsureProjectIdempotent(t *testing.T) {
	m, projects, _, _ := testContextManager(100)
	ctx := context.Background()

	if err := m.EnsureProject(ctx, "proj", "Project"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if err := m.EnsureProject(ctx, "proj", "Renamed"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	n, _ := projects.Count(ctx)
	if n != 1 {
		t.Fatalf("projects: got %d, want 1", n)
	}
	p, _ := projects.FindByID(ctx, "proj")
	if p.Name != "Project" {
		t.Errorf("name overwritten: got %q", p.Name)
	}
}

func TestAssembleEmptyTiers(t *testing.T) {
	m, _, _, _ := testContextManager(100)
	ctx := context.Background()
	_ = m.EnsureProject(ctx, "proj", "Project")

	block, err := m.Assemble(ctx, "proj")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if block != "" {
		t.Errorf("empty tiers should assemble to empty string, got %q", block)
	}
}

func TestAssembleUnknownProject(t *testing.T) {
	m, _, _, _ := testContextManager(100)
	block, err := m.Assemble(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if block != "" {
		t.Errorf("unknown project should assemble to empty string, got %q", block)
	}
}

func TestAssembleAllTiers(t *testing.T) {
	m, projects, _, _ := testContextManager(1000)
	ctx := context.Background()
	_ = m.EnsureProject(ctx, "proj", "Project")
	projects.SetBrief("proj", "ship the orchestrator")
	_ = projects.UpdateSummary(ctx, "proj", "past work summary", m.now())
	_ = m.Append(ctx, "proj", entity.RoleUser, "do the thing")
	_ = m.Append(ctx, "proj", entity.RoleAgent, "done the thing")

	block, err := m.Assemble(ctx, "proj")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, want := range []string{
		"=== PROJECT CONTEXT ===",
		"[BRIEF]\nship the orchestrator",
		"[SUMMARY]\npast work summary",
		"[USER] do the thing",
		"[AGENT] done the thing",
		"=== END CONTEXT ===",
	} {
		if !strings.Contains(block, want) {
			t.Errorf("assembled block missing %q:\n%s", want, block)
		}
	}
	// Chronological: the user turn comes before the agent turn.
	if strings.Index(block, "[USER]") > strings.Index(block, "[AGENT]") {
		t.Error("recent history not in chronological order")
	}
}

func TestAssembleRespectsBudget(t *testing.T) {
	// Budget of 20 tokens ≈ 80 chars. Each entry below is ~25 tokens, so only
	// the newest should be collected before the budget runs out.
	m, _, history, _ := testContextManager(20)
	ctx := context.Background()
	_ = m.EnsureProject(ctx, "proj", "Project")

	old := strings.Repeat("o", 100)
	recent := strings.Repeat("r", 100)
	_ = history.Insert(ctx, &entity.HistoryEntry{ID: "h1", ProjectID: "proj", Role: entity.RoleUser, Content: old, CreatedAt: m.now().Add(-2)})
	_ = history.Insert(ctx, &entity.HistoryEntry{ID: "h2", ProjectID: "proj", Role: entity.RoleAgent, Content: recent, CreatedAt: m.now()})

	block, err := m.Assemble(ctx, "proj")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(block, recent) {
		t.Error("newest entry missing from recent window")
	}
	if strings.Contains(block, old) {
		t.Error("budget exceeded: oldest entry should have been dropped")
	}
}

func TestMaybeSummariseWithinBudgetIsNoOp(t *testing.T) {
	m, projects, history, llm := testContextManager(10)
	ctx := context.Background()
	_ = m.EnsureProject(ctx, "proj", "Project")

	// Exactly at budget: 40 chars = 10 tokens. No model call, no mutation.
	_ = m.Append(ctx, "proj", entity.RoleUser, strings.Repeat("x", 40))

	if err := m.MaybeSummarise(ctx, "proj", "test-model"); err != nil {
		t.Fatalf("MaybeSummarise: %v", err)
	}
	if llm.completeCalls != 0 {
		t.Errorf("model calls: got %d, want 0", llm.completeCalls)
	}
	if n, _ := history.Count(ctx); n != 1 {
		t.Errorf("history rows: got %d, want 1", n)
	}
	p, _ := projects.FindByID(ctx, "proj")
	if p.Summary != "" {
		t.Errorf("summary mutated: %q", p.Summary)
	}
}

func TestMaybeSummariseOneTokenOver(t *testing.T) {
	m, projects, history, llm := testContextManager(10)
	ctx := context.Background()
	_ = m.EnsureProject(ctx, "proj", "Project")

	// 40 chars (10 tokens) + 4 chars (1 token): one over budget.
	_ = m.Append(ctx, "proj", entity.RoleUser, strings.Repeat("x", 40))
	_ = m.Append(ctx, "proj", entity.RoleAgent, "yyyy")

	if err := m.MaybeSummarise(ctx, "proj", "test-model"); err != nil {
		t.Fatalf("MaybeSummarise: %v", err)
	}
	if llm.completeCalls != 1 {
		t.Errorf("model calls: got %d, want 1", llm.completeCalls)
	}
	// The oldest row covers the 1-token overshoot; it alone is folded.
	if n, _ := history.Count(ctx); n != 1 {
		t.Errorf("history rows: got %d, want 1", n)
	}
	p, _ := projects.FindByID(ctx, "proj")
	if p.Summary != "compacted summary" {
		t.Errorf("summary: got %q", p.Summary)
	}
}

func TestMaybeSummariseFloorsOneRow(t *testing.T) {
	m, _, history, llm := testContextManager(10)
	ctx := context.Background()
	_ = m.EnsureProject(ctx, "proj", "Project")

	// A single row far over budget must still fold (floor of one row).
	_ = m.Append(ctx, "proj", entity.RoleUser, strings.Repeat("x", 400))

	if err := m.MaybeSummarise(ctx, "proj", "test-model"); err != nil {
		t.Fatalf("MaybeSummarise: %v", err)
	}
	if llm.completeCalls != 1 {
		t.Errorf("model calls: got %d, want 1", llm.completeCalls)
	}
	if n, _ := history.Count(ctx); n != 0 {
		t.Errorf("history rows: got %d, want 0", n)
	}
}

func TestMaybeSummariseEmptyHistory(t *testing.T) {
	m, _, _, llm := testContextManager(10)
	ctx := context.Background()
	_ = m.EnsureProject(ctx, "proj", "Project")

	if err := m.MaybeSummarise(ctx, "proj", "test-model"); err != nil {
		t.Fatalf("MaybeSummarise: %v", err)
	}
	if llm.completeCalls != 0 {
		t.Errorf("model calls: got %d, want 0", llm.completeCalls)
	}
}

func TestMaybeSummariseMergesExistingSummary(t *testing.T) {
	m, projects, _, llm := testContextManager(10)
	ctx := context.Background()
	_ = m.EnsureProject(ctx, "proj", "Project")
	_ = projects.UpdateSummary(ctx, "proj", "earlier facts", m.now())
	_ = m.Append(ctx, "proj", entity.RoleUser, strings.Repeat("x", 100))

	// The compaction prompt must carry the existing summary so the model can
	// merge rather than replace knowledge.
	promptSeen := ""
	llm.summary = "merged"
	m.llm = &promptSpyLLM{inner: llm, prompt: &promptSeen}

	if err := m.MaybeSummarise(ctx, "proj", "test-model"); err != nil {
		t.Fatalf("MaybeSummarise: %v", err)
	}
	if !strings.Contains(promptSeen, "earlier facts") {
		t.Error("existing summary missing from compaction prompt")
	}
	p, _ := projects.FindByID(ctx, "proj")
	if p.Summary != "merged" {
		t.Errorf("summary: got %q, want merged", p.Summary)
	}
}

type promptSpyLLM struct {
	inner  *fakeTextLLM
	prompt *string
}

func (s *promptSpyLLM) Extract(ctx context.Context, model string, messages []Message, maxTokens int) (*AgentResponse, string, error) {
	return s.inner.Extract(ctx, model, messages, maxTokens)
}

func (s *promptSpyLLM) Complete(ctx context.Context, model, prompt string) (string, error) {
	*s.prompt = prompt
	return s.inner.Complete(ctx, model, prompt)
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("EstimateTokens(40 chars): got %d, want 10", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty): got %d, want 0", got)
	}
}
