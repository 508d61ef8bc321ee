package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/repository"
	domainErrors "github.com/germinal-ai/germinal/pkg/errors"
)

// In-memory repository implementations. Used by tests and by ephemeral runs
// that do not want a database file. Semantics mirror the GORM versions,
// including insert-or-ignore dedup and stable queue ordering.

// MemoryEventRepository 内存事件仓储
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*entity.Event
	seq    []string // insertion order, for stable created_at ties
}

// NewMemoryEventRepository 创建内存事件仓储
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{events: make(map[string]*entity.Event)}
}

func (r *MemoryEventRepository) Insert(ctx context.Context, event *entity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.ID]; exists {
		return nil
	}
	clone := *event
	r.events[event.ID] = &clone
	r.seq = append(r.seq, event.ID)
	return nil
}

func (r *MemoryEventRepository) FindByID(ctx context.Context, id string) (*entity.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("event not found")
	}
	clone := *event
	return &clone, nil
}

func (r *MemoryEventRepository) NextPending(ctx context.Context) (*entity.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *entity.Event
	for _, id := range r.seq {
		ev := r.events[id]
		if ev.Status != entity.EventPending {
			continue
		}
		if best == nil ||
			ev.Priority < best.Priority ||
			(ev.Priority == best.Priority && ev.CreatedAt.Before(best.CreatedAt)) {
			best = ev
		}
	}
	if best == nil {
		return nil, nil
	}
	clone := *best
	return &clone, nil
}

func (r *MemoryEventRepository) MarkProcessing(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[id]; ok {
		ev.Status = entity.EventProcessing
	}
	return nil
}

func (r *MemoryEventRepository) MarkProcessed(ctx context.Context, id string, status entity.EventStatus, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.events[id]; ok {
		ev.Status = status
		ev.ProcessedAt = &processedAt
	}
	return nil
}

func (r *MemoryEventRepository) ResetStale(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, ev := range r.events {
		if ev.Status == entity.EventProcessing {
			ev.Status = entity.EventPending
			n++
		}
	}
	return n, nil
}

func (r *MemoryEventRepository) List(ctx context.Context, filter repository.EventFilter) ([]*entity.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Event
	for _, id := range r.seq {
		ev := r.events[id]
		if filter.Status != "" && string(ev.Status) != filter.Status {
			continue
		}
		if filter.Source != "" && ev.Source != filter.Source {
			continue
		}
		if filter.ProjectID != "" && ev.ProjectID != filter.ProjectID {
			continue
		}
		clone := *ev
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryEventRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.events)), nil
}

// MemoryInvocationRepository 内存调用仓储
type MemoryInvocationRepository struct {
	mu          sync.RWMutex
	invocations map[string]*entity.Invocation
}

// NewMemoryInvocationRepository 创建内存调用仓储
func NewMemoryInvocationRepository() *MemoryInvocationRepository {
	return &MemoryInvocationRepository{invocations: make(map[string]*entity.Invocation)}
}

func (r *MemoryInvocationRepository) Insert(ctx context.Context, inv *entity.Invocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *inv
	r.invocations[inv.ID] = &clone
	return nil
}

func (r *MemoryInvocationRepository) Finish(ctx context.Context, id, response, toolCalls string, status entity.InvocationStatus, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invocations[id]
	if !ok {
		return domainErrors.NewNotFoundError("invocation not found")
	}
	inv.Response = response
	inv.ToolCalls = toolCalls
	inv.Status = status
	inv.FinishedAt = &finishedAt
	return nil
}

func (r *MemoryInvocationRepository) FindByID(ctx context.Context, id string) (*entity.Invocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invocations[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("invocation not found")
	}
	clone := *inv
	return &clone, nil
}

func (r *MemoryInvocationRepository) List(ctx context.Context, filter repository.InvocationFilter) ([]*entity.Invocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Invocation
	for _, inv := range r.invocations {
		if filter.Status != "" && string(inv.Status) != filter.Status {
			continue
		}
		if filter.ProjectID != "" && inv.ProjectID != filter.ProjectID {
			continue
		}
		clone := *inv
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryInvocationRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.invocations)), nil
}

// MemoryToolCallRepository 内存工具调用仓储
type MemoryToolCallRepository struct {
	mu    sync.RWMutex
	calls map[string]*entity.ToolCall
	seq   []string
}

// NewMemoryToolCallRepository 创建内存工具调用仓储
func NewMemoryToolCallRepository() *MemoryToolCallRepository {
	return &MemoryToolCallRepository{calls: make(map[string]*entity.ToolCall)}
}

func (r *MemoryToolCallRepository) Insert(ctx context.Context, tc *entity.ToolCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *tc
	r.calls[tc.ID] = &clone
	r.seq = append(r.seq, tc.ID)
	return nil
}

func (r *MemoryToolCallRepository) UpdateResult(ctx context.Context, id string, result map[string]interface{}, status entity.ToolCallStatus, executedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tc, ok := r.calls[id]
	if !ok {
		return domainErrors.NewNotFoundError("tool call not found")
	}
	tc.Result = result
	tc.Status = status
	tc.ExecutedAt = &executedAt
	return nil
}

func (r *MemoryToolCallRepository) FindByID(ctx context.Context, id string) (*entity.ToolCall, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tc, ok := r.calls[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("tool call not found")
	}
	clone := *tc
	return &clone, nil
}

// InOrder returns every tool call in insertion order. Test helper.
func (r *MemoryToolCallRepository) InOrder() []*entity.ToolCall {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.ToolCall, 0, len(r.seq))
	for _, id := range r.seq {
		clone := *r.calls[id]
		out = append(out, &clone)
	}
	return out
}

func (r *MemoryToolCallRepository) List(ctx context.Context, filter repository.ToolCallFilter) ([]*entity.ToolCall, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.ToolCall
	for i := len(r.seq) - 1; i >= 0; i-- {
		tc := r.calls[r.seq[i]]
		if filter.Status != "" && string(tc.Status) != filter.Status {
			continue
		}
		if filter.InvocationID != "" && tc.InvocationID != filter.InvocationID {
			continue
		}
		if filter.ToolName != "" && tc.ToolName != filter.ToolName {
			continue
		}
		clone := *tc
		out = append(out, &clone)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryToolCallRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.calls)), nil
}

// MemoryApprovalRepository 内存审批仓储
type MemoryApprovalRepository struct {
	mu        sync.RWMutex
	approvals map[string]*entity.Approval
	seq       []string
}

// NewMemoryApprovalRepository 创建内存审批仓储
func NewMemoryApprovalRepository() *MemoryApprovalRepository {
	return &MemoryApprovalRepository{approvals: make(map[string]*entity.Approval)}
}

func (r *MemoryApprovalRepository) Insert(ctx context.Context, approval *entity.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *approval
	r.approvals[approval.ID] = &clone
	r.seq = append(r.seq, approval.ID)
	return nil
}

func (r *MemoryApprovalRepository) Respond(ctx context.Context, id string, response entity.ApprovalResponse, respondedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.approvals[id]
	if !ok {
		return domainErrors.NewNotFoundError("approval not found")
	}
	a.Response = response
	a.RespondedAt = &respondedAt
	return nil
}

func (r *MemoryApprovalRepository) FindByID(ctx context.Context, id string) (*entity.Approval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.approvals[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("approval not found")
	}
	clone := *a
	return &clone, nil
}

// InOrder returns every approval in insertion order. Test helper.
func (r *MemoryApprovalRepository) InOrder() []*entity.Approval {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Approval, 0, len(r.seq))
	for _, id := range r.seq {
		clone := *r.approvals[id]
		out = append(out, &clone)
	}
	return out
}

func (r *MemoryApprovalRepository) List(ctx context.Context, filter repository.ApprovalFilter) ([]*entity.Approval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Approval
	for i := len(r.seq) - 1; i >= 0; i-- {
		a := r.approvals[r.seq[i]]
		switch filter.Response {
		case "":
		case "pending":
			if a.Response != "" {
				continue
			}
		default:
			if string(a.Response) != filter.Response {
				continue
			}
		}
		clone := *a
		out = append(out, &clone)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryApprovalRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.approvals)), nil
}

// MemoryProjectRepository 内存项目仓储
type MemoryProjectRepository struct {
	mu       sync.RWMutex
	projects map[string]*entity.Project
}

// NewMemoryProjectRepository 创建内存项目仓储
func NewMemoryProjectRepository() *MemoryProjectRepository {
	return &MemoryProjectRepository{projects: make(map[string]*entity.Project)}
}

func (r *MemoryProjectRepository) InsertIgnore(ctx context.Context, project *entity.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[project.ID]; exists {
		return nil
	}
	clone := *project
	r.projects[project.ID] = &clone
	return nil
}

func (r *MemoryProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("project not found")
	}
	clone := *p
	return &clone, nil
}

func (r *MemoryProjectRepository) UpdateSummary(ctx context.Context, id, summary string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return domainErrors.NewNotFoundError("project not found")
	}
	p.Summary = summary
	p.UpdatedAt = updatedAt
	return nil
}

// SetBrief sets the human-authored brief tier. Test helper.
func (r *MemoryProjectRepository) SetBrief(id, brief string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.projects[id]; ok {
		p.Brief = brief
	}
}

func (r *MemoryProjectRepository) List(ctx context.Context, limit int) ([]*entity.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Project
	for _, p := range r.projects {
		clone := *p
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryProjectRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.projects)), nil
}

// MemoryHistoryRepository 内存历史仓储
//
// FoldIntoSummary needs the project repository to update the summary in the
// same "transaction"; the memory version holds both locks in sequence, which
// is close enough for tests.
type MemoryHistoryRepository struct {
	mu       sync.RWMutex
	entries  []*entity.HistoryEntry
	projects *MemoryProjectRepository
}

// NewMemoryHistoryRepository 创建内存历史仓储
func NewMemoryHistoryRepository(projects *MemoryProjectRepository) *MemoryHistoryRepository {
	return &MemoryHistoryRepository{projects: projects}
}

func (r *MemoryHistoryRepository) Insert(ctx context.Context, entry *entity.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *MemoryHistoryRepository) FindByProject(ctx context.Context, projectID string, newestFirst bool) ([]*entity.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.HistoryEntry
	for _, e := range r.entries {
		if e.ProjectID != projectID {
			continue
		}
		clone := *e
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryHistoryRepository) ListByProject(ctx context.Context, projectID string, filter repository.HistoryFilter) ([]*entity.HistoryEntry, error) {
	all, _ := r.FindByProject(ctx, projectID, true)
	var out []*entity.HistoryEntry
	for _, e := range all {
		if filter.Role != "" && string(e.Role) != filter.Role {
			continue
		}
		out = append(out, e)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryHistoryRepository) FoldIntoSummary(ctx context.Context, projectID string, entryIDs []string, summary string, updatedAt time.Time) error {
	r.mu.Lock()
	drop := make(map[string]bool, len(entryIDs))
	for _, id := range entryIDs {
		drop[id] = true
	}
	kept := r.entries[:0]
	for _, e := range r.entries {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	r.mu.Unlock()

	return r.projects.UpdateSummary(ctx, projectID, summary, updatedAt)
}

func (r *MemoryHistoryRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.entries)), nil
}

// MemoryTaskRepository 内存任务仓储
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*entity.Task
	seq   []string
}

// NewMemoryTaskRepository 创建内存任务仓储
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]*entity.Task)}
}

func (r *MemoryTaskRepository) Insert(ctx context.Context, task *entity.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *task
	r.tasks[task.ID] = &clone
	r.seq = append(r.seq, task.ID)
	return nil
}

func (r *MemoryTaskRepository) Update(ctx context.Context, task *entity.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[task.ID]
	if !ok {
		return domainErrors.NewNotFoundError("task not found")
	}
	existing.Title = task.Title
	existing.Description = task.Description
	existing.Priority = task.Priority
	existing.Status = task.Status
	existing.UpdatedAt = task.UpdatedAt
	return nil
}

func (r *MemoryTaskRepository) FindByID(ctx context.Context, id string) (*entity.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("task not found")
	}
	clone := *t
	return &clone, nil
}

func (r *MemoryTaskRepository) List(ctx context.Context, filter repository.TaskFilter) ([]*entity.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Task
	for _, id := range r.seq {
		t := r.tasks[id]
		if filter.Status != "" && string(t.Status) != filter.Status {
			continue
		}
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryTaskRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.tasks)), nil
}
