package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/service"
	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
	"github.com/germinal-ai/germinal/internal/infrastructure/config"
	"github.com/germinal-ai/germinal/internal/infrastructure/monitoring"
	"github.com/germinal-ai/germinal/pkg/safego"
)

// Poll interval when the queue is empty. 500ms balances responsiveness
// against unnecessary churn on the store.
const idleSleep = 500 * time.Millisecond

// Supervisor owns the main event loop: dequeue, route, invoke, finalise.
// Events are processed strictly one at a time in (priority, created_at)
// order; HTTP requests that arrive mid-invocation wait in the queue.
type Supervisor struct {
	cfg        *config.Config
	queue      *service.EventQueue
	router     *service.Router
	contextMgr *service.ContextManager
	invoker    *service.AgentInvoker
	registry   *domaintool.Registry
	waiters    *service.Waiters
	monitor    *monitoring.Monitor
	logger     *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSupervisor 创建主循环
func NewSupervisor(
	cfg *config.Config,
	queue *service.EventQueue,
	router *service.Router,
	contextMgr *service.ContextManager,
	invoker *service.AgentInvoker,
	registry *domaintool.Registry,
	waiters *service.Waiters,
	monitor *monitoring.Monitor,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		queue:      queue,
		router:     router,
		contextMgr: contextMgr,
		invoker:    invoker,
		registry:   registry,
		waiters:    waiters,
		monitor:    monitor,
		logger:     logger.With(zap.String("component", "supervisor")),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start 启动主循环 goroutine
func (s *Supervisor) Start() {
	s.logger.Info("Event loop running")
	safego.Go(s.logger, "event-loop", s.run)
}

// Stop signals the loop to exit and blocks until the current invocation
// finishes. In-flight events complete; pending ones stay queued.
func (s *Supervisor) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info("Event loop stopped")
}

func (s *Supervisor) run() {
	defer close(s.done)
	ctx := context.Background()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		event, err := s.queue.Dequeue(ctx)
		if err != nil {
			// Store errors never kill the loop; log and keep polling.
			s.logger.Error("Dequeue failed", zap.Error(err))
			s.sleep()
			continue
		}
		if event == nil {
			s.sleep()
			continue
		}
		s.process(ctx, event)
	}
}

// process drives one event to a terminal state. The waiter, if any, is
// always resolved — success or failure — before the event leaves the loop;
// otherwise an HTTP client would hang until its timeout.
func (s *Supervisor) process(ctx context.Context, event *entity.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Invocation panicked",
				zap.String("event_id", event.ID),
				zap.Any("panic", r),
			)
			s.failEvent(ctx, event.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.logger.Info("Event dequeued",
		zap.String("event_id", event.ID),
		zap.String("source", event.Source),
		zap.String("type", event.Type),
	)

	decision, err := s.router.Route(event)
	if err != nil {
		s.logger.Warn("Unroutable event", zap.String("event_id", event.ID), zap.Error(err))
		s.failEvent(ctx, event.ID, err.Error())
		return
	}

	// Project precedence: payload.project_id > event column > config default.
	projectID := s.resolveProjectID(event)
	if projectID != "" {
		if err := s.contextMgr.EnsureProject(ctx, projectID, s.cfg.Projects.DefaultProjectName); err != nil {
			s.logger.Error("Failed to ensure project", zap.Error(err))
			s.failEvent(ctx, event.ID, err.Error())
			return
		}
	}

	model, _, maxTokens, err := s.cfg.SelectModel(decision.ModelKey)
	if err != nil {
		s.logger.Error("Model selection failed", zap.String("model_key", decision.ModelKey), zap.Error(err))
		s.failEvent(ctx, event.ID, err.Error())
		return
	}

	agentCfg := s.cfg.AgentFor(decision.AgentType)
	result := s.invoker.Invoke(ctx, service.InvokeRequest{
		Task:          decision.TaskDescription,
		AgentType:     decision.AgentType,
		Model:         model,
		MaxTokens:     maxTokens,
		ProjectID:     projectID,
		EventID:       event.ID,
		MaxIterations: agentCfg.MaxIterations,
		Registry:      s.registry.Filtered(agentCfg.AllowedTools),
		ApprovalFor:   agentCfg.ApprovalRequiredFor,
	})

	s.logger.Info("Event done",
		zap.String("event_id", event.ID),
		zap.String("invocation_id", result.InvocationID),
		zap.String("status", string(result.Status)),
		zap.Int("tool_calls", len(result.ToolCalls)),
	)

	// The invocation returned — even a failed one is a processed event. Only
	// unroutable events, project or model-selection errors, and panics mark
	// the event itself failed.
	if err := s.queue.Complete(ctx, event.ID); err != nil {
		s.logger.Error("Failed to complete event", zap.Error(err))
	}
	s.monitor.IncEventProcessed()
	s.waiters.Resolve(event.ID, result)
}

func (s *Supervisor) failEvent(ctx context.Context, eventID, reason string) {
	if err := s.queue.Fail(ctx, eventID); err != nil {
		s.logger.Error("Failed to mark event failed", zap.Error(err))
	}
	s.monitor.IncEventFailed()
	s.waiters.Resolve(eventID, &service.InvokeResult{
		Status:   entity.InvocationFailed,
		Response: reason,
	})
}

func (s *Supervisor) resolveProjectID(event *entity.Event) string {
	if pid, ok := event.Payload["project_id"].(string); ok && pid != "" {
		return pid
	}
	if event.ProjectID != "" {
		return event.ProjectID
	}
	return s.cfg.Projects.DefaultProjectID
}

func (s *Supervisor) sleep() {
	select {
	case <-s.stop:
	case <-time.After(idleSleep):
	}
}
