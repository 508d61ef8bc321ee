package application

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/germinal-ai/germinal/internal/domain/service"
	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
	"github.com/germinal-ai/germinal/internal/infrastructure/config"
	"github.com/germinal-ai/germinal/internal/infrastructure/llm"
	"github.com/germinal-ai/germinal/internal/infrastructure/monitoring"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence"
	"github.com/germinal-ai/germinal/internal/infrastructure/security"
	itool "github.com/germinal-ai/germinal/internal/infrastructure/tool"
	ihttp "github.com/germinal-ai/germinal/internal/interfaces/http"
	"github.com/germinal-ai/germinal/internal/interfaces/http/handlers"
	"github.com/germinal-ai/germinal/internal/interfaces/timer"
)

// App wires every subsystem together. This is the only place the full
// object graph is assembled — individual packages know nothing about each
// other beyond their interfaces.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	queue      *service.EventQueue
	router     *service.Router
	contextMgr *service.ContextManager
	invoker    *service.AgentInvoker
	registry   *domaintool.Registry
	waiters    *service.Waiters
	monitor    *monitoring.Monitor
	content    *itool.ContentStore

	supervisor *Supervisor
	httpServer *ihttp.Server
	timer      *timer.Adapter
}

// NewApp 组装应用
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := persistence.NewDB(persistence.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.DatabaseDSN(),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	events := persistence.NewGormEventRepository(db)
	invocations := persistence.NewGormInvocationRepository(db)
	toolCalls := persistence.NewGormToolCallRepository(db)
	approvals := persistence.NewGormApprovalRepository(db)
	projects := persistence.NewGormProjectRepository(db)
	history := persistence.NewGormHistoryRepository(db)
	tasks := persistence.NewGormTaskRepository(db)

	llmClient := llm.NewClient(llm.Config{Endpoints: endpointsFromConfig(cfg)}, logger)
	monitor := monitoring.NewMonitor()

	queue := service.NewEventQueue(events, logger)
	router := service.NewRouter(service.DefaultRules())
	contextMgr := service.NewContextManager(projects, history, llmClient, service.ContextConfig{
		RecentBufferTokens: cfg.Context.RecentBufferTokens,
		SummaryTokens:      cfg.Context.SummaryTokens,
		BriefTokens:        cfg.Context.BriefTokens,
	}, logger)

	invoker := service.NewAgentInvoker(llmClient, invocations, toolCalls, contextMgr, logger)
	invoker.SetMetrics(monitor)
	invoker.SetSanitizer(security.DefaultPipeline(logger).Validate)

	// The gate closure binds the approval store so tool dispatch never
	// touches persistence directly.
	gate := service.NewApprovalGate(approvals, logger)
	invoker.SetGate(func(ctx context.Context, toolName string, params map[string]interface{}, agentType, projectID, toolCallID string) bool {
		monitor.IncApproval()
		return gate.Request(ctx, toolName, params, agentType, projectID, toolCallID)
	})

	content := itool.NewContentStore()
	registry := itool.RegisterAllTools(itool.ToolLayerDeps{
		AllowedRead:    cfg.Paths.AllowedRead,
		AllowedWrite:   cfg.Paths.AllowedWrite,
		ShellAllowlist: cfg.Tools.ShellAllowlist,
		Tasks:          tasks,
		Content:        content,
		Logger:         logger,
	})

	waiters := service.NewWaiters()

	app := &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		queue:      queue,
		router:     router,
		contextMgr: contextMgr,
		invoker:    invoker,
		registry:   registry,
		waiters:    waiters,
		monitor:    monitor,
		content:    content,
	}
	app.supervisor = NewSupervisor(cfg, queue, router, contextMgr, invoker, registry, waiters, monitor, logger)

	if cfg.Network.Enabled {
		openai := handlers.NewOpenAIHandler(queue, waiters, handlers.OpenAIHandlerConfig{
			ModelName:        cfg.Network.ModelName,
			DefaultAgentType: cfg.Network.DefaultAgentType,
			DefaultProjectID: cfg.Projects.DefaultProjectID,
			RequestTimeout:   time.Duration(cfg.Network.RequestTimeoutS) * time.Second,
		}, logger)
		app.httpServer = ihttp.NewServer(ihttp.Config{
			Host:        cfg.Network.TCP.Host,
			Port:        cfg.Network.TCP.Port,
			UnixSocket:  cfg.Network.UnixSocket,
			RequireAuth: cfg.Network.RequireAuth,
			APIKey:      cfg.Network.APIKey,
			Mode:        "production",
		}, openai, monitor, logger)
	}

	if cfg.Timer.Enabled {
		app.timer = timer.New(queue, time.Duration(cfg.Timer.IntervalSeconds)*time.Second,
			cfg.Projects.DefaultProjectID, logger)
	}

	return app, nil
}

// Start 启动守护进程: 崩溃恢复 → 适配器 → 主循环
func (a *App) Start(ctx context.Context) error {
	if _, err := a.queue.ResetStale(ctx); err != nil {
		return fmt.Errorf("reset stale events: %w", err)
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(ctx); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
	}
	if a.timer != nil {
		a.timer.Start()
	}
	a.supervisor.Start()
	return nil
}

// Stop 优雅停机: 先停生产者, 再停主循环, 最后停 HTTP
func (a *App) Stop(ctx context.Context) error {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.supervisor.Stop()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunTask drives one interactive invocation (REPL / one-shot) without going
// through the queue: the user is the event source.
func (a *App) RunTask(ctx context.Context, task string) (*service.InvokeResult, error) {
	agentType := a.cfg.Network.DefaultAgentType
	if agentType == "" {
		agentType = "task_agent"
	}
	model, _, maxTokens, err := a.cfg.SelectModel("default")
	if err != nil {
		return nil, err
	}

	projectID := a.cfg.Projects.DefaultProjectID
	if projectID != "" {
		if err := a.contextMgr.EnsureProject(ctx, projectID, a.cfg.Projects.DefaultProjectName); err != nil {
			return nil, err
		}
	}

	agentCfg := a.cfg.AgentFor(agentType)
	return a.invoker.Invoke(ctx, service.InvokeRequest{
		Task:          task,
		AgentType:     agentType,
		Model:         model,
		MaxTokens:     maxTokens,
		ProjectID:     projectID,
		MaxIterations: agentCfg.MaxIterations,
		Registry:      a.registry.Filtered(agentCfg.AllowedTools),
		ApprovalFor:   agentCfg.ApprovalRequiredFor,
	}), nil
}

// LoadContent 装载大内容侧通道 (CLI 在调用前设置)
func (a *App) LoadContent(name, content string) {
	a.content.Set(name, content)
}

// Logger 返回应用日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// endpointsFromConfig resolves each configured model entry's credential env
// var into an LLM endpoint. Reading the env happens once at startup.
func endpointsFromConfig(cfg *config.Config) []llm.ModelEndpoint {
	endpoints := make([]llm.ModelEndpoint, 0, len(cfg.Models.List))
	for _, entry := range cfg.Models.List {
		apiKey := ""
		if entry.APIKeyEnv != "" {
			apiKey = os.Getenv(entry.APIKeyEnv)
		}
		endpoints = append(endpoints, llm.ModelEndpoint{
			Model:   entry.Model,
			BaseURL: entry.BaseURL,
			APIKey:  apiKey,
		})
	}
	return endpoints
}
