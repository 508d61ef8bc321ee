package timer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/service"
	"github.com/germinal-ai/germinal/pkg/safego"
)

// Adapter pushes a tick event every interval.
//
// The adapter is self-healing: a failed push is logged and the loop
// continues. It does not guarantee exactly-once delivery — the minute field
// in the payload gives each tick a distinct deterministic id, and the
// queue's dedup absorbs any double-fire within a minute.
type Adapter struct {
	queue     *service.EventQueue
	interval  time.Duration
	projectID string
	logger    *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// New 创建定时器适配器
func New(queue *service.EventQueue, interval time.Duration, projectID string, logger *zap.Logger) *Adapter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Adapter{
		queue:     queue,
		interval:  interval,
		projectID: projectID,
		logger:    logger.With(zap.String("component", "timer")),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start 启动定时器 goroutine, 立即返回
func (a *Adapter) Start() {
	a.logger.Info("Timer adapter started", zap.Duration("interval", a.interval))
	safego.Go(a.logger, "timer-adapter", a.run)
}

// Stop signals the timer to exit and waits for it. The wait never exceeds
// one interval because the ticker select is interrupted by the stop channel.
func (a *Adapter) Stop() {
	close(a.stop)
	<-a.done
}

func (a *Adapter) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.pushTick()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.pushTick()
		}
	}
}

// pushTick 推送一次 tick 事件; 失败只记录日志
func (a *Adapter) pushTick() {
	// The minute string makes each tick's deterministic id unique within the
	// queue's hour-level dedup window.
	minute := time.Now().UTC().Format("2006-01-02T15:04")
	_, err := a.queue.Push(context.Background(), "timer", "tick",
		map[string]interface{}{"minute": minute},
		a.projectID,
		8, // background urgency
	)
	if err != nil {
		a.logger.Error("Failed to push tick event", zap.Error(err))
	}
}
