package monitoring

import (
	"sync/atomic"
	"time"
)

// Metrics 指标收集器
type Metrics struct {
	// 事件
	EventsProcessed uint64
	EventsFailed    uint64

	// 调用
	InvocationsTotal  uint64
	InvocationsFailed uint64

	// 工具调用
	ToolCallsTotal   uint64
	ToolCallsSuccess uint64
	ToolCallsFailed  uint64

	// 模型调用
	ModelCallsTotal uint64

	// 审批
	ApprovalsRequested uint64

	// 队列深度 (仅由 SetQueueDepth 写入; 事件循环不调用它, 未设置时为 0)
	QueueDepth int64

	// 启动时间
	StartTime time.Time
}

// Monitor 进程内性能监控器
type Monitor struct {
	metrics *Metrics
}

// NewMonitor 创建监控器
func NewMonitor() *Monitor {
	return &Monitor{
		metrics: &Metrics{StartTime: time.Now()},
	}
}

// 计数方法

func (m *Monitor) IncEventProcessed() { atomic.AddUint64(&m.metrics.EventsProcessed, 1) }
func (m *Monitor) IncEventFailed()    { atomic.AddUint64(&m.metrics.EventsFailed, 1) }
func (m *Monitor) IncApproval()       { atomic.AddUint64(&m.metrics.ApprovalsRequested, 1) }

func (m *Monitor) SetQueueDepth(depth int64) { atomic.StoreInt64(&m.metrics.QueueDepth, depth) }

// RecordModelCall 实现 service.MetricsRecorder
func (m *Monitor) RecordModelCall() { atomic.AddUint64(&m.metrics.ModelCallsTotal, 1) }

// RecordToolCall 实现 service.MetricsRecorder
func (m *Monitor) RecordToolCall(success bool) {
	atomic.AddUint64(&m.metrics.ToolCallsTotal, 1)
	if success {
		atomic.AddUint64(&m.metrics.ToolCallsSuccess, 1)
	} else {
		atomic.AddUint64(&m.metrics.ToolCallsFailed, 1)
	}
}

// RecordInvocation 实现 service.MetricsRecorder
func (m *Monitor) RecordInvocation(failed bool) {
	atomic.AddUint64(&m.metrics.InvocationsTotal, 1)
	if failed {
		atomic.AddUint64(&m.metrics.InvocationsFailed, 1)
	}
}
