package sim

import (
	"sync/atomic"
)

// ActorMetrics 记录单个参与者（服务端或客户端）运行期的关键指标
type ActorMetrics struct {
	TickCount       int64 // Tick 次数
	TotalTickNs     int64 // Tick 累计耗时（纳秒）
	InputsSent      int64 // 客户端发出的输入数
	InputsApplied   int64 // 服务端应用的输入数
	UnknownEntity   int64 // 服务端因实体不存在而丢弃的输入数
	StatesSent      int64 // 服务端发出的广播数（每客户端计一次）
	StatesReceived  int64 // 客户端收到的广播数
	Reconciliations int64 // 客户端执行的和解次数
	InputsReplayed  int64 // 和解时重放的输入数
	PendingCleared  int64 // 未开启和解时被直接清空的待确认输入数
}

func (m *ActorMetrics) IncInputsSent() { atomic.AddInt64(&m.InputsSent, 1) }
func (m *ActorMetrics) IncInputsApplied() { atomic.AddInt64(&m.InputsApplied, 1) }
func (m *ActorMetrics) IncUnknownEntity() { atomic.AddInt64(&m.UnknownEntity, 1) }
func (m *ActorMetrics) IncStatesSent() { atomic.AddInt64(&m.StatesSent, 1) }
func (m *ActorMetrics) IncStatesReceived() { atomic.AddInt64(&m.StatesReceived, 1) }
func (m *ActorMetrics) IncReconciliations() { atomic.AddInt64(&m.Reconciliations, 1) }
func (m *ActorMetrics) AddInputsReplayed(n int) { atomic.AddInt64(&m.InputsReplayed, int64(n)) }
func (m *ActorMetrics) AddPendingCleared(n int) { atomic.AddInt64(&m.PendingCleared, int64(n)) }
func (m *ActorMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *ActorMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":      tick,
		"avg_tick_ms":     avgMs,
		"inputs_sent":     atomic.LoadInt64(&m.InputsSent),
		"inputs_applied":  atomic.LoadInt64(&m.InputsApplied),
		"unknown_entity":  atomic.LoadInt64(&m.UnknownEntity),
		"states_sent":     atomic.LoadInt64(&m.StatesSent),
		"states_received": atomic.LoadInt64(&m.StatesReceived),
		"reconciliations": atomic.LoadInt64(&m.Reconciliations),
		"inputs_replayed": atomic.LoadInt64(&m.InputsReplayed),
		"pending_cleared": atomic.LoadInt64(&m.PendingCleared),
	}
}
