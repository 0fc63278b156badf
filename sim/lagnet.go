package sim

import (
	"sync"
	"time"
)

// Clock 时间源，测试中替换为可手动推进的时钟
type Clock func() time.Time

type pending[T any] struct {
	deliverAt time.Time
	payload   T
}

// LagNetwork 单向、无丢失的延迟信道：按入队顺序排队，到达时间之后才可取出
// 发送方与接收方可以在不同 goroutine 上调用
type LagNetwork[T any] struct {
	mu    sync.Mutex
	now   Clock
	queue []pending[T]
}

// NewLagNetwork 创建延迟信道；now 为 nil 时使用墙钟
func NewLagNetwork[T any](now Clock) *LagNetwork[T] {
	if now == nil {
		now = time.Now
	}
	return &LagNetwork[T]{now: now}
}

// Send 发送一条消息，假装在 now+lag 时刻到达
func (n *LagNetwork[T]) Send(lag time.Duration, payload T) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, pending[T]{deliverAt: n.now().Add(lag), payload: payload})
}

// Receive 取出最早入队且已到达的一条消息；没有到达的消息时 ok 为 false
// 每次只取一条，调用方需循环直到 ok 为 false
func (n *LagNetwork[T]) Receive() (payload T, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	for i, m := range n.queue {
		if !m.deliverAt.After(now) {
			n.queue = append(n.queue[:i], n.queue[i+1:]...)
			return m.payload, true
		}
	}
	return payload, false
}

// Len 当前仍在途（未被取出）的消息数
func (n *LagNetwork[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
