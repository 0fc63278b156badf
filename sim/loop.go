package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Loop 单个参与者的周期驱动：同一参与者的 Tick 串行执行，互不重叠
type Loop struct {
	step    func()
	metrics *ActorMetrics

	mu     sync.Mutex
	hz     float64
	rateCh chan struct{}
}

func newLoop(hz float64, step func(), metrics *ActorMetrics) (*Loop, error) {
	l := &Loop{step: step, metrics: metrics, rateCh: make(chan struct{}, 1)}
	if err := l.SetRate(hz); err != nil {
		return nil, err
	}
	return l, nil
}

func rateInterval(hz float64) (time.Duration, error) {
	if math.IsNaN(hz) || math.IsInf(hz, 0) || hz <= 0 {
		return 0, fmt.Errorf("update rate must be a positive number, got %v", hz)
	}
	d := time.Duration(float64(time.Second) / hz)
	if d <= 0 {
		return 0, fmt.Errorf("update rate %v too high", hz)
	}
	return d, nil
}

// SetRate 修改频率；运行中会重置定时器，不影响信道中的在途消息
func (l *Loop) SetRate(hz float64) error {
	if _, err := rateInterval(hz); err != nil {
		return err
	}
	l.mu.Lock()
	l.hz = hz
	l.mu.Unlock()
	select {
	case l.rateCh <- struct{}{}:
	default:
	}
	return nil
}

// Rate 当前频率（Hz）
func (l *Loop) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hz
}

func (l *Loop) interval() time.Duration {
	d, _ := rateInterval(l.Rate())
	return d
}

// Run 阻塞运行直到 ctx 取消
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.rateCh:
			ticker.Reset(l.interval())
		case <-ticker.C:
			start := time.Now()
			l.step()
			if l.metrics != nil {
				l.metrics.AddTick(time.Since(start).Nanoseconds())
			}
		}
	}
}
