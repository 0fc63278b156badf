package sim

import (
	"context"
	"sync"
	"time"

	"netlag/logging"
)

// ClientConfig 客户端构造参数
type ClientConfig struct {
	Name           string
	Lag            time.Duration
	Prediction     bool
	Reconciliation bool
	UpdateRateHz   float64
	Speed          float64
	Clock          Clock
	Renderer       Renderer
}

// serverLink 已接入时持有的服务端句柄；nil 表示未接入
type serverLink struct {
	id      int
	inbound *LagNetwork[ClientInput]
}

// Client 本地镜像世界：可选预测自身输入，可选在收到权威状态时和解
type Client struct {
	mu sync.Mutex

	name     string
	link     *serverLink
	entities map[int]*Entity
	network  *LagNetwork[WorldState]

	lag            time.Duration
	prediction     bool
	reconciliation bool

	moveLeft  bool
	moveRight bool

	lastInputTime time.Time
	inputSeq      int64
	pending       []ClientInput // 已发送、尚未被服务端确认的输入

	speed    float64
	now      Clock
	renderer Renderer

	metrics ActorMetrics
	loop    *Loop
}

// NewClient 创建未接入的客户端
func NewClient(cfg ClientConfig) (*Client, error) {
	c := &Client{
		name:           cfg.Name,
		entities:       make(map[int]*Entity),
		lag:            cfg.Lag,
		prediction:     cfg.Prediction,
		reconciliation: cfg.Reconciliation,
		speed:          cfg.Speed,
		now:            cfg.Clock,
		renderer:       cfg.Renderer,
	}
	if c.lag < 0 {
		c.lag = 0
	}
	if c.speed == 0 {
		c.speed = DefaultSpeed
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.renderer == nil {
		c.renderer = nopRenderer{}
	}
	c.network = NewLagNetwork[WorldState](c.now)

	loop, err := newLoop(cfg.UpdateRateHz, c.Update, &c.metrics)
	if err != nil {
		return nil, err
	}
	c.loop = loop
	return c, nil
}

func (c *Client) attach(id int, inbound *LagNetwork[ClientInput]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = &serverLink{id: id, inbound: inbound}
}

// Update 一次 Tick：处理服务端消息 → 处理本地输入 → 渲染
func (c *Client) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processServerInput()
	c.processInput()
	c.renderer.Render(sortedEntities(c.entities))
}

func (c *Client) processServerInput() {
	for {
		states, ok := c.network.Receive()
		if !ok {
			return
		}
		c.metrics.IncStatesReceived()

		for _, st := range states {
			e, ok := c.entities[st.EntityID]
			if !ok {
				e = NewEntity(st.EntityID, st.Position)
				e.Speed = c.speed
				c.entities[st.EntityID] = e
			}
			e.Position = st.Position

			if c.link != nil && st.EntityID == c.link.id {
				c.reconcile(e, st.LastProcessedInput)
			}
		}
	}
}

// reconcile 在刚确认的权威位置上重放尚未确认的输入
// 未开启和解时直接丢弃待确认输入，预测出的位置被权威值覆盖
func (c *Client) reconcile(self *Entity, lastProcessed int64) {
	if !c.reconciliation {
		c.metrics.AddPendingCleared(len(c.pending))
		c.pending = nil
		return
	}

	kept := c.pending[:0]
	for _, in := range c.pending {
		if in.SeqNum <= lastProcessed {
			continue
		}
		self.ApplyInput(in)
		kept = append(kept, in)
	}
	c.pending = kept
	c.metrics.IncReconciliations()
	c.metrics.AddInputsReplayed(len(kept))
}

func (c *Client) processInput() {
	if c.link == nil {
		return
	}

	now := c.now()
	last := c.lastInputTime
	if last.IsZero() {
		last = now
	}
	elapsed := now.Sub(last).Seconds()
	c.lastInputTime = now

	var press float64
	switch {
	case c.moveLeft:
		press = -elapsed
	case c.moveRight:
		press = elapsed
	default:
		return
	}

	in := ClientInput{EntityID: c.link.id, PressTime: press, SeqNum: c.inputSeq}
	c.inputSeq++
	c.link.inbound.Send(c.lag, in)
	c.metrics.IncInputsSent()

	if c.prediction {
		// 自身实体要等第一份权威状态到达后才存在
		if self, ok := c.entities[c.link.id]; ok {
			self.ApplyInput(in)
		}
	}
	c.pending = append(c.pending, in)
}

// SetMove 写入方向键按下/松开
func (c *Client) SetMove(dir Direction, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch dir {
	case DirLeft:
		c.moveLeft = active
	case DirRight:
		c.moveRight = active
	}
}

func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// ID 返回服务端分配的 id；未接入时 ok 为 false
func (c *Client) ID() (id int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return 0, false
	}
	return c.link.id, true
}

func (c *Client) Lag() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lag
}

func (c *Client) SetLag(lag time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lag < 0 {
		lag = 0
	}
	c.lag = lag
}

func (c *Client) SetPrediction(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prediction = on
}

func (c *Client) SetReconciliation(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconciliation = on
}

// Entities 本地镜像（按 id 排序的拷贝）
func (c *Client) Entities() []Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedEntities(c.entities)
}

// Entity 按 id 查询本地镜像
func (c *Client) Entity(id int) (Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Pending 待确认输入的拷贝
func (c *Client) Pending() []ClientInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ClientInput, len(c.pending))
	copy(out, c.pending)
	return out
}

func (c *Client) Metrics() *ActorMetrics { return &c.metrics }

// SetUpdateRate 修改客户端频率
func (c *Client) SetUpdateRate(hz float64) error { return c.loop.SetRate(hz) }

func (c *Client) UpdateRate() float64 { return c.loop.Rate() }

// Run 按设定频率驱动 Update，直到 ctx 取消
func (c *Client) Run(ctx context.Context) error {
	logging.Log.Infof("client %s loop started: %.2f Hz", c.Name(), c.UpdateRate())
	defer logging.Log.Infof("client %s loop stopped", c.Name())
	return c.loop.Run(ctx)
}
