package sim

import (
	"context"
	"sync"
	"time"

	"netlag/logging"
)

// DefaultSpawnPositions 按客户端 id 取出生点，超出后循环使用
var DefaultSpawnPositions = []float64{4, 6}

// Tracer 广播记录器（可选）
type Tracer interface {
	Write(v any) error
}

// BroadcastRecord 一次服务端广播的记录
type BroadcastRecord struct {
	Tick   int64      `json:"tick"`
	At     time.Time  `json:"at"`
	States WorldState `json:"states"`
}

// ServerConfig 服务端构造参数
type ServerConfig struct {
	UpdateRateHz   float64
	Speed          float64
	SpawnPositions []float64
	Clock          Clock
	Renderer       Renderer
	Tracer         Tracer
}

// Server 权威世界：持有所有实体，按自己的频率 Tick
type Server struct {
	mu sync.Mutex

	entities      map[int]*Entity
	clients       []*Client
	lastProcessed map[int]int64
	tickSeq       int64

	speed    float64
	spawn    []float64
	now      Clock
	network  *LagNetwork[ClientInput]
	renderer Renderer
	tracer   Tracer

	metrics ActorMetrics
	loop    *Loop
}

// NewServer 创建服务端；零值字段使用默认值
func NewServer(cfg ServerConfig) (*Server, error) {
	s := &Server{
		entities:      make(map[int]*Entity),
		lastProcessed: make(map[int]int64),
		speed:         cfg.Speed,
		spawn:         cfg.SpawnPositions,
		now:           cfg.Clock,
		renderer:      cfg.Renderer,
		tracer:        cfg.Tracer,
	}
	if s.speed == 0 {
		s.speed = DefaultSpeed
	}
	if len(s.spawn) == 0 {
		s.spawn = DefaultSpawnPositions
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.renderer == nil {
		s.renderer = nopRenderer{}
	}
	s.network = NewLagNetwork[ClientInput](s.now)

	loop, err := newLoop(cfg.UpdateRateHz, s.Update, &s.metrics)
	if err != nil {
		return nil, err
	}
	s.loop = loop
	return s, nil
}

// Connect 接入客户端：分配下一个 id，在出生点创建实体
// 同一客户端重复接入会得到第二个实体，不做防护
func (s *Server) Connect(c *Client) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := len(s.clients)
	s.clients = append(s.clients, c)

	e := NewEntity(id, s.spawn[id%len(s.spawn)])
	e.Speed = s.speed
	s.entities[id] = e

	c.attach(id, s.network)
	logging.Log.Infof("client %s connected: id=%d spawn=%.2f lag=%s", c.Name(), id, e.Position, c.Lag())
	return id
}

// Update 一次 Tick：处理输入 → 广播世界状态 → 渲染
func (s *Server) Update() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickSeq++
	s.processInputs()
	s.broadcastWorldState()
	s.renderer.Render(sortedEntities(s.entities))
}

// processInputs 按到达顺序应用所有已到达的输入（不做合法性校验）
func (s *Server) processInputs() {
	for {
		in, ok := s.network.Receive()
		if !ok {
			return
		}
		e, ok := s.entities[in.EntityID]
		if !ok {
			s.metrics.IncUnknownEntity()
			logging.Log.Warnf("input for unknown entity %d dropped (seq=%d)", in.EntityID, in.SeqNum)
			continue
		}
		e.ApplyInput(in)
		s.lastProcessed[in.EntityID] = in.SeqNum
		s.metrics.IncInputsApplied()
	}
}

// broadcastWorldState 向所有客户端广播世界状态，每个客户端各自一份拷贝
func (s *Server) broadcastWorldState() {
	state := make(WorldState, 0, len(s.entities))
	for _, e := range sortedEntities(s.entities) {
		last, ok := s.lastProcessed[e.ID]
		if !ok {
			last = NoInputProcessed
		}
		state = append(state, EntityState{
			EntityID:           e.ID,
			Position:           e.Position,
			LastProcessedInput: last,
		})
	}

	for _, c := range s.clients {
		c.network.Send(c.Lag(), state.Clone())
		s.metrics.IncStatesSent()
	}

	if s.tracer != nil {
		rec := BroadcastRecord{Tick: s.tickSeq, At: s.now(), States: state}
		if err := s.tracer.Write(rec); err != nil {
			logging.Log.Warnf("trace write failed at tick %d: %v", s.tickSeq, err)
		}
	}
	logging.Log.Debugf("server tick %d: broadcast %d entities to %d clients", s.tickSeq, len(state), len(s.clients))
}

// Entities 当前权威实体（按 id 排序的拷贝）
func (s *Server) Entities() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedEntities(s.entities)
}

// LastProcessedInput 返回服务端已应用的该实体最大输入序列号
func (s *Server) LastProcessedInput(entityID int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastProcessed[entityID]; ok {
		return last
	}
	return NoInputProcessed
}

// TickSeq 已执行的 Tick 数
func (s *Server) TickSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickSeq
}

// InFlight 尚未被服务端取出的输入数
func (s *Server) InFlight() int { return s.network.Len() }

func (s *Server) Metrics() *ActorMetrics { return &s.metrics }

// SetUpdateRate 修改服务端频率
func (s *Server) SetUpdateRate(hz float64) error { return s.loop.SetRate(hz) }

func (s *Server) UpdateRate() float64 { return s.loop.Rate() }

// Run 按设定频率驱动 Update，直到 ctx 取消
func (s *Server) Run(ctx context.Context) error {
	logging.Log.Infof("server loop started: %.2f Hz", s.UpdateRate())
	defer logging.Log.Info("server loop stopped")
	return s.loop.Run(ctx)
}
