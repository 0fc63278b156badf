package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"netlag/logging"
	"netlag/sim"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// IntentMessage 入站意图（WebSocket 文本消息）
// 示例：{"type":"move","client":0,"direction":"left","active":true}
type IntentMessage struct {
	Type      string `json:"type"`
	Client    int    `json:"client"`
	Direction string `json:"direction"`
	Active    bool   `json:"active"`
}

// FrameMessage 出站渲染帧：某个视图（服务端或某客户端）当前的实体
type FrameMessage struct {
	Type     string       `json:"type"`
	View     string       `json:"view"`
	Entities []sim.Entity `json:"entities"`
}

// HubMetrics 观察者连接相关计数
type HubMetrics struct {
	FramesSent      int64
	FramesDropped   int64
	IntentsApplied  int64
	IntentsRejected int64
	RateLimited     int64
}

func (m *HubMetrics) Snapshot(viewers int) map[string]any {
	return map[string]any{
		"viewers":          viewers,
		"frames_sent":      atomic.LoadInt64(&m.FramesSent),
		"frames_dropped":   atomic.LoadInt64(&m.FramesDropped),
		"intents_applied":  atomic.LoadInt64(&m.IntentsApplied),
		"intents_rejected": atomic.LoadInt64(&m.IntentsRejected),
		"rate_limited":     atomic.LoadInt64(&m.RateLimited),
	}
}

// ViewerConn 一个浏览器观察者：写协程发送渲染帧，读协程接收意图
type ViewerConn struct {
	ID string

	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

// Hub 管理所有观察者，既是渲染面也是意图来源
type Hub struct {
	mu      sync.RWMutex
	viewers map[string]*ViewerConn
	sim     *sim.Simulation

	intentRate  rate.Limit
	intentBurst int

	metrics  HubMetrics
	upgrader websocket.Upgrader
}

// NewHub intentRate 为每个观察者每秒允许的意图数
func NewHub(intentRate float64, intentBurst int) *Hub {
	return &Hub{
		viewers:     make(map[string]*ViewerConn),
		intentRate:  rate.Limit(intentRate),
		intentBurst: intentBurst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 演示环境：允许所有来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Bind 绑定意图的目标模拟
func (h *Hub) Bind(s *sim.Simulation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sim = s
}

// Surface 返回指定视图的渲染面
func (h *Hub) Surface(view string) sim.Renderer {
	return sim.RendererFunc(func(entities []sim.Entity) {
		b, err := json.Marshal(FrameMessage{Type: "frame", View: view, Entities: entities})
		if err != nil {
			logging.Log.Errorf("marshal frame for %s: %v", view, err)
			return
		}
		h.broadcast(b)
	})
}

func (h *Hub) broadcast(b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.viewers {
		// 非阻塞：队列满则丢弃，避免拖慢 Tick
		select {
		case v.send <- b:
			atomic.AddInt64(&h.metrics.FramesSent, 1)
		default:
			atomic.AddInt64(&h.metrics.FramesDropped, 1)
		}
	}
}

func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) Metrics() map[string]any { return h.metrics.Snapshot(h.ViewerCount()) }

func (h *Hub) register(ws *websocket.Conn) *ViewerConn {
	v := &ViewerConn{
		ID:      uuid.NewString(),
		ws:      ws,
		send:    make(chan []byte, 64),
		limiter: rate.NewLimiter(h.intentRate, h.intentBurst),
	}
	h.mu.Lock()
	h.viewers[v.ID] = v
	h.mu.Unlock()
	logging.Log.Infof("viewer %s connected from %s", v.ID, ws.RemoteAddr())
	return v
}

// unregister 先从表中移除再关闭发送队列，broadcast 不会写入已关闭的通道
func (h *Hub) unregister(v *ViewerConn) {
	h.mu.Lock()
	if _, ok := h.viewers[v.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.viewers, v.ID)
	h.mu.Unlock()
	close(v.send)
	logging.Log.Infof("viewer %s disconnected", v.ID)
}

// Close 断开所有观察者
func (h *Hub) Close() error {
	h.mu.Lock()
	viewers := make([]*ViewerConn, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()
	for _, v := range viewers {
		h.unregister(v)
	}
	return nil
}

// applyIntent 将意图写入对应客户端的方向键状态
func (h *Hub) applyIntent(v *ViewerConn, im IntentMessage) {
	if !v.limiter.Allow() {
		atomic.AddInt64(&h.metrics.RateLimited, 1)
		return
	}
	dir, ok := sim.ParseDirection(strings.ToLower(im.Direction))
	if !ok {
		atomic.AddInt64(&h.metrics.IntentsRejected, 1)
		logging.Log.Warnf("viewer %s: unknown direction %q", v.ID, im.Direction)
		return
	}

	h.mu.RLock()
	s := h.sim
	h.mu.RUnlock()
	if s == nil {
		atomic.AddInt64(&h.metrics.IntentsRejected, 1)
		return
	}
	c, ok := s.Client(im.Client)
	if !ok {
		atomic.AddInt64(&h.metrics.IntentsRejected, 1)
		logging.Log.Warnf("viewer %s: intent for unknown client %d", v.ID, im.Client)
		return
	}
	c.SetMove(dir, im.Active)
	atomic.AddInt64(&h.metrics.IntentsApplied, 1)
	logging.Log.Debugf("client %d %s active=%v", im.Client, dir, im.Active)
}

// writePump 独立协程，负责从 send 队列写出到 WS
func (v *ViewerConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = v.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-v.send:
			_ = v.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取观察者的意图消息
func (v *ViewerConn) readPump(h *Hub) {
	defer func() {
		h.unregister(v)
		_ = v.ws.Close()
	}()
	v.ws.SetReadLimit(1 << 16)
	_ = v.ws.SetReadDeadline(time.Now().Add(pongWait))
	v.ws.SetPongHandler(func(string) error { return v.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := v.ws.ReadMessage()
		if err != nil {
			return
		}
		var im IntentMessage
		if err := json.Unmarshal(payload, &im); err != nil {
			atomic.AddInt64(&h.metrics.IntentsRejected, 1)
			continue
		}
		if strings.ToLower(im.Type) != "move" {
			atomic.AddInt64(&h.metrics.IntentsRejected, 1)
			continue
		}
		h.applyIntent(v, im)
	}
}

// HandleWS WebSocket 接入：/ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Log.Warnf("upgrade error: %v", err)
		return
	}
	v := h.register(ws)
	go v.writePump()
	go v.readPump(h)
}
