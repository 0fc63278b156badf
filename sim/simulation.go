package sim

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"netlag/config"
)

// ServerView 服务端渲染面的名字
const ServerView = "server"

// SurfaceFactory 为每个参与者提供渲染面，view 为服务端或客户端名字
type SurfaceFactory func(view string) Renderer

// Simulation 一个服务端与若干已接入客户端
type Simulation struct {
	Server  *Server
	Clients []*Client
}

// NewSimulation 按配置创建服务端与客户端并完成接入
func NewSimulation(cfg config.Config, surfaces SurfaceFactory, tracer Tracer, clock Clock) (*Simulation, error) {
	if surfaces == nil {
		surfaces = func(string) Renderer { return nopRenderer{} }
	}

	srv, err := NewServer(ServerConfig{
		UpdateRateHz:   cfg.Server.UpdateRateHz,
		Speed:          cfg.Server.Speed,
		SpawnPositions: cfg.Server.SpawnPositions,
		Clock:          clock,
		Renderer:       surfaces(ServerView),
		Tracer:         tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Simulation{Server: srv}
	for i, cc := range cfg.Clients {
		c, err := NewClient(ClientConfig{
			Name:           cc.Name,
			Lag:            cc.Lag(),
			Prediction:     cc.Prediction,
			Reconciliation: cc.Reconciliation,
			UpdateRateHz:   cc.UpdateRateHz,
			Speed:          cfg.Server.Speed,
			Clock:          clock,
			Renderer:       surfaces(cc.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("client %d (%s): %w", i, cc.Name, err)
		}
		srv.Connect(c)
		s.Clients = append(s.Clients, c)
	}
	return s, nil
}

// Client 按服务端分配的 id 查找客户端
func (s *Simulation) Client(id int) (*Client, bool) {
	for _, c := range s.Clients {
		if cid, ok := c.ID(); ok && cid == id {
			return c, true
		}
	}
	return nil, false
}

// Run 每个参与者各自一个 goroutine，直到 ctx 取消
func (s *Simulation) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Server.Run(ctx) })
	for _, c := range s.Clients {
		c := c
		g.Go(func() error { return c.Run(ctx) })
	}
	return g.Wait()
}
