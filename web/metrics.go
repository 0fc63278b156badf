package web

import "net/http"

// HandleMetrics 输出服务端、各客户端与观察者的运行指标
// GET /metrics
func (a *Admin) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	srv := a.sim.Server
	clients := make([]map[string]any, 0, len(a.sim.Clients))
	for _, c := range a.sim.Clients {
		id, _ := c.ID()
		clients = append(clients, map[string]any{
			"id":      id,
			"name":    c.Name(),
			"pending": len(c.Pending()),
			"metrics": c.Metrics().Snapshot(),
		})
	}
	payload := map[string]any{
		"server": map[string]any{
			"tick":      srv.TickSeq(),
			"in_flight": srv.InFlight(),
			"metrics":   srv.Metrics().Snapshot(),
		},
		"clients": clients,
	}
	if a.hub != nil {
		payload["viewers"] = a.hub.Metrics()
	}
	writeJSON(w, http.StatusOK, payload)
}

// Routes 挂载所有接口；webDir 为空时不提供静态页面
func (a *Admin) Routes(webDir string) *http.ServeMux {
	mux := http.NewServeMux()
	if a.hub != nil {
		mux.HandleFunc("/ws", a.hub.HandleWS)
	}
	mux.HandleFunc("/admin/params", a.HandleParams)
	mux.HandleFunc("/metrics", a.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if webDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(webDir)))
	}
	return mux
}
