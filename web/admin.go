package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"netlag/sim"
)

// Admin 参数面板与监控接口
type Admin struct {
	sim *sim.Simulation
	hub *Hub
}

func NewAdmin(s *sim.Simulation, h *Hub) *Admin {
	return &Admin{sim: s, hub: h}
}

type clientParamsView struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	sim.ClientParams
}

type paramsView struct {
	Server  sim.ServerParams   `json:"server"`
	Clients []clientParamsView `json:"clients"`
}

func (a *Admin) params() paramsView {
	out := paramsView{Server: a.sim.Server.Params()}
	for _, c := range a.sim.Clients {
		id, _ := c.ID()
		out.Clients = append(out.Clients, clientParamsView{ID: id, Name: c.Name(), ClientParams: c.Params()})
	}
	return out
}

var paramKeys = []string{sim.ParamLag, sim.ParamPrediction, sim.ParamReconciliation, sim.ParamRate}

// HandleParams 读取与更新参数
// GET  /admin/params                      返回服务端与所有客户端的当前参数
// POST /admin/params?target=server|<id>   以表单字段 lag/prediction/reconciliation/rate 更新
// 非法字段保留原值，并在 rejected 中返回
func (a *Admin) HandleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.params())
		return
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		raw := sim.RawParams{}
		for _, k := range paramKeys {
			if _, ok := r.Form[k]; ok {
				raw[k] = r.Form.Get(k)
			}
		}

		var rejected []string
		target := r.URL.Query().Get("target")
		if target == "server" {
			rejected = a.sim.Server.ApplyParams(raw)
		} else {
			id, err := strconv.Atoi(target)
			if err != nil {
				http.Error(w, "target must be server or a client id", http.StatusBadRequest)
				return
			}
			c, ok := a.sim.Client(id)
			if !ok {
				http.Error(w, "unknown client", http.StatusNotFound)
				return
			}
			rejected = c.ApplyParams(raw)
		}
		if rejected == nil {
			rejected = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": len(rejected) == 0, "rejected": rejected, "params": a.params()})
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
