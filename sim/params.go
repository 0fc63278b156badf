package sim

import (
	"math"
	"sort"
	"strconv"
	"time"

	"netlag/logging"
)

// 参数面板字段名
const (
	ParamLag            = "lag" // 毫秒
	ParamPrediction     = "prediction"
	ParamReconciliation = "reconciliation"
	ParamRate           = "rate" // Hz
)

// RawParams 外部参数面板传来的原始字符串，缺失的字段保持不变
type RawParams map[string]string

// ClientParams 客户端当前可调参数
type ClientParams struct {
	LagMs          float64 `json:"lag_ms"`
	Prediction     bool    `json:"prediction"`
	Reconciliation bool    `json:"reconciliation"`
	UpdateRateHz   float64 `json:"update_rate_hz"`
}

// ServerParams 服务端当前可调参数
type ServerParams struct {
	UpdateRateHz float64 `json:"update_rate_hz"`
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseLagMs(s string) (time.Duration, bool) {
	v, ok := parseFinite(s)
	if !ok || v < 0 {
		return 0, false
	}
	return time.Duration(v * float64(time.Millisecond)), true
}

func parseRate(s string) (float64, bool) {
	v, ok := parseFinite(s)
	if !ok {
		return 0, false
	}
	if _, err := rateInterval(v); err != nil {
		return 0, false
	}
	return v, true
}

// Params 返回客户端当前参数
func (c *Client) Params() ClientParams {
	c.mu.Lock()
	p := ClientParams{
		LagMs:          float64(c.lag) / float64(time.Millisecond),
		Prediction:     c.prediction,
		Reconciliation: c.reconciliation,
	}
	c.mu.Unlock()
	p.UpdateRateHz = c.UpdateRate()
	return p
}

// ApplyParams 逐字段解析并写回；非法字段保留原值，返回被拒绝的字段名
func (c *Client) ApplyParams(raw RawParams) []string {
	var rejected []string
	for key, val := range raw {
		ok := true
		switch key {
		case ParamLag:
			var lag time.Duration
			if lag, ok = parseLagMs(val); ok {
				c.SetLag(lag)
			}
		case ParamPrediction:
			var on bool
			if on, ok = parseBool(val); ok {
				c.SetPrediction(on)
			}
		case ParamReconciliation:
			var on bool
			if on, ok = parseBool(val); ok {
				c.SetReconciliation(on)
			}
		case ParamRate:
			var hz float64
			if hz, ok = parseRate(val); ok {
				ok = c.SetUpdateRate(hz) == nil
			}
		default:
			ok = false
		}
		if !ok {
			rejected = append(rejected, key)
			logging.Log.Warnf("client %s: rejected param %s=%q, keeping previous value", c.Name(), key, val)
		}
	}
	sort.Strings(rejected)
	logging.Log.Infof("client %s params: %+v", c.Name(), c.Params())
	return rejected
}

// Params 返回服务端当前参数
func (s *Server) Params() ServerParams {
	return ServerParams{UpdateRateHz: s.UpdateRate()}
}

// ApplyParams 服务端只接受 rate；其它字段一律拒绝
func (s *Server) ApplyParams(raw RawParams) []string {
	var rejected []string
	for key, val := range raw {
		ok := false
		if key == ParamRate {
			var hz float64
			if hz, ok = parseRate(val); ok {
				ok = s.SetUpdateRate(hz) == nil
			}
		}
		if !ok {
			rejected = append(rejected, key)
			logging.Log.Warnf("server: rejected param %s=%q, keeping previous value", key, val)
		}
	}
	sort.Strings(rejected)
	logging.Log.Infof("server params: %+v", s.Params())
	return rejected
}

func parseBool(s string) (bool, bool) {
	v, err := strconv.ParseBool(s)
	return v, err == nil
}
