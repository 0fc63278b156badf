package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config 场景配置：一个服务端 + 若干客户端
type Config struct {
	HTTP    HTTP     `yaml:"http"`
	Log     Log      `yaml:"log"`
	Trace   Trace    `yaml:"trace"`
	Server  Server   `yaml:"server"`
	Clients []Client `yaml:"clients"`
}

type HTTP struct {
	Addr   string `yaml:"addr"`
	WebDir string `yaml:"web_dir"`
	// 每个观察者每秒允许的意图消息数
	IntentRate  float64 `yaml:"intent_rate"`
	IntentBurst int     `yaml:"intent_burst"`
}

type Log struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Trace 为空目录时不记录
type Trace struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

type Server struct {
	UpdateRateHz   float64   `yaml:"update_rate_hz"`
	Speed          float64   `yaml:"speed"`
	SpawnPositions []float64 `yaml:"spawn_positions"`
}

type Client struct {
	Name           string  `yaml:"name"`
	LagMs          float64 `yaml:"lag_ms"`
	UpdateRateHz   float64 `yaml:"update_rate_hz"`
	Prediction     bool    `yaml:"prediction"`
	Reconciliation bool    `yaml:"reconciliation"`
}

// Lag 以 time.Duration 表示的延迟
func (c Client) Lag() time.Duration {
	return time.Duration(c.LagMs * float64(time.Millisecond))
}

// Default 两个客户端、服务端 4Hz 的演示场景
func Default() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080", WebDir: "web/static", IntentRate: 30, IntentBurst: 10},
		Log:  Log{File: "app.log", Level: "debug"},
		Trace: Trace{
			Prefix: "broadcast",
		},
		Server: Server{UpdateRateHz: 4, Speed: 2, SpawnPositions: []float64{4, 6}},
		Clients: []Client{
			{Name: "player1", LagMs: 150, UpdateRateHz: 60},
			{Name: "player2", LagMs: 250, UpdateRateHz: 60},
		},
	}
}

// Load 读取 YAML，覆盖在默认值之上并校验
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	for i := range cfg.Clients {
		if cfg.Clients[i].UpdateRateHz == 0 {
			cfg.Clients[i].UpdateRateHz = 60
		}
		if cfg.Clients[i].Name == "" {
			cfg.Clients[i].Name = fmt.Sprintf("player%d", i+1)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查频率为正、延迟非负
func (c Config) Validate() error {
	var err error
	if c.Server.UpdateRateHz <= 0 {
		err = multierr.Append(err, fmt.Errorf("server.update_rate_hz must be > 0, got %v", c.Server.UpdateRateHz))
	}
	if c.Server.Speed <= 0 {
		err = multierr.Append(err, fmt.Errorf("server.speed must be > 0, got %v", c.Server.Speed))
	}
	if len(c.Server.SpawnPositions) == 0 {
		err = multierr.Append(err, errors.New("server.spawn_positions must not be empty"))
	}
	if len(c.Clients) == 0 {
		err = multierr.Append(err, errors.New("at least one client is required"))
	}
	for i, cl := range c.Clients {
		if cl.LagMs < 0 {
			err = multierr.Append(err, fmt.Errorf("clients[%d].lag_ms must be >= 0, got %v", i, cl.LagMs))
		}
		if cl.UpdateRateHz <= 0 {
			err = multierr.Append(err, fmt.Errorf("clients[%d].update_rate_hz must be > 0, got %v", i, cl.UpdateRateHz))
		}
	}
	if c.HTTP.IntentRate <= 0 || c.HTTP.IntentBurst <= 0 {
		err = multierr.Append(err, errors.New("http.intent_rate and http.intent_burst must be > 0"))
	}
	return err
}
