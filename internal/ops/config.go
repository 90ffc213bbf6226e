package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/scheduler"
	"main/internal/store"
	"main/internal/venue"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Server    ServerConfig    `json:"server"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Venues    []VenueConfig   `json:"venues"`
	Pairs     []PairConfig    `json:"pairs"`
	Storage   StorageConfig   `json:"storage"`
	Profiling ProfilingConfig `json:"profiling"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// SchedulerConfig bounds order execution.
type SchedulerConfig struct {
	Workers         int `json:"workers"`
	QueueSize       int `json:"queueSize"`
	OrdersPerMinute int `json:"ordersPerMinute"`
	MaxAttempts     int `json:"maxAttempts"`
	BaseBackoffMs   int `json:"baseBackoffMs"`
	MaxBackoffMs    int `json:"maxBackoffMs"`
}

// PipelineConfig controls pipeline stage timing.
type PipelineConfig struct {
	BuildDelayMs int `json:"buildDelayMs"`
}

// VenueConfig describes one simulated venue. Profile selects the built-in
// variance policy; an explicit seed makes the venue deterministic.
type VenueConfig struct {
	Name    string `json:"name"`
	Profile string `json:"profile"`
	Seed    int64  `json:"seed"`
}

// PairConfig sets the reference price for a tradeable asset pair.
type PairConfig struct {
	Input     string  `json:"input"`
	Output    string  `json:"output"`
	BasePrice float64 `json:"basePrice"`
}

// StorageConfig describes the optional Postgres audit store.
type StorageConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// ProfilingConfig enables the pyroscope profiler.
type ProfilingConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Addr       string
	Scheduler  scheduler.Config
	BuildDelay time.Duration
	Venues     []venue.Venue
	Storage    StorageConfig
	Profiling  ProfilingConfig
}

// Load reads a JSON config file and resolves it. An empty path yields the
// default in-memory deployment.
func Load(path string) (Loaded, error) {
	cfg := defaultFileConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, err
		}
	}
	return resolve(cfg)
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Server: ServerConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{
			Workers:         4,
			QueueSize:       256,
			OrdersPerMinute: 60,
			MaxAttempts:     3,
			BaseBackoffMs:   500,
		},
		Pipeline: PipelineConfig{BuildDelayMs: 200},
		Venues: []VenueConfig{
			{Name: "raydium", Profile: "raydium"},
			{Name: "meteora", Profile: "meteora"},
		},
		Pairs: []PairConfig{
			{Input: "SOL", Output: "USDC", BasePrice: 150},
			{Input: "USDC", Output: "SOL", BasePrice: 1.0 / 150},
		},
	}
}

func resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Scheduler.Workers < 0 {
		return Loaded{}, fmt.Errorf("scheduler workers must be >= 0")
	}
	if cfg.Scheduler.OrdersPerMinute < 0 {
		return Loaded{}, fmt.Errorf("scheduler ordersPerMinute must be >= 0")
	}
	if cfg.Scheduler.MaxAttempts < 0 {
		return Loaded{}, fmt.Errorf("scheduler maxAttempts must be >= 0")
	}
	if cfg.Pipeline.BuildDelayMs < 0 {
		return Loaded{}, fmt.Errorf("pipeline buildDelayMs must be >= 0")
	}
	if len(cfg.Venues) == 0 {
		return Loaded{}, fmt.Errorf("at least one venue is required")
	}
	if len(cfg.Pairs) == 0 {
		return Loaded{}, fmt.Errorf("at least one pair is required")
	}

	prices := make(map[string]float64, len(cfg.Pairs))
	for _, pair := range cfg.Pairs {
		if pair.Input == "" || pair.Output == "" {
			return Loaded{}, fmt.Errorf("pair assets must not be empty")
		}
		if pair.BasePrice <= 0 {
			return Loaded{}, fmt.Errorf("base price for %s/%s must be > 0", pair.Input, pair.Output)
		}
		prices[pair.Input+"/"+pair.Output] = pair.BasePrice
	}

	venues := make([]venue.Venue, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		v, err := buildVenue(vc, prices)
		if err != nil {
			return Loaded{}, err
		}
		venues = append(venues, v)
	}

	return Loaded{
		Addr: cfg.Server.Addr,
		Scheduler: scheduler.Config{
			Workers:         cfg.Scheduler.Workers,
			QueueSize:       cfg.Scheduler.QueueSize,
			OrdersPerMinute: cfg.Scheduler.OrdersPerMinute,
			MaxAttempts:     cfg.Scheduler.MaxAttempts,
			BaseBackoff:     time.Duration(cfg.Scheduler.BaseBackoffMs) * time.Millisecond,
			MaxBackoff:      time.Duration(cfg.Scheduler.MaxBackoffMs) * time.Millisecond,
		},
		BuildDelay: time.Duration(cfg.Pipeline.BuildDelayMs) * time.Millisecond,
		Venues:     venues,
		Storage:    cfg.Storage,
		Profiling:  cfg.Profiling,
	}, nil
}

func buildVenue(vc VenueConfig, prices map[string]float64) (venue.Venue, error) {
	profile := vc.Profile
	if profile == "" {
		profile = vc.Name
	}
	switch profile {
	case "raydium":
		return venue.NewMock(vc.Name, venue.RaydiumProfile(), prices, vc.Seed)
	case "meteora":
		return venue.NewMock(vc.Name, venue.MeteoraProfile(), prices, vc.Seed)
	default:
		return nil, fmt.Errorf("unknown venue profile: %s", profile)
	}
}

// StoreOption converts the storage section into connection options.
func (c StorageConfig) StoreOption() store.Option {
	return store.Option{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
		SSLMode:  c.SSLMode,
	}
}
