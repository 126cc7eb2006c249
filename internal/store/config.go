package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	UniverseFile string `yaml:"universe_file"`
	ReportDir    string `yaml:"report_dir"`
	Broker       struct {
		Provider              string `yaml:"provider"`
		Host                  string `yaml:"host"`
		Port                  int    `yaml:"port"`
		ClientID              int64  `yaml:"client_id"`
		ConnectAttempts       int    `yaml:"connect_attempts"`
		ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
		ReconnectDelays       []int  `yaml:"reconnect_delays_seconds"`
		MarketDataType        int    `yaml:"market_data_type"`
		Exchange              string `yaml:"exchange"`
		Currency              string `yaml:"currency"`
		Kite                  struct {
			Exchange string `yaml:"exchange"`
		} `yaml:"kite"`
		Alpaca struct {
			Feed   string  `yaml:"feed"`
			MaxRPS float64 `yaml:"max_rps"`
		} `yaml:"alpaca"`
	} `yaml:"broker"`
	Cache struct {
		Backend       string `yaml:"backend"`
		Path          string `yaml:"path"`
		DSN           string `yaml:"dsn"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisKey      string `yaml:"redis_key"`
		Windows       []int  `yaml:"windows"`
		PacingDelayMS int    `yaml:"pacing_delay_ms"`
		Cutoff        string `yaml:"cutoff"`
		AutoRebuild   bool   `yaml:"auto_rebuild"`
	} `yaml:"cache"`
	Scan struct {
		BatchSize int `yaml:"batch_size"`
		SettleMS  int `yaml:"settle_ms"`
		PaceMS    int `yaml:"pace_ms"`
	} `yaml:"scan"`
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		BaseURL     string  `yaml:"base_url"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
	} `yaml:"llm"`
	Publish struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"publish"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

func (c *Config) Validate() error {
	switch c.Broker.Provider {
	case "IBKR", "KITE", "ALPACA", "STATIC":
	default:
		return fmt.Errorf("invalid broker.provider '%s': must be 'IBKR', 'KITE', 'ALPACA' or 'STATIC'", c.Broker.Provider)
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port must be between 1-65535, got %d", c.Broker.Port)
	}
	if c.Broker.ConnectAttempts <= 0 {
		return fmt.Errorf("broker.connect_attempts must be positive, got %d", c.Broker.ConnectAttempts)
	}
	if c.Broker.MarketDataType < 0 || c.Broker.MarketDataType > 4 {
		return fmt.Errorf("broker.market_data_type must be between 0-4, got %d", c.Broker.MarketDataType)
	}
	for _, d := range c.Broker.ReconnectDelays {
		if d <= 0 {
			return fmt.Errorf("broker.reconnect_delays_seconds must be positive, got %d", d)
		}
	}
	if c.Broker.Alpaca.Feed != "iex" && c.Broker.Alpaca.Feed != "sip" {
		return fmt.Errorf("broker.alpaca.feed must be 'iex' or 'sip', got '%s'", c.Broker.Alpaca.Feed)
	}
	switch c.Cache.Backend {
	case "sqlite":
		if c.Cache.Path == "" {
			return errors.New("cache.path cannot be empty for sqlite backend")
		}
	case "postgres":
		if c.Cache.DSN == "" {
			return errors.New("cache.dsn cannot be empty for postgres backend")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr cannot be empty for redis backend")
		}
	default:
		return fmt.Errorf("invalid cache.backend '%s': must be 'sqlite', 'postgres' or 'redis'", c.Cache.Backend)
	}
	for _, w := range c.Cache.Windows {
		if w <= 0 {
			return fmt.Errorf("cache.windows must be positive, got %d", w)
		}
	}
	if _, _, err := c.CutoffClock(); err != nil {
		return err
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan.batch_size must be positive, got %d", c.Scan.BatchSize)
	}
	switch c.LLM.Provider {
	case "OPENAI", "CLAUDE", "NONE":
	default:
		return fmt.Errorf("llm.provider must be 'OPENAI', 'CLAUDE' or 'NONE', got '%s'", c.LLM.Provider)
	}
	return nil
}

// CutoffClock parses cache.cutoff ("HH:MM", Eastern time).
func (c *Config) CutoffClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.Cache.Cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("cache.cutoff must be HH:MM, got '%s'", c.Cache.Cutoff)
	}
	return t.Hour(), t.Minute(), nil
}

func (c *Config) ReconnectDelayDurations() []time.Duration {
	out := make([]time.Duration, 0, len(c.Broker.ReconnectDelays))
	for _, d := range c.Broker.ReconnectDelays {
		out = append(out, time.Duration(d)*time.Second)
	}
	return out
}

func (c *Config) PacingDelay() time.Duration {
	return time.Duration(c.Cache.PacingDelayMS) * time.Millisecond
}

func (c *Config) SettleWindow() time.Duration {
	return time.Duration(c.Scan.SettleMS) * time.Millisecond
}

func (c *Config) BatchPause() time.Duration {
	return time.Duration(c.Scan.PaceMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Broker.RequestTimeoutSeconds) * time.Second
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Broker.ConnectTimeoutSeconds) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)
	if err := applyEnv(&c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.UniverseFile == "" {
		c.UniverseFile = "clean-tickers.txt"
	}
	if c.ReportDir == "" {
		c.ReportDir = "reports"
	}
	if c.Broker.Provider == "" {
		c.Broker.Provider = "IBKR"
	}
	if c.Broker.Host == "" {
		c.Broker.Host = "127.0.0.1"
	}
	if c.Broker.Port == 0 {
		c.Broker.Port = 7497
	}
	if c.Broker.ClientID == 0 {
		c.Broker.ClientID = 1
	}
	if c.Broker.ConnectAttempts == 0 {
		c.Broker.ConnectAttempts = 10
	}
	if c.Broker.ConnectTimeoutSeconds == 0 {
		c.Broker.ConnectTimeoutSeconds = 5
	}
	if c.Broker.RequestTimeoutSeconds == 0 {
		c.Broker.RequestTimeoutSeconds = 30
	}
	if len(c.Broker.ReconnectDelays) == 0 {
		c.Broker.ReconnectDelays = []int{2, 5, 10, 20, 30, 60, 90, 120}
	}
	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "SMART"
	}
	if c.Broker.Currency == "" {
		c.Broker.Currency = "USD"
	}
	if c.Broker.Kite.Exchange == "" {
		c.Broker.Kite.Exchange = "NSE"
	}
	if c.Broker.Alpaca.Feed == "" {
		c.Broker.Alpaca.Feed = "iex"
	}
	if c.Broker.Alpaca.MaxRPS == 0 {
		c.Broker.Alpaca.MaxRPS = 10
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "sqlite"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "sma_cache.db"
	}
	if c.Cache.RedisKey == "" {
		c.Cache.RedisKey = "sma_cache"
	}
	if len(c.Cache.Windows) == 0 {
		c.Cache.Windows = []int{50, 100, 200}
	}
	if c.Cache.PacingDelayMS == 0 {
		c.Cache.PacingDelayMS = 800
	}
	if c.Cache.Cutoff == "" {
		c.Cache.Cutoff = "16:15"
	}
	if c.Scan.BatchSize == 0 {
		c.Scan.BatchSize = 20
	}
	if c.Scan.SettleMS == 0 {
		c.Scan.SettleMS = 1600
	}
	if c.Scan.PaceMS == 0 {
		c.Scan.PaceMS = 100
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "NONE"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
		if c.LLM.Provider == "CLAUDE" {
			c.LLM.Model = "claude-3-5-haiku-latest"
		}
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 512
	}
	if c.Publish.KafkaTopic == "" {
		c.Publish.KafkaTopic = "sma-scan"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// applyEnv lets the environment override the broker endpoint and file paths.
func applyEnv(c *Config) error {
	if v := os.Getenv("IB_HOST"); v != "" {
		c.Broker.Host = v
	}
	if v := os.Getenv("IB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IB_PORT '%s': %w", v, err)
		}
		c.Broker.Port = port
	}
	if v := os.Getenv("IB_CLIENT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid IB_CLIENT_ID '%s': %w", v, err)
		}
		c.Broker.ClientID = id
	}
	if v := os.Getenv("UNIVERSE_FILE"); v != "" {
		c.UniverseFile = v
	}
	if v := os.Getenv("SMA_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	return nil
}
