package infra

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trade_ingest/internal/domain"
)

const (
	defaultWSURL             = "wss://ws.finnhub.io"
	defaultSubscribeInterval = 60
	defaultHandshakeTimeout  = 10
	defaultWriteTimeout      = 10
	defaultSinkWriteTimeout  = 5
	defaultDrainTimeout      = 5
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		WSURL                string   `yaml:"ws_url"`
		Token                string   `yaml:"token"`
		Symbols              []string `yaml:"symbols"`
		SubscribeIntervalSec int      `yaml:"subscribe_interval_sec"`
		HandshakeTimeoutSec  int      `yaml:"handshake_timeout_sec"`
		ReadTimeoutSec       int      `yaml:"read_timeout_sec"` // 0 disables the read deadline
		WriteTimeoutSec      int      `yaml:"write_timeout_sec"`
		Reconnect            bool     `yaml:"reconnect"`
	} `yaml:"feed"`

	Storage struct {
		DSN             string `yaml:"dsn"`
		WriteTimeoutSec int    `yaml:"write_timeout_sec"`
		DrainTimeoutSec int    `yaml:"drain_timeout_sec"`
	} `yaml:"storage"`

	Metrics struct {
		Addr  string `yaml:"addr"` // empty disables the HTTP endpoint
		Pprof bool   `yaml:"pprof"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = defaultWSURL
	}
	if c.Feed.SubscribeIntervalSec == 0 {
		c.Feed.SubscribeIntervalSec = defaultSubscribeInterval
	}
	if c.Feed.HandshakeTimeoutSec == 0 {
		c.Feed.HandshakeTimeoutSec = defaultHandshakeTimeout
	}
	if c.Feed.WriteTimeoutSec == 0 {
		c.Feed.WriteTimeoutSec = defaultWriteTimeout
	}
	if c.Storage.WriteTimeoutSec == 0 {
		c.Storage.WriteTimeoutSec = defaultSinkWriteTimeout
	}
	if c.Storage.DrainTimeoutSec == 0 {
		c.Storage.DrainTimeoutSec = defaultDrainTimeout
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Feed.WSURL == "" || (!strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://")) {
		return &domain.ConfigError{Field: "feed.ws_url", Err: fmt.Errorf("invalid WS URL: %q", c.Feed.WSURL)}
	}
	if _, err := url.Parse(c.Feed.WSURL); err != nil {
		return &domain.ConfigError{Field: "feed.ws_url", Err: err}
	}
	if len(c.Feed.Symbols) == 0 {
		return &domain.ConfigError{Field: "feed.symbols", Err: errors.New("at least one symbol is required")}
	}
	for _, s := range c.Feed.Symbols {
		if strings.TrimSpace(s) == "" {
			return &domain.ConfigError{Field: "feed.symbols", Err: errors.New("empty symbol")}
		}
	}
	if c.Feed.SubscribeIntervalSec < 0 || c.Feed.ReadTimeoutSec < 0 || c.Feed.WriteTimeoutSec < 0 || c.Feed.HandshakeTimeoutSec < 0 {
		return &domain.ConfigError{Field: "feed", Err: errors.New("durations must not be negative")}
	}
	if c.Storage.DSN == "" {
		return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("storage connection string is required")}
	}
	if c.Storage.WriteTimeoutSec < 0 || c.Storage.DrainTimeoutSec < 0 {
		return &domain.ConfigError{Field: "storage", Err: errors.New("durations must not be negative")}
	}
	return nil
}

// FeedURL returns the streaming endpoint with the API token attached.
func (c *Config) FeedURL() string {
	if c.Feed.Token == "" {
		return c.Feed.WSURL
	}
	u, err := url.Parse(c.Feed.WSURL)
	if err != nil {
		return c.Feed.WSURL
	}
	q := u.Query()
	q.Set("token", c.Feed.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Config) SubscribeInterval() time.Duration {
	return time.Duration(c.Feed.SubscribeIntervalSec) * time.Second
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Feed.HandshakeTimeoutSec) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Feed.ReadTimeoutSec) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Feed.WriteTimeoutSec) * time.Second
}

func (c *Config) SinkWriteTimeout() time.Duration {
	return time.Duration(c.Storage.WriteTimeoutSec) * time.Second
}

func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Storage.DrainTimeoutSec) * time.Second
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if u := os.Getenv("TRADE_FEED_URL"); u != "" {
		cfg.Feed.WSURL = u
	}
	if token := os.Getenv("FINNHUB_TOKEN"); token != "" {
		cfg.Feed.Token = token
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
