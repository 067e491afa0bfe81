package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/health"

	"github.com/spf13/viper"
)

type Config struct {
	API struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
		Token   string        `mapstructure:"token"`
	} `mapstructure:"api"`

	Stream struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"stream"`

	Queue struct {
		OfflineDelay time.Duration `mapstructure:"offline_delay"` // simulated pipeline latency
		StallTimeout time.Duration `mapstructure:"stall_timeout"` // 0 disables stall detection
		PollInterval time.Duration `mapstructure:"poll_interval"` // 0 disables job polling
	} `mapstructure:"queue"`

	Health struct {
		Schedule string        `mapstructure:"schedule"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"health"`

	Database struct {
		URL string `mapstructure:"url"` // sqlite:// or postgres://, empty = user config dir
	} `mapstructure:"database"`

	Server struct {
		Addr           string   `mapstructure:"addr"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", 10*time.Minute)
	v.SetDefault("api.token", "")
	v.SetDefault("stream.path", "/events")
	v.SetDefault("queue.offline_delay", 2*time.Second)
	v.SetDefault("queue.stall_timeout", time.Duration(0))
	v.SetDefault("queue.poll_interval", time.Duration(0))
	v.SetDefault("health.schedule", "@every 30s")
	v.SetDefault("health.timeout", 5*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads config.yaml from path (or ./ and $HOME/.mediadesk when path is empty),
// then applies MEDIADESK_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("$HOME", ".mediadesk"))
	}

	// e.g. api.base_url -> MEDIADESK_API_BASE_URL
	v.SetEnvPrefix("MEDIADESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values LoadConfig cannot type-check
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if !strings.HasPrefix(c.Stream.Path, "/") {
		return fmt.Errorf("stream.path must start with /")
	}
	if c.Queue.OfflineDelay < 0 || c.Queue.StallTimeout < 0 || c.Queue.PollInterval < 0 {
		return fmt.Errorf("queue durations must not be negative")
	}
	if err := health.ValidateSchedule(c.Health.Schedule); err != nil {
		return err
	}
	if c.Database.URL != "" &&
		!strings.HasPrefix(c.Database.URL, "sqlite://") &&
		!strings.HasPrefix(c.Database.URL, "postgres://") &&
		!strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("database.url must start with sqlite:// or postgres://")
	}
	return nil
}
