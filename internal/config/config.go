package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Relay server endpoints.
	ServerURL string `mapstructure:"server_url"`
	SignalURL string `mapstructure:"signal_url"`

	Mode string `mapstructure:"mode"`

	// Local diagnostics endpoint; 0 disables it.
	DiagPort int `mapstructure:"diag_port"`

	// Credential persistence.
	CredsPath string `mapstructure:"creds_path"`

	// Transport tuning.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`

	// Capture/batching tuning.
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	GOPFrames     int           `mapstructure:"gop_frames"`
	SendQueueCap  int           `mapstructure:"send_queue_cap"`

	// Receive-side accumulation tuning.
	RecvQueueCap  int           `mapstructure:"recv_queue_cap"`
	RecvLowWater  int           `mapstructure:"recv_low_water"`
	RecvHighWater int           `mapstructure:"recv_high_water"`
	RecvMinFlush  int           `mapstructure:"recv_min_flush"`
	RecvMaxWait   time.Duration `mapstructure:"recv_max_wait"`

	// Playback smoothing.
	JitterCap int `mapstructure:"jitter_cap"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("signal_url", "ws://localhost:8080/ws")
	v.SetDefault("mode", "release")
	v.SetDefault("diag_port", 0)
	v.SetDefault("creds_path", defaultCredsPath())
	v.SetDefault("connect_timeout", "10s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("http_timeout", "15s")
	v.SetDefault("frame_interval", "33ms")
	v.SetDefault("gop_frames", 30)
	v.SetDefault("send_queue_cap", 60)
	v.SetDefault("recv_queue_cap", 120)
	v.SetDefault("recv_low_water", 65536)
	v.SetDefault("recv_high_water", 1048576)
	v.SetDefault("recv_min_flush", 4096)
	v.SetDefault("recv_max_wait", "200ms")
	v.SetDefault("jitter_cap", 90)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func defaultCredsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "credentials.bin"
	}
	return filepath.Join(dir, "screenai", "credentials.bin")
}
