package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Inspector InspectorConfig `mapstructure:"inspector"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// HTTP/3 is served alongside HTTP/1.1 when both TLS files are set.
	HTTP3Port   int    `mapstructure:"http3_port"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type RegistryConfig struct {
	Backend       string        `mapstructure:"backend"` // memory or redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type IngestionConfig struct {
	RTP RTPConfig `mapstructure:"rtp"`
	// InputFile replays a pcap capture instead of listening on the network.
	InputFile string `mapstructure:"input_file"`
}

type RTPConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	Port           int           `mapstructure:"port"`
	RTCPPort       int           `mapstructure:"rtcp_port"` // 0 disables RTCP
	PayloadType    uint8         `mapstructure:"payload_type"`
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	MaxBitrate     int64         `mapstructure:"max_bitrate"` // bits per second per session, 0 is unlimited
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
}

type InspectorConfig struct {
	// OutputPath receives one <ssrc>.log file per stream. Empty disables
	// frame logs.
	OutputPath   string `mapstructure:"output_path"`
	RecentFrames int    `mapstructure:"recent_frames"`
}

// Load reads configPath, applies VP8INSPECTOR_* environment overrides and
// validates the result. An empty path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("VP8INSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.http3_port", 8443)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	// stdout carries the ready event
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("registry.backend", "memory")
	v.SetDefault("registry.redis_addr", "localhost:6379")
	v.SetDefault("registry.redis_password", "")
	v.SetDefault("registry.redis_db", 0)
	v.SetDefault("registry.ttl", "5m")

	v.SetDefault("ingestion.rtp.enabled", true)
	v.SetDefault("ingestion.rtp.listen_addr", "0.0.0.0")
	v.SetDefault("ingestion.rtp.port", 50000)
	v.SetDefault("ingestion.rtp.rtcp_port", 0)
	v.SetDefault("ingestion.rtp.payload_type", 96)
	v.SetDefault("ingestion.rtp.buffer_size", 2097152) // 2MB
	v.SetDefault("ingestion.rtp.max_sessions", 30)
	v.SetDefault("ingestion.rtp.session_timeout", "30s")
	v.SetDefault("ingestion.rtp.max_bitrate", 50000000) // 50 Mbps
	v.SetDefault("ingestion.rtp.stats_interval", "10s")
	v.SetDefault("ingestion.input_file", "")

	v.SetDefault("inspector.output_path", "./inspector-logs")
	v.SetDefault("inspector.recent_frames", 256)
}
