package config

import (
	"fmt"
	"os"
)

const (
	minDynamicPayloadType = 96
	maxDynamicPayloadType = 127
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	if err := c.Ingestion.Validate(); err != nil {
		return fmt.Errorf("ingestion config: %w", err)
	}

	if err := c.Inspector.Validate(); err != nil {
		return fmt.Errorf("inspector config: %w", err)
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// TLSEnabled reports whether HTTP/3 should be served.
func (s *ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

func (s *ServerConfig) Validate() error {
	if !validPort(s.HTTPPort) {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}

	if s.TLSEnabled() {
		if !validPort(s.HTTP3Port) {
			return fmt.Errorf("invalid HTTP3 port: %d", s.HTTP3Port)
		}
		if _, err := os.Stat(s.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", s.TLSCertFile)
		}
		if _, err := os.Stat(s.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", s.TLSKeyFile)
		}
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 || l.MaxAge < 0 {
			return fmt.Errorf("max_backups and max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if !validPort(m.Port) {
		return fmt.Errorf("invalid metrics port: %d", m.Port)
	}
	if m.Path == "" {
		return fmt.Errorf("metrics path cannot be empty")
	}
	return nil
}

func (r *RegistryConfig) Validate() error {
	switch r.Backend {
	case "memory":
	case "redis":
		if r.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis backend")
		}
		if r.RedisDB < 0 {
			return fmt.Errorf("invalid Redis database number: %d", r.RedisDB)
		}
	default:
		return fmt.Errorf("unknown registry backend: %q", r.Backend)
	}

	if r.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}
	return nil
}

func (i *IngestionConfig) Validate() error {
	if !i.RTP.Enabled && i.InputFile == "" {
		return fmt.Errorf("either rtp ingestion or input_file must be configured")
	}

	if i.InputFile != "" {
		if _, err := os.Stat(i.InputFile); err != nil {
			return fmt.Errorf("input file: %w", err)
		}
	}

	if err := i.RTP.Validate(i.InputFile != ""); err != nil {
		return fmt.Errorf("rtp: %w", err)
	}
	return nil
}

// Validate checks the RTP settings. The listen port is optional when a
// capture file supplies the packets.
func (r *RTPConfig) Validate(replay bool) error {
	if r.PayloadType < minDynamicPayloadType || r.PayloadType > maxDynamicPayloadType {
		return fmt.Errorf("payload_type must be in range [%d, %d], got %d",
			minDynamicPayloadType, maxDynamicPayloadType, r.PayloadType)
	}

	if r.Enabled && !replay && !validPort(r.Port) {
		return fmt.Errorf("invalid port: %d", r.Port)
	}

	if r.RTCPPort != 0 && !validPort(r.RTCPPort) {
		return fmt.Errorf("invalid rtcp_port: %d", r.RTCPPort)
	}

	if r.RTCPPort != 0 && r.RTCPPort == r.Port {
		return fmt.Errorf("rtcp_port must differ from port")
	}

	if r.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}

	if r.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive")
	}

	if r.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive")
	}

	if r.MaxBitrate < 0 {
		return fmt.Errorf("max_bitrate cannot be negative")
	}

	if r.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be positive")
	}

	return nil
}

func (i *InspectorConfig) Validate() error {
	if i.RecentFrames < 0 {
		return fmt.Errorf("recent_frames cannot be negative")
	}
	return nil
}
