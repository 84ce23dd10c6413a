package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// InvokerConfig holds configuration for the riff-invoker sidecar.
type InvokerConfig struct {
	Function       string        `yaml:"function"`
	GRPCPort       int           `yaml:"grpc_port"`
	HTTPPort       int           `yaml:"http_port"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
	RedisAddr      string        `yaml:"redis_addr"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	StreamBuffer   int           `yaml:"stream_buffer"`
	MaxFrameBytes  int64         `yaml:"max_frame_bytes"`
}

// SetDefaults initializes c with built-in defaults.
func (c *InvokerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.GRPCPort == 0 {
		c.GRPCPort = 8081
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.StreamBuffer == 0 {
		c.StreamBuffer = 16
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = 4 << 20
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("invoker.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *InvokerConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("FUNCTION", ""); v != "" {
		c.Function = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("GRPC_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GRPCPort = n
		}
	}
	if v := GetEnv("HTTP_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("STREAM_BUFFER", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StreamBuffer = n
		}
	}
	if v := GetEnv("MAX_FRAME_BYTES", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxFrameBytes = n
		}
	}
}

// BindFlags binds command line flags to fs using the current values as
// defaults, so main can call fs.Parse after SetDefaults and ApplyEnv.
func (c *InvokerConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "invoker config file path")
	fs.StringVar(&c.Function, "function", c.Function, "name of the function to serve")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.GRPCPort, "grpc-port", c.GRPCPort, "gRPC listen port for streaming invocations")
	fs.IntVar(&c.HTTPPort, "http-port", c.HTTPPort, "HTTP listen port for request/reply and WebSocket invocations")
	fs.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port; defaults to the HTTP listener")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for server state")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight invocations on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.IntVar(&c.StreamBuffer, "stream-buffer", c.StreamBuffer, "values buffered per channel before backpressure applies")
	fs.Int64Var(&c.MaxFrameBytes, "max-frame-bytes", c.MaxFrameBytes, "largest accepted frame in bytes")
}

// LoadFile populates the config from a YAML file.
func (c *InvokerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// LoadOptionalFile is LoadFile that ignores a missing file.
func (c *InvokerConfig) LoadOptionalFile(path string) error {
	if path == "" {
		return nil
	}
	err := c.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Validate reports settings the sidecar cannot start with.
func (c *InvokerConfig) Validate() error {
	if c.Function == "" {
		return errors.New("config: no function configured (set FUNCTION or -function)")
	}
	if c.GRPCPort <= 0 || c.HTTPPort <= 0 {
		return fmt.Errorf("config: invalid ports grpc=%d http=%d", c.GRPCPort, c.HTTPPort)
	}
	if c.GRPCPort == c.HTTPPort {
		return fmt.Errorf("config: grpc and http ports must differ, both are %d", c.GRPCPort)
	}
	if c.StreamBuffer < 0 {
		return fmt.Errorf("config: negative stream buffer %d", c.StreamBuffer)
	}
	return nil
}

// GRPCAddr is the gRPC listen address.
func (c *InvokerConfig) GRPCAddr() string { return fmt.Sprintf(":%d", c.GRPCPort) }

// HTTPAddr is the HTTP listen address.
func (c *InvokerConfig) HTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }
