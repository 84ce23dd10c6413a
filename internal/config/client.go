package config

import (
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ClientConfig holds configuration for the riff-call client.
type ClientConfig struct {
	Target      string
	Transport   string
	Inputs      []string
	Outputs     int
	ContentType string
	Timeout     time.Duration
	Retries     int
	LogLevel    string
}

// SetDefaults initializes c with built-in defaults.
func (c *ClientConfig) SetDefaults() {
	if c.Target == "" {
		c.Target = "localhost:8081"
	}
	if c.Transport == "" {
		c.Transport = "grpc"
	}
	if c.Outputs == 0 {
		c.Outputs = 1
	}
	if c.ContentType == "" {
		c.ContentType = "text/plain"
	}
	if c.Timeout == 0 {
		c.Timeout = time.Minute
	}
	if c.Retries == 0 {
		c.Retries = 5
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ClientConfig) ApplyEnv() {
	if v := GetEnv("RIFF_TARGET", ""); v != "" {
		c.Target = v
	}
	if v := GetEnv("RIFF_TRANSPORT", ""); v != "" {
		c.Transport = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
}

// BindFlags binds command line flags to fs using the current values as
// defaults.
func (c *ClientConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Target, "target", c.Target, "invoker address: host:port for grpc, ws:// URL for websocket")
	fs.StringVar(&c.Transport, "transport", c.Transport, "transport to use (grpc, ws)")
	fs.Func("i", "input value as channel=value; repeat for more values", func(v string) error {
		c.Inputs = append(c.Inputs, v)
		return nil
	})
	fs.IntVar(&c.Outputs, "outputs", c.Outputs, "number of result channels the function declares")
	fs.StringVar(&c.ContentType, "content-type", c.ContentType, "content type used to send input values")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "maximum duration of the call")
	fs.IntVar(&c.Retries, "retries", c.Retries, "attempts at opening the call before giving up (0 retries forever)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
}

// ParseInputs groups the channel=value inputs per channel, keeping their
// order. Channels without values between 0 and the highest one get an empty
// list.
func (c *ClientConfig) ParseInputs() ([][]string, error) {
	byChannel := map[int][]string{}
	for _, in := range c.Inputs {
		k, v, ok := strings.Cut(in, "=")
		if !ok {
			return nil, fmt.Errorf("config: input %q is not channel=value", in)
		}
		ch, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || ch < 0 {
			return nil, fmt.Errorf("config: input %q has an invalid channel", in)
		}
		byChannel[ch] = append(byChannel[ch], v)
	}
	if len(byChannel) == 0 {
		return nil, fmt.Errorf("config: no inputs given")
	}
	channels := make([]int, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	out := make([][]string, channels[len(channels)-1]+1)
	for _, ch := range channels {
		out[ch] = byChannel[ch]
	}
	return out, nil
}

// Validate reports settings the client cannot run with.
func (c *ClientConfig) Validate() error {
	switch c.Transport {
	case "grpc", "ws":
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Outputs < 1 {
		return fmt.Errorf("config: outputs must be at least 1, got %d", c.Outputs)
	}
	return nil
}
