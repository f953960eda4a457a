package node

import "time"

const DefaultPort = 21841

// Config defines peer connection timeouts.
type Config struct {
	ConnectTimeout time.Duration
	// RequestTimeout bounds one request from write to matching reply.
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	// MaxSkippedFrames caps unrelated packets read while waiting for a reply.
	MaxSkippedFrames int
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   15 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxSkippedFrames: 256,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxSkippedFrames <= 0 {
		c.MaxSkippedFrames = d.MaxSkippedFrames
	}
	return c
}
