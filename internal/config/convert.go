package config

import (
	"github.com/cockroachdb/errors"

	"github.com/danmuck/qubicctl/internal/client/live"
	"github.com/danmuck/qubicctl/internal/mocklive"
	"github.com/danmuck/qubicctl/internal/monitor"
	"github.com/danmuck/qubicctl/internal/node"
	"github.com/danmuck/qubicctl/internal/protocol/layout"
)

func (c Config) LiveOptions() live.Options {
	headers := make(map[string]string, len(c.Client.Headers))
	for k, v := range c.Client.Headers {
		headers[k] = v
	}
	return live.Options{
		BaseURL:           c.Client.LiveBaseURL,
		Timeout:           c.Client.Timeout,
		Headers:           headers,
		RequestsPerSecond: c.Client.RequestsPerSecond,
		Burst:             c.Client.Burst,
	}
}

// NodeConfig applies the client timeout to every node round trip.
func (c Config) NodeConfig() node.Config {
	cfg := node.DefaultConfig()
	cfg.RequestTimeout = c.Client.Timeout
	return cfg
}

func (c Config) MonitorOptions() monitor.Options {
	return monitor.Options{Interval: c.MonitorInterval}
}

func (c Config) BalanceOptions() monitor.BalanceOptions {
	return monitor.BalanceOptions{
		Identities: append([]string(nil), c.MonitorIdentities...),
		Interval:   c.BalanceInterval,
	}
}

// Layouts returns the builtin registry extended with every configured file.
func (c Config) Layouts() (*layout.Registry, error) {
	reg, err := layout.Builtin()
	if err != nil {
		return nil, err
	}
	for _, f := range c.LayoutFiles {
		if err := reg.LoadFile(f); err != nil {
			return nil, errors.Wrapf(err, "layout file %s", f)
		}
	}
	return reg, nil
}

func (c Config) MockLiveOptions(reg *layout.Registry) mocklive.Options {
	return mocklive.Options{
		ID:          "mock-live",
		Addr:        c.MockLive.Addr,
		CORSOrigins: append([]string(nil), c.MockLive.CORSOrigins...),
		AuthToken:   c.MockLive.AuthToken,
		Peers:       c.MockLive.Peers,
		Layouts:     reg,
	}
}
