// Package config loads qubicctl.toml. Keys left out of the file keep their
// defaults, and string values may reference the environment as ${ENV:NAME}.
package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/danmuck/qubicctl/internal/client/live"
	"github.com/danmuck/qubicctl/internal/dispatch"
	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/monitor"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
	"github.com/danmuck/qubicctl/internal/wallet"
)

const (
	BackendLive = "live"
	BackendNode = "node"
)

type ClientConfig struct {
	Backend           string
	LiveBaseURL       string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Headers           map[string]string
	NodeAddr          string
}

type WalletConfig struct {
	SeedFile string
	Path     string
	Password string
}

type MockLiveConfig struct {
	Addr        string
	CORSOrigins []string
	AuthToken   string
	Peers       int
}

type Config struct {
	Client            ClientConfig
	Wallet            WalletConfig
	Dispatch          dispatch.Config
	MonitorInterval   time.Duration
	BalanceInterval   time.Duration
	MonitorIdentities []string
	MockLive          MockLiveConfig
	LayoutFiles       []string
}

func Default() Config {
	return Config{
		Client: ClientConfig{
			Backend:     BackendLive,
			LiveBaseURL: live.DefaultBaseURL,
			Timeout:     live.DefaultTimeout,
		},
		Wallet:          WalletConfig{Path: wallet.DefaultPath},
		Dispatch:        dispatch.DefaultConfig(),
		MonitorInterval: monitor.DefaultInterval,
		BalanceInterval: monitor.DefaultBalanceInterval,
		MockLive:        MockLiveConfig{Addr: ":8088", Peers: 3},
	}
}

// fileConfig is the on-disk key layout. Durations are Go duration strings.
type fileConfig struct {
	Client   fileClient   `toml:"client"`
	Wallet   fileWallet   `toml:"wallet"`
	Dispatch fileDispatch `toml:"dispatch"`
	Monitor  fileMonitor  `toml:"monitor"`
	MockLive fileMockLive `toml:"mock_live"`
	Layouts  fileLayouts  `toml:"layouts"`
}

type fileClient struct {
	Backend           string            `toml:"backend"`
	LiveBaseURL       string            `toml:"live_base_url"`
	Timeout           string            `toml:"timeout"`
	RequestsPerSecond float64           `toml:"requests_per_second"`
	Burst             int               `toml:"burst"`
	Headers           map[string]string `toml:"headers,omitempty"`
	NodeAddr          string            `toml:"node_addr"`
}

type fileWallet struct {
	SeedFile string `toml:"seed_file"`
	Path     string `toml:"path"`
	Password string `toml:"password"`
}

type fileDispatch struct {
	TickOffset     uint32 `toml:"tick_offset"`
	MinTickOffset  uint32 `toml:"min_tick_offset"`
	MaxTickOffset  uint32 `toml:"max_tick_offset"`
	MaxAttempts    int    `toml:"max_attempts"`
	RetryDelay     string `toml:"retry_delay"`
	AttemptTimeout string `toml:"attempt_timeout"`
}

type fileMonitor struct {
	Interval        string   `toml:"interval"`
	BalanceInterval string   `toml:"balance_interval"`
	Identities      []string `toml:"identities"`
}

type fileMockLive struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
	AuthToken   string   `toml:"auth_token"`
	Peers       int      `toml:"peers"`
}

type fileLayouts struct {
	Files []string `toml:"files"`
}

var envToken = regexp.MustCompile(`\$\{ENV:([^}]+)\}`)

// expandEnv replaces every ${ENV:NAME} token. An unset variable is an error.
func expandEnv(value string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := envToken.ReplaceAllStringFunc(value, func(tok string) string {
		name := strings.TrimSpace(envToken.FindStringSubmatch(tok)[1])
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
			return tok
		}
		return v
	})
	if len(missing) > 0 {
		return "", protocol.Validationf("environment variable %s is not defined", strings.Join(missing, ", "))
	}
	return out, nil
}

func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv overlays the file at path onto Default.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, protocol.Validationf("config %s: unknown key %s", path, undecoded[0])
	}

	o := overlay{meta: meta, lookup: lookup}
	o.str(&cfg.Client.Backend, raw.Client.Backend, "client", "backend")
	o.str(&cfg.Client.LiveBaseURL, raw.Client.LiveBaseURL, "client", "live_base_url")
	o.dur(&cfg.Client.Timeout, raw.Client.Timeout, "client", "timeout")
	if meta.IsDefined("client", "requests_per_second") {
		cfg.Client.RequestsPerSecond = raw.Client.RequestsPerSecond
	}
	if meta.IsDefined("client", "burst") {
		cfg.Client.Burst = raw.Client.Burst
	}
	if meta.IsDefined("client", "headers") {
		cfg.Client.Headers = make(map[string]string, len(raw.Client.Headers))
		for k, v := range raw.Client.Headers {
			o.str(&v, v)
			cfg.Client.Headers[k] = v
		}
	}
	o.str(&cfg.Client.NodeAddr, raw.Client.NodeAddr, "client", "node_addr")

	o.str(&cfg.Wallet.SeedFile, raw.Wallet.SeedFile, "wallet", "seed_file")
	o.str(&cfg.Wallet.Path, raw.Wallet.Path, "wallet", "path")
	o.str(&cfg.Wallet.Password, raw.Wallet.Password, "wallet", "password")

	if meta.IsDefined("dispatch", "tick_offset") {
		cfg.Dispatch.DefaultTickOffset = raw.Dispatch.TickOffset
	}
	if meta.IsDefined("dispatch", "min_tick_offset") {
		cfg.Dispatch.MinTickOffset = raw.Dispatch.MinTickOffset
	}
	if meta.IsDefined("dispatch", "max_tick_offset") {
		cfg.Dispatch.MaxTickOffset = raw.Dispatch.MaxTickOffset
	}
	if meta.IsDefined("dispatch", "max_attempts") {
		cfg.Dispatch.MaxAttempts = raw.Dispatch.MaxAttempts
	}
	if o.dur(&cfg.Dispatch.Retry.InitialDelay, raw.Dispatch.RetryDelay, "dispatch", "retry_delay") {
		cfg.Dispatch.Retry.MaxDelay = cfg.Dispatch.Retry.InitialDelay
	}
	o.dur(&cfg.Dispatch.AttemptTimeout, raw.Dispatch.AttemptTimeout, "dispatch", "attempt_timeout")

	o.dur(&cfg.MonitorInterval, raw.Monitor.Interval, "monitor", "interval")
	o.dur(&cfg.BalanceInterval, raw.Monitor.BalanceInterval, "monitor", "balance_interval")
	if meta.IsDefined("monitor", "identities") {
		for _, id := range raw.Monitor.Identities {
			o.str(&id, id)
			cfg.MonitorIdentities = append(cfg.MonitorIdentities, id)
		}
	}

	o.str(&cfg.MockLive.Addr, raw.MockLive.Addr, "mock_live", "addr")
	if meta.IsDefined("mock_live", "cors_origins") {
		cfg.MockLive.CORSOrigins = append([]string(nil), raw.MockLive.CORSOrigins...)
	}
	o.str(&cfg.MockLive.AuthToken, raw.MockLive.AuthToken, "mock_live", "auth_token")
	if meta.IsDefined("mock_live", "peers") {
		cfg.MockLive.Peers = raw.MockLive.Peers
	}

	if meta.IsDefined("layouts", "files") {
		for _, f := range raw.Layouts.Files {
			o.str(&f, f)
			cfg.LayoutFiles = append(cfg.LayoutFiles, f)
		}
	}

	if o.err != nil {
		return Config{}, errors.Wrapf(o.err, "load config %s", path)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, nil
}

// overlay copies defined keys onto defaults and keeps the first error.
type overlay struct {
	meta   toml.MetaData
	lookup func(string) (string, bool)
	err    error
}

// str sets *dst when key is defined, or always when key is empty.
func (o *overlay) str(dst *string, value string, key ...string) bool {
	if o.err != nil || (len(key) > 0 && !o.meta.IsDefined(key...)) {
		return false
	}
	v, err := expandEnv(strings.TrimSpace(value), o.lookup)
	if err != nil {
		o.err = errors.Wrapf(err, "%s", strings.Join(key, "."))
		return false
	}
	*dst = v
	return true
}

func (o *overlay) dur(dst *time.Duration, value string, key ...string) bool {
	var s string
	if !o.str(&s, value, key...) {
		return false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		o.err = protocol.Validationf("%s: invalid duration %q", strings.Join(key, "."), s)
		return false
	}
	*dst = d
	return true
}

func Validate(cfg Config) error {
	switch cfg.Client.Backend {
	case BackendLive:
		if strings.TrimSpace(cfg.Client.LiveBaseURL) == "" {
			return protocol.Validationf("client.live_base_url is required for the live backend")
		}
	case BackendNode:
		if strings.TrimSpace(cfg.Client.NodeAddr) == "" {
			return protocol.Validationf("client.node_addr is required for the node backend")
		}
	default:
		return protocol.Validationf("client.backend must be %q or %q, got %q", BackendLive, BackendNode, cfg.Client.Backend)
	}
	if cfg.Client.Timeout <= 0 {
		return protocol.Validationf("client.timeout must be positive")
	}
	if cfg.Client.RequestsPerSecond < 0 {
		return protocol.Validationf("client.requests_per_second must not be negative")
	}
	d := cfg.Dispatch
	if d.MinTickOffset > d.MaxTickOffset {
		return protocol.Validationf("dispatch.min_tick_offset %d exceeds max_tick_offset %d", d.MinTickOffset, d.MaxTickOffset)
	}
	if d.DefaultTickOffset < d.MinTickOffset || d.DefaultTickOffset > d.MaxTickOffset {
		return protocol.Validationf("dispatch.tick_offset %d outside [%d, %d]", d.DefaultTickOffset, d.MinTickOffset, d.MaxTickOffset)
	}
	if d.MaxAttempts < 1 {
		return protocol.Validationf("dispatch.max_attempts must be at least 1")
	}
	if cfg.MonitorInterval < monitor.MinInterval {
		return protocol.Validationf("monitor.interval must be at least %s", monitor.MinInterval)
	}
	if cfg.BalanceInterval < monitor.MinInterval {
		return protocol.Validationf("monitor.balance_interval must be at least %s", monitor.MinInterval)
	}
	for _, id := range cfg.MonitorIdentities {
		if err := identity.Verify(id, hashing.K12); err != nil {
			return errors.Wrapf(err, "monitor.identities")
		}
	}
	if _, err := wallet.PathIndex(cfg.Wallet.Path); err != nil {
		return errors.Wrap(err, "wallet.path")
	}
	return nil
}
