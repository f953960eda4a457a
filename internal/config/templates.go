package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# qubicctl configuration.
# String values may reference the environment as ${ENV:NAME}.
`

func toFile(c Config) fileConfig {
	d := c.Dispatch
	return fileConfig{
		Client: fileClient{
			Backend:           c.Client.Backend,
			LiveBaseURL:       c.Client.LiveBaseURL,
			Timeout:           c.Client.Timeout.String(),
			RequestsPerSecond: c.Client.RequestsPerSecond,
			Burst:             c.Client.Burst,
			Headers:           c.Client.Headers,
			NodeAddr:          c.Client.NodeAddr,
		},
		Wallet: fileWallet{
			SeedFile: c.Wallet.SeedFile,
			Path:     c.Wallet.Path,
			Password: c.Wallet.Password,
		},
		Dispatch: fileDispatch{
			TickOffset:     d.DefaultTickOffset,
			MinTickOffset:  d.MinTickOffset,
			MaxTickOffset:  d.MaxTickOffset,
			MaxAttempts:    d.MaxAttempts,
			RetryDelay:     d.Retry.InitialDelay.String(),
			AttemptTimeout: d.AttemptTimeout.String(),
		},
		Monitor: fileMonitor{
			Interval:        c.MonitorInterval.String(),
			BalanceInterval: c.BalanceInterval.String(),
			Identities:      nonNil(c.MonitorIdentities),
		},
		MockLive: fileMockLive{
			Addr:        c.MockLive.Addr,
			CORSOrigins: nonNil(c.MockLive.CORSOrigins),
			AuthToken:   c.MockLive.AuthToken,
			Peers:       c.MockLive.Peers,
		},
		Layouts: fileLayouts{Files: nonNil(c.LayoutFiles)},
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// Template renders the defaults with a seed file placeholder.
func Template() (string, error) {
	c := Default()
	c.Wallet.SeedFile = "qubicctl-seed.json"
	c.MockLive.CORSOrigins = []string{"http://localhost:3000"}
	return Render(c)
}

func Render(c Config) (string, error) {
	body, err := toml.Marshal(toFile(c))
	if err != nil {
		return "", errors.Wrap(err, "render config")
	}
	var b strings.Builder
	b.WriteString(templateHeader)
	b.WriteString("\n")
	b.Write(body)
	return b.String(), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
