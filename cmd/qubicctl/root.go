package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/danmuck/qubicctl/internal/client/live"
	"github.com/danmuck/qubicctl/internal/config"
	"github.com/danmuck/qubicctl/internal/contracts"
	"github.com/danmuck/qubicctl/internal/dispatch"
	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/node"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
	"github.com/danmuck/qubicctl/internal/protocol/layout"
)

// backend is what both the live service and a node peer provide.
type backend interface {
	contracts.Transport
	dispatch.TickSource
	dispatch.Submitter
}

type app struct {
	out    io.Writer
	lookup func(string) (string, bool)

	configPath string
	backend    string
	baseURL    string
	nodeAddr   string

	cfg     config.Config
	layouts *layout.Registry
	ids     *identity.Encoder
}

func newRootCmd(out io.Writer, lookup func(string) (string, bool)) *cobra.Command {
	a := &app{out: out, lookup: lookup}

	root := &cobra.Command{
		Use:           "qubicctl",
		Short:         "Qubic ledger client: identities, transactions, contract queries and transfers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to qubicctl.toml (defaults apply when empty)")
	flags.StringVar(&a.backend, "backend", "", "transport: live|node (overrides client.backend)")
	flags.StringVar(&a.baseURL, "base-url", "", "live service base URL (overrides client.live_base_url)")
	flags.StringVar(&a.nodeAddr, "node", "", "node host[:port] (overrides client.node_addr)")

	root.AddCommand(
		newIdentityCmd(a),
		newTxCmd(a),
		newHeaderCmd(a),
		newLayoutCmd(a),
		newTickCmd(a),
		newBalanceCmd(a),
		newProposalsCmd(a),
		newMonitorCmd(a),
		newSeedCmd(a),
		newTransferCmd(a),
		newOfflineCmd(a),
		newConfigCmd(a),
		newMockLiveCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.LoadWithEnv(a.configPath, a.lookup)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Client.Backend = a.backend
	}
	if flags.Changed("base-url") {
		cfg.Client.LiveBaseURL = a.baseURL
	}
	if flags.Changed("node") {
		cfg.Client.NodeAddr = a.nodeAddr
		if !flags.Changed("backend") {
			cfg.Client.Backend = config.BackendNode
		}
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	reg, err := cfg.Layouts()
	if err != nil {
		return err
	}
	ids, err := identity.NewEncoder(hashing.K12, identity.DefaultCacheSize)
	if err != nil {
		return err
	}
	a.cfg, a.layouts, a.ids = cfg, reg, ids
	return nil
}

func (a *app) transport() backend {
	if a.cfg.Client.Backend == config.BackendNode {
		return node.New(a.cfg.Client.NodeAddr, a.cfg.NodeConfig(), a.layouts)
	}
	return live.New(a.cfg.LiveOptions())
}

func (a *app) liveClient() (*live.Client, error) {
	if a.cfg.Client.Backend != config.BackendLive {
		return nil, errors.Newf("command needs the live backend, configured backend is %q", a.cfg.Client.Backend)
	}
	return live.New(a.cfg.LiveOptions()), nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) println(v ...any) {
	fmt.Fprintln(a.out, v...)
}
