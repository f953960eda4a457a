package main

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/danmuck/qubicctl/internal/config"
	"github.com/danmuck/qubicctl/internal/mocklive"
	"github.com/danmuck/qubicctl/internal/protocol"
)

const defaultConfigPath = "qubicctl.toml"

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate qubicctl.toml",
		// Skips config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := defaultConfigPath
			if len(args) == 1 {
				target = args[0]
			}
			if err := config.WriteTemplate(target, force); err != nil {
				return err
			}
			a.println("wrote", target)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validate := &cobra.Command{
		Use:   "validate [path]",
		Short: "Load and validate a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := a.configPath
			if len(args) == 1 {
				target = args[0]
			}
			if target == "" {
				target = defaultConfigPath
			}
			cfg, err := config.LoadWithEnv(target, a.lookup)
			if err != nil {
				return err
			}
			if _, err := cfg.Layouts(); err != nil {
				return err
			}
			a.println("valid", target)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validate)
	return cmd
}

func newMockLiveCmd(a *app) *cobra.Command {
	var (
		addr    string
		tick    uint32
		epoch   uint32
		advance time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mock-live",
		Short: "Serve an in-memory stand-in for the live HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.MockLiveOptions(a.layouts)
			if cmd.Flags().Changed("addr") {
				opts.Addr = addr
			}
			opts.TickInfo = protocol.TickInfo{Tick: tick, Epoch: epoch, InitialTick: tick, Duration: 1}
			svc, err := mocklive.New(opts)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- svc.Serve() }()

			var tickC <-chan time.Time
			if advance > 0 {
				ticker := clockwork.NewRealClock().NewTicker(advance)
				defer ticker.Stop()
				tickC = ticker.Chan()
			}
			for {
				select {
				case err := <-errCh:
					return err
				case <-tickC:
					svc.AdvanceTick(1)
				case <-cmd.Context().Done():
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to mock_live.addr)")
	cmd.Flags().Uint32Var(&tick, "tick", 1000, "initial tick")
	cmd.Flags().Uint32Var(&epoch, "epoch", 100, "network epoch")
	cmd.Flags().DurationVar(&advance, "advance", 0, "advance the tick by one at this interval (0 keeps it fixed)")
	return cmd
}
