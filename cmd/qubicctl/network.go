package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/danmuck/qubicctl/internal/contracts"
	"github.com/danmuck/qubicctl/internal/contracts/ccf"
	"github.com/danmuck/qubicctl/internal/monitor"
	"github.com/danmuck/qubicctl/internal/observability"
)

func newTickCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Show the current network tick and epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.transport().TickInfo(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(info)
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <identity>",
		Short: "Show the balance of an identity (live backend)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.liveClient()
			if err != nil {
				return err
			}
			b, err := c.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(b)
		},
	}
}

func newProposalsCmd(a *app) *cobra.Command {
	var (
		epoch       uint32
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List computor controlled fund proposals for an epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := a.transport()
			client := ccf.New(
				contracts.NewCaller(t, a.layouts),
				ccf.WithTickSource(t),
				ccf.WithConcurrency(concurrency),
			)
			var opts ccf.FetchOptions
			if cmd.Flags().Changed("epoch") {
				opts.Epoch = &epoch
			}
			res, err := client.FetchAll(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.printJSON(res)
		},
	}
	cmd.Flags().Uint32Var(&epoch, "epoch", 0, "epoch to list (defaults to the network epoch)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel record fetches")
	return cmd
}

func newMonitorCmd(a *app) *cobra.Command {
	var (
		count      int
		identities []string
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll tick info, or balances with --identity, and print one sample per poll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.RegisterMetrics()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			logger := observability.Component("monitor")
			samples := 0
			emit := func(v any) {
				_ = a.printJSON(v)
				samples++
				if count > 0 && samples >= count {
					cancel()
				}
			}

			if !cmd.Flags().Changed("identity") {
				identities = a.cfg.MonitorIdentities
			}
			if len(identities) > 0 {
				c, err := a.liveClient()
				if err != nil {
					return err
				}
				opts := a.cfg.BalanceOptions()
				opts.Identities = identities
				opts.OnSample = func(s monitor.BalanceSample) { emit(s) }
				opts.OnError = func(id string, err error) {
					logger.Warn().Err(err).Str("identity", id).Msg("balance poll failed")
				}
				m := monitor.NewBalanceMonitor(c, opts)
				m.Start(ctx)
				<-ctx.Done()
				m.Stop()
				return nil
			}

			opts := a.cfg.MonitorOptions()
			opts.OnSample = func(s monitor.Sample) { emit(s) }
			opts.OnError = func(err error) {
				logger.Warn().Err(err).Msg("tick poll failed")
			}
			m := monitor.New(a.transport(), opts)
			m.Start(ctx)
			<-ctx.Done()
			m.Stop()
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many samples (0 runs until interrupted)")
	cmd.Flags().StringArrayVar(&identities, "identity", nil, "identity to watch; repeat for several (defaults to monitor.identities)")
	return cmd
}
