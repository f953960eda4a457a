package main

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
	"github.com/danmuck/qubicctl/internal/wallet"
)

type offlineSigned struct {
	ID                 string `json:"id"`
	Tick               uint32 `json:"tick"`
	EncodedTransaction string `json:"encodedTransaction"`
	Hex                string `json:"hex"`
	PeersBroadcasted   int    `json:"peersBroadcasted,omitempty"`
}

func newOfflineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offline",
		Short: "Prepare transfers on a networked machine and sign them where the seed lives",
	}

	var (
		tick      uint32
		inputType uint16
		inputHex  string
		meta      map[string]string
		output    string
	)
	create := &cobra.Command{
		Use:   "create <source> <destination> <amount>",
		Short: "Write an unsigned transfer bundle",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return errors.Newf("invalid amount %q", args[2])
			}
			input, err := decodeBytes(inputHex, false)
			if err != nil {
				return err
			}
			if tick == 0 {
				info, err := a.transport().TickInfo(cmd.Context())
				if err != nil {
					return err
				}
				tick = info.Tick + a.cfg.Dispatch.DefaultTickOffset
			}
			t, err := tx.New(args[0], args[1], amount, tick, inputType, input)
			if err != nil {
				return err
			}
			bundle := wallet.NewOfflineBundle(t, time.Now(), meta)
			if output == "" {
				return a.printJSON(bundle)
			}
			if err := wallet.SaveOfflineBundle(output, bundle); err != nil {
				return err
			}
			a.println("wrote", output)
			return nil
		},
	}
	create.Flags().Uint32Var(&tick, "tick", 0, "target tick (defaults to the current tick plus dispatch.tick_offset)")
	create.Flags().Uint16Var(&inputType, "input-type", 0, "contract input type")
	create.Flags().StringVar(&inputHex, "input", "", "contract input as hex")
	create.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value pairs")
	create.Flags().StringVarP(&output, "output", "o", "", "bundle file (prints to stdout when empty)")

	var (
		keys      walletFlags
		broadcast bool
	)
	sign := &cobra.Command{
		Use:   "sign <bundle>",
		Short: "Sign a bundle and print the encoded transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := wallet.LoadOfflineBundle(args[0])
			if err != nil {
				return err
			}
			kp, err := a.keys(&keys)
			if err != nil {
				return err
			}
			signed, err := wallet.SignOfflineBundle(bundle, kp, wallet.Ed25519Curve{}, hashing.K12)
			if err != nil {
				return err
			}
			out := offlineSigned{
				ID:                 signed.ID,
				Tick:               signed.Tick,
				EncodedTransaction: base64.StdEncoding.EncodeToString(signed.Encoded),
				Hex:                hex.EncodeToString(signed.Encoded),
			}
			if broadcast {
				receipt, err := a.transport().Submit(cmd.Context(), signed)
				if err != nil {
					return err
				}
				out.PeersBroadcasted = receipt.PeersBroadcasted
			}
			return a.printJSON(out)
		},
	}
	keys.register(sign)
	sign.Flags().BoolVar(&broadcast, "broadcast", false, "submit the signed transaction through the configured backend")

	cmd.AddCommand(create, sign)
	return cmd
}
