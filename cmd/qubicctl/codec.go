package main

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
)

func decodeBytes(value string, b64 bool) ([]byte, error) {
	value = strings.TrimSpace(value)
	if b64 {
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, protocol.Formatf("invalid base64 input")
		}
		return raw, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return nil, protocol.Formatf("invalid hex input")
	}
	return raw, nil
}

func newIdentityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Convert between public keys and 60-letter identities",
	}
	var lower bool
	fromKey := &cobra.Command{
		Use:   "from-key <hex-public-key>",
		Short: "Render a 32-byte public key as an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := identity.ParseKey(args[0])
			if err != nil {
				return err
			}
			if lower {
				a.println(identity.FromPublicKeyLower(key, hashing.K12))
				return nil
			}
			a.println(a.ids.Identity(key))
			return nil
		},
	}
	fromKey.Flags().BoolVar(&lower, "lower", false, "lowercase rendering used for transaction ids")

	toKey := &cobra.Command{
		Use:   "to-key <identity>",
		Short: "Decode an identity to its hex public key (checksum is not checked)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := identity.ToPublicKey(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			a.println(hex.EncodeToString(key[:]))
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify <identity>",
		Short: "Check the alphabet and checksum of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.Verify(strings.TrimSpace(args[0]), hashing.K12); err != nil {
				return err
			}
			a.println("ok")
			return nil
		},
	}

	cmd.AddCommand(fromKey, toKey, verify)
	return cmd
}

type decodedTx struct {
	tx.Summary
	ID     string `json:"id,omitempty"`
	Digest string `json:"digest,omitempty"`
	Size   int    `json:"size"`
}

func newTxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Inspect transaction wire bytes",
	}
	var b64 bool
	decode := &cobra.Command{
		Use:   "decode <encoded>",
		Short: "Decode one signed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := decodeBytes(args[0], b64)
			if err != nil {
				return err
			}
			t, err := tx.Decode(raw)
			if err != nil {
				return err
			}
			out := decodedTx{Summary: tx.Summarize(t, a.ids), Size: t.Size()}
			if signed, err := tx.Seal(t, hashing.K12); err == nil {
				out.ID = signed.ID
				out.Digest = hex.EncodeToString(signed.Digest[:])
			}
			return a.printJSON(out)
		},
	}
	decode.Flags().BoolVar(&b64, "base64", false, "input is base64 as returned by the live service")
	cmd.AddCommand(decode)
	return cmd
}

type decodedHeader struct {
	Size       uint32 `json:"size"`
	Type       uint8  `json:"type"`
	TypeName   string `json:"typeName"`
	Dejavu     uint32 `json:"dejavu"`
	PayloadLen int    `json:"payloadLen"`
}

func newHeaderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header",
		Short: "Inspect packet headers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode the 8-byte packet header at the start of the input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := decodeBytes(args[0], false)
			if err != nil {
				return err
			}
			h, err := protocol.DecodeHeader(raw)
			if err != nil {
				return err
			}
			return a.printJSON(decodedHeader{
				Size:       h.Size,
				Type:       uint8(h.Type),
				TypeName:   h.Type.String(),
				Dejavu:     h.Dejavu,
				PayloadLen: h.PayloadLen(),
			})
		},
	})
	return cmd
}

func newLayoutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Work with registered struct layouts",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered layout names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range a.layouts.Names() {
				a.println(name)
			}
			return nil
		},
	}
	size := &cobra.Command{
		Use:   "size <name>",
		Short: "Print the encoded byte size of a layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.layouts.Size(args[0])
			if err != nil {
				return err
			}
			a.println(n)
			return nil
		},
	}
	var b64 bool
	decode := &cobra.Command{
		Use:   "decode <name> <encoded>",
		Short: "Decode bytes with a layout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := decodeBytes(args[1], b64)
			if err != nil {
				return err
			}
			rec, err := a.layouts.Decode(args[0], raw)
			if err != nil {
				return err
			}
			return a.printJSON(rec)
		},
	}
	decode.Flags().BoolVar(&b64, "base64", false, "input is base64")
	cmd.AddCommand(list, size, decode)
	return cmd
}
