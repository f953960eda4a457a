package main

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/danmuck/qubicctl/internal/dispatch"
	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/wallet"
)

const (
	envSeed         = "QUBICCTL_SEED"
	envSeedPassword = "QUBICCTL_SEED_PASSWORD"
)

type walletFlags struct {
	seed     string
	password string
	path     string
	index    int64
}

func (f *walletFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.seed, "seed", "", "55-letter seed (falls back to $"+envSeed+" then wallet.seed_file)")
	cmd.Flags().StringVar(&f.password, "password", "", "seed file password (falls back to wallet.password then $"+envSeedPassword+")")
	cmd.Flags().StringVar(&f.path, "path", "", "derivation path (defaults to wallet.path)")
	cmd.Flags().Int64Var(&f.index, "index", -1, "account index, overrides --path")
}

func (a *app) password(f *walletFlags) string {
	if f.password != "" {
		return f.password
	}
	if a.cfg.Wallet.Password != "" {
		return a.cfg.Wallet.Password
	}
	v, _ := a.lookup(envSeedPassword)
	return v
}

func (a *app) seed(f *walletFlags) (string, error) {
	if s := strings.TrimSpace(f.seed); s != "" {
		return s, nil
	}
	if s, ok := a.lookup(envSeed); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s), nil
	}
	if a.cfg.Wallet.SeedFile == "" {
		return "", errors.New("no seed: pass --seed, set $" + envSeed + " or configure wallet.seed_file")
	}
	payload, err := wallet.LoadSecret(a.cfg.Wallet.SeedFile)
	if err != nil {
		return "", err
	}
	return wallet.DecryptSecret(payload, a.password(f))
}

func (a *app) keys(f *walletFlags) (wallet.KeyPair, error) {
	seed, err := a.seed(f)
	if err != nil {
		return wallet.KeyPair{}, err
	}
	curve := wallet.Ed25519Curve{}
	if f.index >= 0 {
		return wallet.Derive(seed, uint64(f.index), curve)
	}
	path := f.path
	if path == "" {
		path = a.cfg.Wallet.Path
	}
	return wallet.DeriveFromPath(seed, path, curve)
}

type derivedKeys struct {
	Identity   string `json:"identity"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey,omitempty"`
}

func newSeedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Derive keys from a seed and manage the encrypted seed file",
	}

	var (
		derive      walletFlags
		showPrivate bool
	)
	deriveCmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive the key pair and identity for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := a.keys(&derive)
			if err != nil {
				return err
			}
			out := derivedKeys{Identity: kp.Identity, PublicKey: kp.PublicHex()}
			if showPrivate {
				out.PrivateKey = kp.PrivateHex()
			}
			return a.printJSON(out)
		},
	}
	derive.register(deriveCmd)
	deriveCmd.Flags().BoolVar(&showPrivate, "show-private", false, "include the private key")

	var (
		encrypt    walletFlags
		output     string
		iterations int
	)
	encryptCmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a seed into a password protected file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := strings.TrimSpace(encrypt.seed)
			if seed == "" {
				seed, _ = a.lookup(envSeed)
				seed = strings.TrimSpace(seed)
			}
			if err := wallet.ValidateSeed(seed); err != nil {
				return err
			}
			password := a.password(&encrypt)
			if password == "" {
				return errors.New("a password is required to encrypt the seed")
			}
			if output == "" {
				output = a.cfg.Wallet.SeedFile
			}
			if output == "" {
				return errors.New("no output: pass --output or configure wallet.seed_file")
			}
			payload, err := wallet.EncryptSecret(seed, password, iterations)
			if err != nil {
				return err
			}
			if err := wallet.SaveSecret(output, payload); err != nil {
				return err
			}
			a.println("wrote", output)
			return nil
		},
	}
	encrypt.register(encryptCmd)
	encryptCmd.Flags().StringVarP(&output, "output", "o", "", "secret file (defaults to wallet.seed_file)")
	encryptCmd.Flags().IntVar(&iterations, "iterations", wallet.DefaultIterations, "PBKDF2 iterations")

	cmd.AddCommand(deriveCmd, encryptCmd)
	return cmd
}

type transferResult struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	Attempts      int    `json:"attempts"`
	Tick          uint32 `json:"tick,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Peers         int    `json:"peersBroadcasted,omitempty"`
	Error         string `json:"error,omitempty"`
}

func newTransferCmd(a *app) *cobra.Command {
	var (
		keys       walletFlags
		tickOffset uint32
	)
	cmd := &cobra.Command{
		Use:   "transfer <destination> <amount>",
		Short: "Sign and submit a transfer through the dispatch queue (ed25519 signing curve)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return errors.Newf("invalid amount %q", args[1])
			}
			kp, err := a.keys(&keys)
			if err != nil {
				return err
			}
			t := a.transport()
			q := dispatch.New(a.cfg.Dispatch, dispatch.Deps{
				Ticks:     t,
				Signer:    wallet.NewSigner(kp, wallet.Ed25519Curve{}),
				Submitter: t,
				Hasher:    hashing.K12,
			})

			var result transferResult
			unsubscribe := q.Subscribe(func(ev dispatch.Event) {
				result.Attempts = ev.Attempt
				switch ev.Kind {
				case dispatch.EventDispatch:
					result.Tick = ev.ScheduledTick
				case dispatch.EventProcessed:
					result.State = dispatch.StateDone.String()
					result.TransactionID = ev.Receipt.TransactionID
					result.Peers = ev.Receipt.PeersBroadcasted
				case dispatch.EventFailed:
					result.State = dispatch.StateFailed.String()
					if ev.Err != nil {
						result.Error = ev.Err.Error()
					}
				}
			})
			defer unsubscribe()

			id, err := q.Enqueue(dispatch.Item{
				Destination: args[0],
				Amount:      amount,
				TickOffset:  tickOffset,
			})
			if err != nil {
				return err
			}
			result.ID = id
			waitErr := q.WaitForIdle(cmd.Context())
			if err := q.Stop(cmd.Context()); err != nil && waitErr == nil {
				waitErr = err
			}
			if waitErr != nil {
				return waitErr
			}
			if err := a.printJSON(result); err != nil {
				return err
			}
			if result.State != dispatch.StateDone.String() {
				return errors.Newf("transfer %s failed after %d attempts", id, result.Attempts)
			}
			return nil
		},
	}
	keys.register(cmd)
	cmd.Flags().Uint32Var(&tickOffset, "tick-offset", 0, "ticks ahead of the current tick (defaults to dispatch.tick_offset)")
	return cmd
}
