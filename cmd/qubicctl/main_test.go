package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/qubicctl/internal/client/live"
	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/mocklive"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/identity"
	"github.com/danmuck/qubicctl/internal/testutil/testlog"
	"github.com/danmuck/qubicctl/internal/wallet"
)

const (
	testSeed         = "wqbdupxgcaimwdsnchitjmsplzclkqokhadgehdxqogeeiovzvadstt"
	sequenceKeyHex   = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	sequenceIdentity = "ICTNHRYOMCXHFAKVFBAYUMTQOJLAMOSOSERKAFGLRAOHFCLLNIHTXMXAWAPO"
)

func run(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	cmd := newRootCmd(&out, lookup)
	cmd.SetArgs(args)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newMockLive(t *testing.T) (*mocklive.Service, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := mocklive.New(mocklive.Options{TickInfo: protocol.TickInfo{Tick: 5000, Epoch: 150, Duration: 2}})
	require.NoError(t, err)
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	return svc, srv.URL
}

func TestIdentityCommands(t *testing.T) {
	testlog.Start(t)

	out, err := run(t, nil, "identity", "from-key", sequenceKeyHex)
	require.NoError(t, err)
	require.Equal(t, sequenceIdentity, strings.TrimSpace(out))

	out, err = run(t, nil, "identity", "from-key", "--lower", sequenceKeyHex)
	require.NoError(t, err)
	require.Equal(t, strings.ToLower(sequenceIdentity), strings.TrimSpace(out))

	out, err = run(t, nil, "identity", "to-key", sequenceIdentity)
	require.NoError(t, err)
	require.Equal(t, sequenceKeyHex, strings.TrimSpace(out))

	_, err = run(t, nil, "identity", "verify", sequenceIdentity)
	require.NoError(t, err)

	broken := sequenceIdentity[:59] + "B"
	_, err = run(t, nil, "identity", "verify", broken)
	require.ErrorIs(t, err, protocol.ErrFormat)
}

func TestHeaderDecode(t *testing.T) {
	testlog.Start(t)

	out, err := run(t, nil, "header", "decode", "1000000b01000000")
	require.NoError(t, err)
	var h decodedHeader
	require.NoError(t, json.Unmarshal([]byte(out), &h))
	require.Equal(t, uint32(16), h.Size)
	require.Equal(t, uint8(11), h.Type)
	require.Equal(t, uint32(1), h.Dejavu)
	require.Equal(t, 8, h.PayloadLen)

	_, err = run(t, nil, "header", "decode", "1000")
	require.ErrorIs(t, err, protocol.ErrTruncated)
}

func TestLayoutCommands(t *testing.T) {
	testlog.Start(t)

	out, err := run(t, nil, "layout", "list")
	require.NoError(t, err)
	require.Contains(t, out, "ccf.GetProposalIndices_output")

	out, err = run(t, nil, "layout", "size", "ccf.GetProposalIndices_output")
	require.NoError(t, err)
	require.Equal(t, "130", strings.TrimSpace(out))

	out, err = run(t, nil, "layout", "decode", "ccf.GetProposalIndices_input", "0100000005000000")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, true, rec["activeProposals"])
	require.EqualValues(t, 5, rec["prevProposalIndex"])
}

func TestTickBalanceAndProposalsAgainstMockLive(t *testing.T) {
	testlog.Start(t)

	svc, url := newMockLive(t)
	svc.SetBalance(live.Balance{ID: sequenceIdentity, Balance: "42"})
	for i := uint16(0); i < 3; i++ {
		svc.PutProposal(mocklive.Proposal{
			Index:       i,
			Active:      true,
			Proposer:    sequenceKeyHex,
			Epoch:       150,
			Type:        1,
			Destination: sequenceKeyHex,
			Amount:      int64(i+1) * 100,
		})
	}
	svc.PutProposal(mocklive.Proposal{Index: 9, Proposer: sequenceKeyHex, Epoch: 149, Destination: sequenceKeyHex})

	out, err := run(t, nil, "--base-url", url, "tick")
	require.NoError(t, err)
	var info protocol.TickInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Equal(t, uint32(5000), info.Tick)
	require.Equal(t, uint32(150), info.Epoch)

	out, err = run(t, nil, "--base-url", url, "balance", sequenceIdentity)
	require.NoError(t, err)
	require.Contains(t, out, `"balance": "42"`)

	out, err = run(t, nil, "--base-url", url, "proposals")
	require.NoError(t, err)
	var res struct {
		Epoch     uint32 `json:"epoch"`
		Proposals []struct {
			Index uint16 `json:"index"`
		} `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, uint32(150), res.Epoch)
	require.Len(t, res.Proposals, 3)

	out, err = run(t, nil, "--base-url", url, "proposals", "--epoch", "149")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Proposals, 1)
	require.Equal(t, uint16(9), res.Proposals[0].Index)
}

func TestMonitorBalanceOfIdentity(t *testing.T) {
	testlog.Start(t)

	svc, url := newMockLive(t)
	svc.SetBalance(live.Balance{ID: sequenceIdentity, Balance: "9000", LatestIncomingTransferTick: 4990})

	out, err := run(t, nil, "--base-url", url, "monitor", "--identity", sequenceIdentity, "--count", "1")
	require.NoError(t, err)
	var sample struct {
		Identity           string `json:"identity"`
		Balance            int64  `json:"balance"`
		Delta              int64  `json:"delta"`
		LatestIncomingTick uint32 `json:"latestIncomingTick"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sample))
	require.Equal(t, sequenceIdentity, sample.Identity)
	require.Equal(t, int64(9000), sample.Balance)
	require.Zero(t, sample.Delta)
	require.Equal(t, uint32(4990), sample.LatestIncomingTick)
}

func TestBalanceNeedsLiveBackend(t *testing.T) {
	testlog.Start(t)

	_, err := run(t, nil, "--node", "127.0.0.1:1", "balance", sequenceIdentity)
	require.Error(t, err)
	require.Contains(t, err.Error(), "live backend")
}

func TestSeedDeriveAndEncrypt(t *testing.T) {
	testlog.Start(t)

	out, err := run(t, nil, "seed", "derive", "--seed", testSeed, "--index", "0", "--show-private")
	require.NoError(t, err)
	var keys derivedKeys
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	want, err := wallet.Derive(testSeed, 0, wallet.Ed25519Curve{})
	require.NoError(t, err)
	require.Equal(t, want.Identity, keys.Identity)
	require.Equal(t, want.PrivateHex(), keys.PrivateKey)
	require.NoError(t, identity.Verify(keys.Identity, hashing.K12))

	secret := filepath.Join(t.TempDir(), "seed.json")
	env := map[string]string{envSeed: testSeed, envSeedPassword: "pw"}
	_, err = run(t, env, "seed", "encrypt", "--output", secret, "--iterations", "1000")
	require.NoError(t, err)

	cfgPath := filepath.Join(t.TempDir(), "qubicctl.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("[wallet]\nseed_file = %q\npassword = \"${ENV:%s}\"\n", secret, envSeedPassword)), 0o600))
	out, err = run(t, map[string]string{envSeedPassword: "pw"}, "--config", cfgPath, "seed", "derive")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	require.Equal(t, want.Identity, keys.Identity)
	require.Empty(t, keys.PrivateKey)

	_, err = run(t, map[string]string{envSeedPassword: "wrong"}, "--config", cfgPath, "seed", "derive")
	require.ErrorIs(t, err, wallet.ErrDecrypt)
}

func TestTransferThroughDispatchQueue(t *testing.T) {
	testlog.Start(t)

	svc, url := newMockLive(t)
	out, err := run(t, nil, "--base-url", url, "transfer", "--seed", testSeed, "--tick-offset", "20", sequenceIdentity, "1500")
	require.NoError(t, err)

	var res transferResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, "done", res.State)
	require.Equal(t, uint32(5020), res.Tick)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, 3, res.Peers)

	sent := svc.Broadcasts()
	require.Len(t, sent, 1)
	require.Equal(t, uint64(1500), sent[0].Transaction.Amount)
	require.Equal(t, sent[0].TransactionID, res.TransactionID)

	out, err = run(t, nil, "tx", "decode", fmt.Sprintf("%x", sent[0].Encoded))
	require.NoError(t, err)
	var decoded decodedTx
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, sequenceIdentity, decoded.DestID)
	require.Equal(t, res.TransactionID, decoded.ID)
}

func TestOfflineCreateThenSign(t *testing.T) {
	testlog.Start(t)

	svc, url := newMockLive(t)
	keys, err := wallet.Derive(testSeed, 0, wallet.Ed25519Curve{})
	require.NoError(t, err)
	bundlePath := filepath.Join(t.TempDir(), "bundle.json")

	out, err := run(t, nil, "--base-url", url, "offline", "create", "--meta", "memo=rent", "-o", bundlePath,
		keys.Identity, sequenceIdentity, "700")
	require.NoError(t, err)
	require.Contains(t, out, bundlePath)

	bundle, err := wallet.LoadOfflineBundle(bundlePath)
	require.NoError(t, err)
	require.Equal(t, uint32(5010), bundle.Transfer.Tick)
	require.Equal(t, "rent", bundle.Metadata["memo"])

	out, err = run(t, nil, "--base-url", url, "offline", "sign", "--seed", testSeed, "--broadcast", bundlePath)
	require.NoError(t, err)
	var signed offlineSigned
	require.NoError(t, json.Unmarshal([]byte(out), &signed))
	require.Equal(t, uint32(5010), signed.Tick)
	require.Equal(t, 3, signed.PeersBroadcasted)

	sent := svc.Broadcasts()
	require.Len(t, sent, 1)
	require.Equal(t, uint64(700), sent[0].Transaction.Amount)
	require.Equal(t, fmt.Sprintf("%x", sent[0].Encoded), signed.Hex)

	_, err = run(t, nil, "offline", "sign", "--seed", testSeed, "--index", "3", bundlePath)
	require.ErrorIs(t, err, protocol.ErrValidation)
}

func TestConfigInitAndValidate(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "qubicctl.toml")
	_, err := run(t, nil, "config", "init", path)
	require.NoError(t, err)

	_, err = run(t, nil, "config", "init", path)
	require.Error(t, err)

	out, err := run(t, nil, "config", "validate", path)
	require.NoError(t, err)
	require.Contains(t, out, "valid")

	require.NoError(t, os.WriteFile(path, []byte("[client]\nbackend = \"node\"\n"), 0o600))
	_, err = run(t, nil, "config", "validate", path)
	require.ErrorIs(t, err, protocol.ErrValidation)
}
