package node

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/qubicctl/internal/contracts"
	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/frame"
	"github.com/danmuck/qubicctl/internal/protocol/layout"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
	"github.com/danmuck/qubicctl/internal/testutil/testlog"
)

// fakePeer accepts one connection per request and answers with reply.
type fakePeer struct {
	ln       net.Listener
	received chan frame.Frame
}

func startPeer(t *testing.T, reply func(req frame.Frame) []frame.Frame) *fakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &fakePeer{ln: ln, received: make(chan frame.Frame, 8)}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				_ = frame.WriteFrame(conn, frame.Frame{
					Header:  protocol.Header{Type: protocol.ExchangePublicPeers},
					Payload: make([]byte, 16),
				}, frame.DefaultLimits())
				req, err := frame.ReadFrame(conn, frame.DefaultLimits())
				if err != nil {
					return
				}
				p.received <- req
				if reply == nil {
					return
				}
				for _, f := range reply(req) {
					if err := frame.WriteFrame(conn, f, frame.DefaultLimits()); err != nil {
						return
					}
				}
				time.Sleep(50 * time.Millisecond)
			}(conn)
		}
	}()
	return p
}

func newTestClient(t *testing.T, p *fakePeer) *Client {
	t.Helper()
	reg, err := layout.Builtin()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.RequestTimeout = 2 * time.Second
	return New(p.ln.Addr().String(), cfg, reg)
}

func TestTickInfoSkipsUnrelatedPackets(t *testing.T) {
	testlog.Start(t)

	reg, err := layout.Builtin()
	require.NoError(t, err)
	body, err := reg.Encode(layoutTickInfo, layout.Record{
		"tickDuration":            uint16(2),
		"epoch":                   uint16(141),
		"tick":                    uint32(16000123),
		"numberOfAlignedVotes":    uint16(451),
		"numberOfMisalignedVotes": uint16(0),
		"initialTick":             uint32(16000000),
	})
	require.NoError(t, err)

	p := startPeer(t, func(req frame.Frame) []frame.Frame {
		return []frame.Frame{
			{Header: protocol.Header{Type: protocol.RespondCurrentTickInfo, Dejavu: req.Header.Dejavu + 1}, Payload: make([]byte, len(body))},
			{Header: protocol.Header{Type: protocol.RespondCurrentTickInfo, Dejavu: req.Header.Dejavu}, Payload: body},
		}
	})
	info, err := newTestClient(t, p).TickInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, protocol.TickInfo{Tick: 16000123, Duration: 2, Epoch: 141, InitialTick: 16000000}, info)

	req := <-p.received
	require.Equal(t, protocol.RequestCurrentTickInfo, req.Header.Type)
	require.NotZero(t, req.Header.Dejavu)
	require.Equal(t, uint32(protocol.HeaderSize), req.Header.Size)
}

func TestQuerySmartContractFramesInput(t *testing.T) {
	testlog.Start(t)

	p := startPeer(t, func(req frame.Frame) []frame.Frame {
		return []frame.Frame{{
			Header:  protocol.Header{Type: protocol.RespondContractFunction, Dejavu: req.Header.Dejavu},
			Payload: []byte{9, 8, 7},
		}}
	})
	resp, err := newTestClient(t, p).QuerySmartContract(context.Background(), contracts.Request{
		ContractIndex: 8,
		InputType:     2,
		Payload:       []byte{5, 0, 0, 0},
	})
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8, 7}, resp.Payload)

	req := <-p.received
	require.Equal(t, protocol.RequestContractFunction, req.Header.Type)
	require.Equal(t, []byte{8, 0, 0, 0, 2, 0, 4, 0, 5, 0, 0, 0}, req.Payload)
}

func TestTryAgainAndEndResponse(t *testing.T) {
	testlog.Start(t)

	cases := map[protocol.MessageType]error{
		protocol.TryAgain:    ErrTryAgain,
		protocol.EndResponse: ErrNoReply,
	}
	for kind, want := range cases {
		kind := kind
		p := startPeer(t, func(req frame.Frame) []frame.Frame {
			return []frame.Frame{{Header: protocol.Header{Type: kind, Dejavu: req.Header.Dejavu}}}
		})
		_, err := newTestClient(t, p).TickInfo(context.Background())
		require.True(t, errors.Is(err, want), "%s: got %v", kind, err)
	}
}

func TestSubmitBroadcastsWithZeroDejavu(t *testing.T) {
	testlog.Start(t)

	p := startPeer(t, nil)
	signed, err := tx.Seal(tx.Transaction{Amount: 1, Tick: 10, Signature: make([]byte, tx.SignatureSize)}, hashing.K12)
	require.NoError(t, err)

	receipt, err := newTestClient(t, p).Submit(context.Background(), signed)
	require.NoError(t, err)
	require.Equal(t, signed.ID, receipt.TransactionID)
	require.Equal(t, 1, receipt.PeersBroadcasted)

	select {
	case req := <-p.received:
		require.Equal(t, protocol.BroadcastTransaction, req.Header.Type)
		require.Zero(t, req.Header.Dejavu)
		require.Equal(t, signed.Encoded, req.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("peer never saw the broadcast")
	}
}

func TestContextCancelAbortsWait(t *testing.T) {
	testlog.Start(t)

	p := startPeer(t, func(frame.Frame) []frame.Frame {
		time.Sleep(time.Second)
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, p).TickInfo(ctx)
	require.Error(t, err)
}

func TestNewAddsDefaultPort(t *testing.T) {
	testlog.Start(t)

	require.Equal(t, "203.0.113.7:21841", New("203.0.113.7", Config{}, nil).Addr())
	require.Equal(t, "203.0.113.7:9000", New("203.0.113.7:9000", Config{}, nil).Addr())
}

func TestTickInfoRecordWithWrongTypes(t *testing.T) {
	testlog.Start(t)

	info, err := tickInfoFromRecord(layout.Record{
		"tick": uint32(5), "tickDuration": uint16(2), "epoch": uint16(150), "initialTick": uint32(1),
	})
	require.NoError(t, err)
	require.Equal(t, protocol.TickInfo{Tick: 5, Duration: 2, Epoch: 150, InitialTick: 1}, info)

	_, err = tickInfoFromRecord(layout.Record{
		"tick": uint32(5), "tickDuration": uint32(2), "epoch": uint16(150), "initialTick": uint32(1),
	})
	require.True(t, errors.Is(err, protocol.ErrValidation), "got %v", err)
}
