// Package node speaks the raw packet protocol to a single peer over TCP:
// current tick info, contract function queries and transaction broadcast.
package node

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qubicctl/internal/contracts"
	"github.com/danmuck/qubicctl/internal/dispatch"
	"github.com/danmuck/qubicctl/internal/observability"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/frame"
	"github.com/danmuck/qubicctl/internal/protocol/layout"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
)

const (
	layoutTickInfo        = "node.CurrentTickInfo"
	layoutContractRequest = "node.RequestContractFunction"
)

var (
	// ErrTryAgain means the peer is busy; the request may be repeated.
	ErrTryAgain = errors.New("node: peer asked to try again")
	// ErrNoReply means the peer ended the exchange without the expected packet.
	ErrNoReply = errors.New("node: no reply")
)

// Dialer opens a stream to a peer. net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Client struct {
	addr    string
	cfg     Config
	dialer  Dialer
	layouts *layout.Registry
	limits  frame.Limits
}

var (
	_ contracts.Transport = (*Client)(nil)
	_ dispatch.TickSource = (*Client)(nil)
	_ dispatch.Submitter  = (*Client)(nil)
)

type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New targets addr, adding the default port when none is given.
func New(addr string, cfg Config, layouts *layout.Registry, opts ...Option) *Client {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	c := &Client{
		addr:    addr,
		cfg:     cfg.normalized(),
		layouts: layouts,
		limits:  frame.DefaultLimits(),
	}
	c.dialer = &net.Dialer{Timeout: c.cfg.ConnectTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Addr() string { return c.addr }

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := c.dialer.DialContext(dctx, "tcp", c.addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", c.addr)
	}
	return conn, nil
}

// exchange sends one request and waits for a packet of want carrying the
// same dejavu. Unrelated packets such as peer lists are skipped.
func (c *Client) exchange(ctx context.Context, req protocol.MessageType, payload []byte, want protocol.MessageType) ([]byte, error) {
	start := time.Now()
	out, err := c.roundTrip(ctx, req, payload, want)
	status := want.String()
	if err != nil {
		status = "error"
	}
	observability.RecordUpstream("tcp", req.String(), status, time.Since(start), err == nil)
	return out, err
}

func (c *Client) roundTrip(ctx context.Context, req protocol.MessageType, payload []byte, want protocol.MessageType) ([]byte, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set deadline")
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	dejavu := protocol.NewDejavu()
	if err := frame.WriteFrame(conn, frame.Frame{
		Header:  protocol.Header{Type: req, Dejavu: dejavu},
		Payload: payload,
	}, c.limits); err != nil {
		return nil, errors.Wrapf(err, "write %s", req)
	}

	for skipped := 0; skipped <= c.cfg.MaxSkippedFrames; skipped++ {
		f, err := frame.ReadFrame(conn, c.limits)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrapf(err, "read reply to %s", req)
		}
		if f.Header.Dejavu != dejavu {
			log.Trace().Str("type", f.Header.Type.String()).Msg("node skip unrelated packet")
			continue
		}
		switch f.Header.Type {
		case want:
			return f.Payload, nil
		case protocol.TryAgain:
			return nil, errors.Wrapf(ErrTryAgain, "%s", req)
		case protocol.EndResponse:
			return nil, errors.Wrapf(ErrNoReply, "%s ended without %s", req, want)
		}
	}
	return nil, errors.Wrapf(ErrNoReply, "%s: gave up after %d unrelated packets", req, c.cfg.MaxSkippedFrames)
}

func (c *Client) TickInfo(ctx context.Context) (protocol.TickInfo, error) {
	payload, err := c.exchange(ctx, protocol.RequestCurrentTickInfo, nil, protocol.RespondCurrentTickInfo)
	if err != nil {
		return protocol.TickInfo{}, err
	}
	rec, err := c.layouts.Decode(layoutTickInfo, payload)
	if err != nil {
		return protocol.TickInfo{}, err
	}
	return tickInfoFromRecord(rec)
}

func tickInfoFromRecord(rec layout.Record) (protocol.TickInfo, error) {
	var info protocol.TickInfo
	var err error
	if info.Tick, err = layout.Get[uint32](rec, "tick"); err != nil {
		return protocol.TickInfo{}, errors.Wrap(err, "tick info")
	}
	duration, err := layout.Get[uint16](rec, "tickDuration")
	if err != nil {
		return protocol.TickInfo{}, errors.Wrap(err, "tick info")
	}
	epoch, err := layout.Get[uint16](rec, "epoch")
	if err != nil {
		return protocol.TickInfo{}, errors.Wrap(err, "tick info")
	}
	if info.InitialTick, err = layout.Get[uint32](rec, "initialTick"); err != nil {
		return protocol.TickInfo{}, errors.Wrap(err, "tick info")
	}
	info.Duration, info.Epoch = uint32(duration), uint32(epoch)
	return info, nil
}

func (c *Client) QuerySmartContract(ctx context.Context, req contracts.Request) (contracts.Response, error) {
	if req.InputSize() > 0xFFFF {
		return contracts.Response{}, protocol.Validationf("contract input of %d bytes exceeds 65535", req.InputSize())
	}
	head, err := c.layouts.Encode(layoutContractRequest, layout.Record{
		"contractIndex": req.ContractIndex,
		"inputType":     req.InputType,
		"inputSize":     uint16(req.InputSize()),
	})
	if err != nil {
		return contracts.Response{}, err
	}
	payload, err := c.exchange(ctx, protocol.RequestContractFunction, append(head, req.Payload...), protocol.RespondContractFunction)
	if err != nil {
		return contracts.Response{}, err
	}
	return contracts.Response{Payload: payload}, nil
}

// Submit broadcasts signed.Encoded with a zero dejavu. Peers do not reply to
// broadcasts, so the receipt counts this one peer.
func (c *Client) Submit(ctx context.Context, signed tx.Signed) (dispatch.Receipt, error) {
	start := time.Now()
	err := c.broadcast(ctx, signed.Encoded)
	observability.RecordUpstream("tcp", protocol.BroadcastTransaction.String(), "sent", time.Since(start), err == nil)
	if err != nil {
		return dispatch.Receipt{}, err
	}
	log.Info().Str("peer", c.addr).Str("tx", signed.ID).Msg("node broadcast sent")
	return dispatch.Receipt{TransactionID: signed.ID, PeersBroadcasted: 1}, nil
}

func (c *Client) broadcast(ctx context.Context, encoded []byte) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return errors.Wrap(err, "set deadline")
	}
	return errors.Wrap(frame.WriteFrame(conn, frame.Frame{
		Header:  protocol.Header{Type: protocol.BroadcastTransaction},
		Payload: encoded,
	}, c.limits), "write broadcast")
}
