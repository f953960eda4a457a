// Package ccf enumerates governance proposals held by the computor controlled
// fund contract.
package ccf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/qubicctl/internal/contracts"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/layout"
)

const (
	ContractIndex = 8
	// PageSize is the index capacity of one GetProposalIndices response.
	// A shorter page ends the enumeration.
	PageSize = 64

	DefaultConcurrency = 4
)

var (
	getProposalIndices = contracts.Function{
		ContractIndex: ContractIndex,
		InputType:     1,
		Input:         "ccf.GetProposalIndices_input",
		Output:        "ccf.GetProposalIndices_output",
	}
	getProposal = contracts.Function{
		ContractIndex: ContractIndex,
		InputType:     2,
		Input:         "ccf.GetProposal_input",
		Output:        "ccf.GetProposal_output",
	}
)

type Transfer struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

type Proposal struct {
	Index       uint16   `json:"index"`
	Active      bool     `json:"active"`
	Proposer    string   `json:"proposer"`
	Epoch       uint16   `json:"epoch"`
	Type        uint16   `json:"type"`
	Tick        uint32   `json:"tick"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description"`
	Transfer    Transfer `json:"transfer"`
}

// TickInfoSource reports the network epoch used when no epoch is requested.
type TickInfoSource interface {
	TickInfo(ctx context.Context) (protocol.TickInfo, error)
}

type Client struct {
	caller      *contracts.Caller
	ticks       TickInfoSource
	concurrency int
}

type Option func(*Client)

func WithTickSource(src TickInfoSource) Option {
	return func(c *Client) { c.ticks = src }
}

// WithConcurrency bounds parallel record fetches in FetchAll.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New builds a client. caller must resolve the built-in ccf layouts.
func New(caller *contracts.Caller, opts ...Option) *Client {
	c := &Client{caller: caller, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchIndices pages through proposal indices of one partition.
func (c *Client) FetchIndices(ctx context.Context, active bool) ([]uint16, error) {
	indices := make([]uint16, 0, PageSize)
	prev := int32(-1)
	for page := 0; ; page++ {
		res, err := c.caller.Call(ctx, getProposalIndices, layout.Record{
			"activeProposals":   active,
			"prevProposalIndex": prev,
		})
		if err != nil {
			return nil, err
		}
		count, err := layout.Get[uint16](res.Value, "numOfIndices")
		if err != nil {
			return nil, errors.Wrapf(err, "ccf indices page %d", page)
		}
		if count > PageSize {
			return nil, protocol.Validationf("ccf indices page %d: count %d exceeds %d", page, count, PageSize)
		}
		if count == 0 {
			break
		}
		raw, err := layout.Get[[]any](res.Value, "indices")
		if err != nil {
			return nil, errors.Wrapf(err, "ccf indices page %d", page)
		}
		if len(raw) < int(count) {
			return nil, protocol.Validationf("ccf indices page %d: count %d exceeds %d entries", page, count, len(raw))
		}
		for i, v := range raw[:count] {
			idx, ok := v.(uint16)
			if !ok {
				return nil, protocol.Validationf("ccf indices page %d: entry %d holds %T", page, i, v)
			}
			indices = append(indices, idx)
		}
		last := int32(indices[len(indices)-1])
		log.Debug().Bool("active", active).Int("page", page).Uint16("count", count).Int32("last", last).Msg("ccf.FetchIndices")
		if count < PageSize {
			break
		}
		if last <= prev {
			return nil, protocol.Validationf("ccf indices page %d did not advance past %d", page, prev)
		}
		prev = last
	}
	return indices, nil
}

// FetchRecord loads one proposal. A false ok flag is ErrRemoteRejected.
func (c *Client) FetchRecord(ctx context.Context, index uint16) (Proposal, error) {
	res, err := c.caller.Call(ctx, getProposal, layout.Record{"proposalIndex": index})
	if err != nil {
		return Proposal{}, err
	}
	if ok, _ := res.Value["okay"].(bool); !ok {
		return Proposal{}, errors.Wrapf(protocol.ErrRemoteRejected, "ccf reported failure when fetching proposal %d", index)
	}
	return proposalFromRecord(index, res.Value)
}

func proposalFromRecord(index uint16, rec layout.Record) (Proposal, error) {
	p, err := readProposal(index, rec)
	if err != nil {
		return Proposal{}, errors.Wrapf(err, "ccf proposal %d", index)
	}
	return p, nil
}

func readProposal(index uint16, rec layout.Record) (Proposal, error) {
	data, err := layout.Get[layout.Record](rec, "proposal")
	if err != nil {
		return Proposal{}, err
	}
	p := Proposal{Index: index}
	if p.Proposer, err = layout.Get[string](rec, "proposerPublicKey"); err != nil {
		return Proposal{}, err
	}
	raw, err := layout.Get[[]byte](data, "url")
	if err != nil {
		return Proposal{}, err
	}
	p.URL = cString(raw)
	if p.Epoch, err = layout.Get[uint16](data, "epoch"); err != nil {
		return Proposal{}, err
	}
	if p.Type, err = layout.Get[uint16](data, "type"); err != nil {
		return Proposal{}, err
	}
	if p.Tick, err = layout.Get[uint32](data, "tick"); err != nil {
		return Proposal{}, err
	}
	if p.Transfer.Destination, err = layout.Get[string](data, "destination"); err != nil {
		return Proposal{}, err
	}
	if p.Transfer.Amount, err = layout.Get[int64](data, "amount"); err != nil {
		return Proposal{}, err
	}
	p.Description = p.URL
	if p.URL == "" {
		p.Description = fmt.Sprintf("Proposal set at tick %d", p.Tick)
	}
	return p, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

type FetchOptions struct {
	// Epoch filters proposals; nil means the current network epoch.
	Epoch *uint32
}

type FetchResult struct {
	Proposals       []Proposal `json:"proposals"`
	Epoch           uint32     `json:"epoch"`
	NetworkEpoch    uint32     `json:"networkEpoch"`
	ActiveIndices   []uint16   `json:"activeIndices"`
	FinishedIndices []uint16   `json:"finishedIndices"`
}

// FetchAll loads active then finished indices, every record, and keeps the
// proposals of the target epoch.
func (c *Client) FetchAll(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	var result FetchResult
	if c.ticks != nil {
		info, err := c.ticks.TickInfo(ctx)
		if err != nil {
			return FetchResult{}, errors.Wrap(err, "ccf network epoch")
		}
		result.NetworkEpoch = info.Epoch
		result.Epoch = info.Epoch
	} else if opts.Epoch == nil {
		return FetchResult{}, protocol.Validationf("ccf fetch needs an epoch or a tick source")
	}
	if opts.Epoch != nil {
		result.Epoch = *opts.Epoch
	}

	var err error
	if result.ActiveIndices, err = c.FetchIndices(ctx, true); err != nil {
		return FetchResult{}, errors.Wrap(err, "ccf active indices")
	}
	if result.FinishedIndices, err = c.FetchIndices(ctx, false); err != nil {
		return FetchResult{}, errors.Wrap(err, "ccf finished indices")
	}

	total := len(result.ActiveIndices) + len(result.FinishedIndices)
	records := make([]Proposal, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := 0; i < total; i++ {
		index, active := result.ActiveIndices, true
		pos := i
		if i >= len(result.ActiveIndices) {
			index, active, pos = result.FinishedIndices, false, i-len(result.ActiveIndices)
		}
		slot, idx := i, index[pos]
		g.Go(func() error {
			p, err := c.FetchRecord(gctx, idx)
			if err != nil {
				return err
			}
			p.Active = active
			records[slot] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FetchResult{}, err
	}

	result.Proposals = make([]Proposal, 0, len(records))
	for _, p := range records {
		if uint32(p.Epoch) == result.Epoch {
			result.Proposals = append(result.Proposals, p)
		}
	}
	log.Info().
		Uint32("epoch", result.Epoch).
		Int("active", len(result.ActiveIndices)).
		Int("finished", len(result.FinishedIndices)).
		Int("matched", len(result.Proposals)).
		Msg("ccf.FetchAll")
	return result, nil
}
