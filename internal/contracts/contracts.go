// Package contracts calls smart-contract functions through a pluggable
// transport, encoding inputs and decoding outputs with struct layouts.
package contracts

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/layout"
)

// Request is the envelope handed to a transport. InputSize is len(Payload).
type Request struct {
	ContractIndex uint32
	InputType     uint16
	Payload       []byte
}

func (r Request) InputSize() int {
	return len(r.Payload)
}

type Response struct {
	Payload []byte
}

// Transport carries one contract function call to the network.
type Transport interface {
	QuerySmartContract(ctx context.Context, req Request) (Response, error)
}

// TransportFunc adapts a plain function to Transport.
type TransportFunc func(ctx context.Context, req Request) (Response, error)

func (f TransportFunc) QuerySmartContract(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Function names one contract entry point and the layouts of its input and
// output. Empty layout names mean an empty input or a raw output.
type Function struct {
	ContractIndex uint32
	InputType     uint16
	Input         string
	Output        string
}

// Result is the raw response plus the decoded value when Output is set.
type Result struct {
	Raw   []byte
	Value layout.Record
}

type Caller struct {
	transport Transport
	layouts   *layout.Registry
}

func NewCaller(transport Transport, layouts *layout.Registry) *Caller {
	return &Caller{transport: transport, layouts: layouts}
}

func (c *Caller) Layouts() *layout.Registry {
	return c.layouts
}

// Call encodes input, performs the call and decodes the response.
func (c *Caller) Call(ctx context.Context, fn Function, input layout.Record) (Result, error) {
	var payload []byte
	if fn.Input != "" {
		encoded, err := c.layouts.Encode(fn.Input, input)
		if err != nil {
			return Result{}, err
		}
		payload = encoded
	}
	raw, err := c.CallRaw(ctx, fn.ContractIndex, fn.InputType, payload)
	if err != nil {
		return Result{}, err
	}
	res := Result{Raw: raw}
	if fn.Output == "" {
		return res, nil
	}
	value, err := c.layouts.Decode(fn.Output, raw)
	if err != nil {
		return Result{}, errors.Wrapf(err, "contract=%d input_type=%d", fn.ContractIndex, fn.InputType)
	}
	res.Value = value
	return res, nil
}

func (c *Caller) CallRaw(ctx context.Context, contractIndex uint32, inputType uint16, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, protocol.Validationf("contract input of %d bytes exceeds 65535", len(payload))
	}
	log.Debug().
		Uint32("contract", contractIndex).
		Uint16("input_type", inputType).
		Int("input_size", len(payload)).
		Msg("contracts.Call")
	resp, err := c.transport.QuerySmartContract(ctx, Request{
		ContractIndex: contractIndex,
		InputType:     inputType,
		Payload:       payload,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "query contract=%d input_type=%d", contractIndex, inputType)
	}
	return resp.Payload, nil
}
