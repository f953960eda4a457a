// Package live talks to the HTTP live service: tick info, balances,
// transaction broadcast and smart-contract queries.
package live

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/danmuck/qubicctl/internal/contracts"
	"github.com/danmuck/qubicctl/internal/dispatch"
	"github.com/danmuck/qubicctl/internal/observability"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
)

const (
	DefaultBaseURL = "https://api.qubic.org"
	DefaultTimeout = 15 * time.Second

	PathTickInfo           = "/v1/tick-info"
	PathBalances           = "/v1/balances/"
	PathBroadcast          = "/v1/broadcast-transaction"
	PathQuerySmartContract = "/v1/querySmartContract"
)

// HTTPError is a non-2xx reply from the service.
type HTTPError struct {
	Status int
	Path   string
	Body   string
}

func (e *HTTPError) Error() string {
	return "live: " + e.Path + " returned " + strconv.Itoa(e.Status) + ": " + strings.TrimSpace(e.Body)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
	// RequestsPerSecond caps outbound calls. Zero means unlimited.
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

var (
	_ contracts.Transport = (*Client)(nil)
	_ dispatch.TickSource = (*Client)(nil)
	_ dispatch.Submitter  = (*Client)(nil)
)

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	for k, v := range opts.Headers {
		hc.SetHeader(k, v)
	}
	c := &Client{http: hc}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

type tickInfoResponse struct {
	TickInfo protocol.TickInfo `json:"tickInfo"`
}

// Balance is one entity's balance record. Amounts are decimal strings.
type Balance struct {
	ID                         string `json:"id"`
	Balance                    string `json:"balance"`
	ValidForTick               uint32 `json:"validForTick"`
	LatestIncomingTransferTick uint32 `json:"latestIncomingTransferTick"`
	LatestOutgoingTransferTick uint32 `json:"latestOutgoingTransferTick"`
	IncomingAmount             string `json:"incomingAmount"`
	OutgoingAmount             string `json:"outgoingAmount"`
	NumberOfIncomingTransfers  uint32 `json:"numberOfIncomingTransfers"`
	NumberOfOutgoingTransfers  uint32 `json:"numberOfOutgoingTransfers"`
}

type balanceResponse struct {
	Balance Balance `json:"balance"`
}

type BroadcastRequest struct {
	EncodedTransaction string `json:"encodedTransaction"`
}

type BroadcastResponse struct {
	PeersBroadcasted   int    `json:"peersBroadcasted"`
	EncodedTransaction string `json:"encodedTransaction"`
	TransactionID      string `json:"transactionId"`
}

type QueryRequest struct {
	ContractIndex uint32 `json:"contractIndex"`
	InputType     uint16 `json:"inputType"`
	InputSize     int    `json:"inputSize"`
	RequestData   string `json:"requestData"`
}

type QueryResponse struct {
	ResponseData string `json:"responseData"`
}

func (c *Client) do(ctx context.Context, method, path, op string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit")
		}
	}
	req := c.http.R().SetContext(ctx).SetResult(out)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		observability.RecordUpstream("http", op, "error", time.Since(start), false)
		return errors.Wrapf(err, "%s %s", method, path)
	}
	status := resp.StatusCode()
	observability.RecordUpstream("http", op, strconv.Itoa(status), time.Since(start), !resp.IsError())
	log.Debug().Str("op", op).Int("status", status).Dur("took", resp.Time()).Msg("live request")
	if resp.IsError() {
		return &HTTPError{Status: status, Path: path, Body: resp.String()}
	}
	return nil
}

func (c *Client) TickInfo(ctx context.Context) (protocol.TickInfo, error) {
	var out tickInfoResponse
	if err := c.do(ctx, http.MethodGet, PathTickInfo, observability.OpTickInfo, nil, &out); err != nil {
		return protocol.TickInfo{}, err
	}
	return out.TickInfo, nil
}

func (c *Client) Balance(ctx context.Context, id string) (Balance, error) {
	var out balanceResponse
	if err := c.do(ctx, http.MethodGet, PathBalances+id, observability.OpBalance, nil, &out); err != nil {
		return Balance{}, err
	}
	return out.Balance, nil
}

// Broadcast posts already encoded transaction bytes.
func (c *Client) Broadcast(ctx context.Context, encoded []byte) (BroadcastResponse, error) {
	var out BroadcastResponse
	body := BroadcastRequest{EncodedTransaction: base64.StdEncoding.EncodeToString(encoded)}
	if err := c.do(ctx, http.MethodPost, PathBroadcast, observability.OpBroadcast, body, &out); err != nil {
		return BroadcastResponse{}, err
	}
	return out, nil
}

func (c *Client) Submit(ctx context.Context, signed tx.Signed) (dispatch.Receipt, error) {
	out, err := c.Broadcast(ctx, signed.Encoded)
	if err != nil {
		return dispatch.Receipt{}, err
	}
	return dispatch.Receipt{TransactionID: out.TransactionID, PeersBroadcasted: out.PeersBroadcasted}, nil
}

func (c *Client) QuerySmartContract(ctx context.Context, req contracts.Request) (contracts.Response, error) {
	var out QueryResponse
	body := QueryRequest{
		ContractIndex: req.ContractIndex,
		InputType:     req.InputType,
		InputSize:     req.InputSize(),
		RequestData:   base64.StdEncoding.EncodeToString(req.Payload),
	}
	if err := c.do(ctx, http.MethodPost, PathQuerySmartContract, observability.OpQuerySmartContract, body, &out); err != nil {
		return contracts.Response{}, err
	}
	payload, err := base64.StdEncoding.DecodeString(out.ResponseData)
	if err != nil {
		return contracts.Response{}, protocol.Formatf("responseData is not base64: %v", err)
	}
	return contracts.Response{Payload: payload}, nil
}
