// Package mocklive is an in-process stand-in for the HTTP live service. It
// serves tick info, balances, broadcasts and contract queries from memory and
// answers the proposal fund's index and record functions from a table.
package mocklive

import (
	"encoding/base64"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qubicctl/internal/auth"
	"github.com/danmuck/qubicctl/internal/client/live"
	"github.com/danmuck/qubicctl/internal/hashing"
	"github.com/danmuck/qubicctl/internal/observability"
	"github.com/danmuck/qubicctl/internal/protocol"
	"github.com/danmuck/qubicctl/internal/protocol/layout"
	"github.com/danmuck/qubicctl/internal/protocol/tx"
)

const (
	ccfContractIndex = 8
	ccfPageSize      = 64
	defaultPeers     = 3
)

var routeOperations = observability.RouteOperations{
	"/health":                   "health",
	"/metrics":                  "metrics",
	"/v1/tick-info":             observability.OpTickInfo,
	"/v1/balances/:id":          observability.OpBalance,
	"/v1/broadcast-transaction": observability.OpBroadcast,
	"/v1/querySmartContract":    observability.OpQuerySmartContract,
}

// Proposal is one row of the fund table.
type Proposal struct {
	Index       uint16
	Active      bool
	Proposer    string
	Epoch       uint16
	Type        uint16
	Tick        uint32
	URL         string
	Destination string
	Amount      int64
}

// Broadcast is one accepted transaction.
type Broadcast struct {
	Transaction   tx.Transaction
	Encoded       []byte
	TransactionID string
	At            time.Time
}

type Options struct {
	ID          string
	Addr        string
	CORSOrigins []string
	// AuthToken, when set, guards /v1 with a bearer token.
	AuthToken string
	TickInfo  protocol.TickInfo
	// Peers is reported as peersBroadcasted. Zero means 3.
	Peers   int
	Layouts *layout.Registry
}

type Service struct {
	ID       string
	Addr     string
	Appeared time.Time

	router  *gin.Engine
	layouts *layout.Registry
	peers   int

	mu        sync.RWMutex
	tick      protocol.TickInfo
	balances  map[string]live.Balance
	proposals map[uint16]Proposal
	responses map[string][]byte
	sent      []Broadcast
}

func New(opts Options) (*Service, error) {
	if opts.ID == "" {
		opts.ID = "mock-live"
	}
	if opts.Peers <= 0 {
		opts.Peers = defaultPeers
	}
	if opts.Layouts == nil {
		reg, err := layout.Builtin()
		if err != nil {
			return nil, err
		}
		opts.Layouts = reg
	}
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.Observe(opts.ID, routeOperations, observability.Component(opts.ID)))
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: opts.CORSOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Service{
		ID:        opts.ID,
		Addr:      opts.Addr,
		Appeared:  time.Now(),
		router:    r,
		layouts:   opts.Layouts,
		peers:     opts.Peers,
		tick:      opts.TickInfo,
		balances:  make(map[string]live.Balance),
		proposals: make(map[uint16]Proposal),
		responses: make(map[string][]byte),
	}
	s.registerRoutes(opts.AuthToken)
	return s, nil
}

func (s *Service) Router() *gin.Engine {
	return s.router
}

func (s *Service) Serve() error {
	log.Info().Str("service", s.ID).Str("addr", s.Addr).Msg("mock live service listening")
	return s.router.Run(s.Addr)
}

func (s *Service) registerRoutes(token string) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	if token != "" {
		v1.Use(auth.RequireBearer(auth.StaticToken{Token: token}))
	}
	v1.GET("/tick-info", s.handleTickInfo)
	v1.GET("/balances/:id", s.handleBalance)
	v1.POST("/broadcast-transaction", s.handleBroadcast)
	v1.POST("/querySmartContract", s.handleQuery)
}

func (s *Service) SetTickInfo(info protocol.TickInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = info
}

// AdvanceTick moves the tick forward by n.
func (s *Service) AdvanceTick(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick.Tick += n
}

func (s *Service) SetBalance(b live.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[b.ID] = b
}

func (s *Service) PutProposal(p Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.Index] = p
}

// SetContractResponse pins the raw reply for one contract function,
// overriding built-in handling.
func (s *Service) SetContractResponse(contractIndex uint32, inputType uint16, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[responseKey(contractIndex, inputType)] = append([]byte(nil), payload...)
}

func (s *Service) Broadcasts() []Broadcast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Broadcast(nil), s.sent...)
}

func responseKey(contractIndex uint32, inputType uint16) string {
	return strconv.FormatUint(uint64(contractIndex), 10) + ":" + strconv.FormatUint(uint64(inputType), 10)
}

func (s *Service) handleTickInfo(c *gin.Context) {
	s.mu.RLock()
	info := s.tick
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"tickInfo": info})
}

func (s *Service) handleBalance(c *gin.Context) {
	id := c.Param("id")
	s.mu.RLock()
	b, ok := s.balances[id]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no balance for " + id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": b})
}

func (s *Service) handleBroadcast(c *gin.Context) {
	var req live.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.EncodedTransaction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "encodedTransaction is not base64"})
		return
	}
	t, err := tx.Decode(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sealed, err := tx.Seal(t, hashing.K12)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.sent = append(s.sent, Broadcast{Transaction: t, Encoded: sealed.Encoded, TransactionID: sealed.ID, At: time.Now()})
	s.mu.Unlock()
	log.Info().Str("tx", sealed.ID).Uint32("tick", t.Tick).Uint64("amount", t.Amount).Msg("mock broadcast accepted")

	c.JSON(http.StatusOK, live.BroadcastResponse{
		PeersBroadcasted:   s.peers,
		EncodedTransaction: req.EncodedTransaction,
		TransactionID:      sealed.ID,
	})
}

func (s *Service) handleQuery(c *gin.Context) {
	var req live.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	observability.TagContract(c, req.ContractIndex, req.InputType)
	input, err := base64.StdEncoding.DecodeString(req.RequestData)
	if err != nil || len(input) != req.InputSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requestData does not match inputSize"})
		return
	}

	s.mu.RLock()
	pinned, ok := s.responses[responseKey(req.ContractIndex, req.InputType)]
	s.mu.RUnlock()
	var out []byte
	switch {
	case ok:
		out = pinned
	case req.ContractIndex == ccfContractIndex && req.InputType == 1:
		out, err = s.proposalIndices(input)
	case req.ContractIndex == ccfContractIndex && req.InputType == 2:
		out, err = s.proposalRecord(input)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "no contract response for " + responseKey(req.ContractIndex, req.InputType)})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, live.QueryResponse{ResponseData: base64.StdEncoding.EncodeToString(out)})
}

func (s *Service) proposalIndices(input []byte) ([]byte, error) {
	in, err := s.layouts.Decode("ccf.GetProposalIndices_input", input)
	if err != nil {
		return nil, err
	}
	active, err := layout.Get[bool](in, "activeProposals")
	if err != nil {
		return nil, err
	}
	prev, err := layout.Get[int32](in, "prevProposalIndex")
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	page := make([]uint16, 0, len(s.proposals))
	for idx, p := range s.proposals {
		if p.Active == active && int32(idx) > prev {
			page = append(page, idx)
		}
	}
	s.mu.RUnlock()
	sort.Slice(page, func(i, j int) bool { return page[i] < page[j] })
	if len(page) > ccfPageSize {
		page = page[:ccfPageSize]
	}
	return s.layouts.Encode("ccf.GetProposalIndices_output", layout.Record{
		"numOfIndices": uint16(len(page)),
		"indices":      page,
	})
}

func (s *Service) proposalRecord(input []byte) ([]byte, error) {
	in, err := s.layouts.Decode("ccf.GetProposal_input", input)
	if err != nil {
		return nil, err
	}
	index, err := layout.Get[uint16](in, "proposalIndex")
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	p, ok := s.proposals[index]
	s.mu.RUnlock()

	var zero [32]byte
	rec := layout.Record{
		"okay":              ok,
		"proposerPublicKey": zero,
		"proposal": layout.Record{
			"url":         []byte(nil),
			"epoch":       uint16(0),
			"type":        uint16(0),
			"tick":        uint32(0),
			"destination": zero,
			"amount":      int64(0),
		},
	}
	if ok {
		rec["proposerPublicKey"] = p.Proposer
		rec["proposal"] = layout.Record{
			"url":         []byte(p.URL),
			"epoch":       p.Epoch,
			"type":        p.Type,
			"tick":        p.Tick,
			"destination": p.Destination,
			"amount":      p.Amount,
		}
	}
	return s.layouts.Encode("ccf.GetProposal_output", rec)
}
