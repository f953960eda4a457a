package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Operation names shared by the live client and the services that answer it.
const (
	OpTickInfo           = "tick-info"
	OpBalance            = "balance"
	OpBroadcast          = "broadcast"
	OpQuerySmartContract = "query-smart-contract"

	opUnmatched = "unmatched"
	opOther     = "other"
)

const contractCallKey = "observability.contract_call"

// ContractCall is the smart contract function a request targeted.
type ContractCall struct {
	Index     uint32
	InputType uint16
}

// TagContract records which contract function the current request queried.
func TagContract(c *gin.Context, index uint32, inputType uint16) {
	c.Set(contractCallKey, ContractCall{Index: index, InputType: inputType})
}

func taggedContract(c *gin.Context) (ContractCall, bool) {
	v, ok := c.Get(contractCallKey)
	if !ok {
		return ContractCall{}, false
	}
	call, ok := v.(ContractCall)
	return call, ok
}

// RouteOperations maps gin route templates to operation names. Routes not in
// the map are labelled "other", unrouted paths "unmatched", so raw URLs never
// become label values.
type RouteOperations map[string]string

func (r RouteOperations) operation(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return opUnmatched
	}
	if op, ok := r[route]; ok {
		return op
	}
	return opOther
}

// Observe logs and counts every request a service answers: one request sample
// per operation, a rejection count for 401s, and a per-function count for
// tagged contract queries.
func Observe(service string, ops RouteOperations, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)

		op := ops.operation(c)
		status := c.Writer.Status()
		RecordHTTPRequest(service, c.Request.Method, op, status, took)
		if status == http.StatusUnauthorized {
			RecordUnauthorized(service, op)
		}

		event := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}
		event = event.
			Str("op", op).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", took).
			Str("client_ip", c.ClientIP())
		if call, ok := taggedContract(c); ok {
			RecordContractQuery(service, call.Index, call.InputType, status)
			event = event.Uint32("contract", call.Index).Uint16("input_type", call.InputType)
		}
		event.Msg("request served")
	}
}
