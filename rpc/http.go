package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"twitt3r/core"
	"twitt3r/native/tweet"
	"twitt3r/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "TWITT3R_RPC_TOKEN"

	// Mutating methods are throttled per source; queries are not.
	mutationRatePerSecond = 2
	mutationBurst         = 5
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32029
)

// Server exposes the ledger over JSON-RPC 2.0 plus a websocket event stream.
type Server struct {
	ledger    *core.Ledger
	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	allowedOrigins []string
}

// NewServer builds an RPC server for the given ledger. The bearer token
// guarding mutations comes from TWITT3R_RPC_TOKEN; with no token set, all
// mutations are rejected.
func NewServer(ledger *core.Ledger) *Server {
	return &Server{
		ledger:         ledger,
		authToken:      strings.TrimSpace(os.Getenv(authTokenEnv)),
		limiters:       make(map[string]*rate.Limiter),
		allowedOrigins: []string{"*"},
	}
}

// SetAllowedOrigins overrides the origin patterns accepted on the websocket
// endpoint.
func (s *Server) SetAllowedOrigins(origins []string) {
	if len(origins) == 0 {
		return
	}
	s.allowedOrigins = origins
}

// Handler returns the HTTP handler tree so callers can mount it on their own
// server (tests use httptest).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

// Start serves JSON-RPC on addr until the listener fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body")
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
		return
	}

	method, ok := methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
		return
	}

	if method.mutating {
		if !method.open && !s.checkAuth(r) {
			observability.RPCMetrics().ObserveRequest(req.Method, "unauthorized", 0)
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token")
			return
		}
		if !s.allowMutation(clientIP(r)) {
			observability.RPCMetrics().ObserveRequest(req.Method, "throttled", 0)
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded")
			return
		}
	}

	start := time.Now()
	result, rpcErr := method.handler(s, &req)
	duration := time.Since(start)
	if rpcErr != nil {
		observability.RPCMetrics().ObserveRequest(req.Method, "error", duration)
		writeError(w, httpStatusForCode(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	observability.RPCMetrics().ObserveRequest(req.Method, "ok", duration)
	writeResult(w, req.ID, result)
}

func httpStatusForCode(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeInvalidParams, codeInvalidRequest, codeParseError:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}

func (s *Server) checkAuth(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

func (s *Server) allowMutation(source string) bool {
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(mutationRatePerSecond), mutationBurst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// methodSpec binds one RPC method name to its handler. Mutating methods are
// rate limited; they also require the bearer token unless marked open.
type methodSpec struct {
	handler  func(*Server, *RPCRequest) (interface{}, *RPCError)
	mutating bool
	open     bool
}

var methods = map[string]methodSpec{
	"tweet_send":           {handler: (*Server).handleSendTweet, mutating: true},
	"tweet_edit":           {handler: (*Server).handleEditTweet, mutating: true},
	"tweet_delete":         {handler: (*Server).handleDeleteTweet, mutating: true},
	"tweet_pause":          {handler: (*Server).handlePause, mutating: true},
	"tweet_unpause":        {handler: (*Server).handleUnpause, mutating: true},
	"tweet_updateSettings": {handler: (*Server).handleUpdateSettings, mutating: true},
	"tweet_withdraw":       {handler: (*Server).handleWithdraw, mutating: true},
	// Anyone may fund the treasury, so deposits skip the token check.
	"tweet_deposit":        {handler: (*Server).handleDeposit, mutating: true, open: true},
	"tweet_clear":          {handler: (*Server).handleClear, mutating: true},
	"tweet_get":            {handler: (*Server).handleGetTweet},
	"tweet_list":           {handler: (*Server).handleListTweets},
	"tweet_getOwner":       {handler: (*Server).handleGetOwner},
	"tweet_getBalance":     {handler: (*Server).handleGetBalance},
	"tweet_getPrice":       {handler: (*Server).handleGetPrice},
	"tweet_getOdds":        {handler: (*Server).handleGetOdds},
	"tweet_getJackpot":     {handler: (*Server).handleGetJackpot},
	"tweet_getTotalTweets": {handler: (*Server).handleGetTotalTweets},
	"tweet_isPaused":       {handler: (*Server).handleIsPaused},
}

// errorForLedger maps engine sentinel errors onto RPC error objects.
func errorForLedger(err error) *RPCError {
	switch {
	case errors.Is(err, tweet.ErrNotOwner), errors.Is(err, tweet.ErrUnauthorized):
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, tweet.ErrInvalidID),
		errors.Is(err, tweet.ErrInvalidMessage),
		errors.Is(err, tweet.ErrInvalidAmount):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
