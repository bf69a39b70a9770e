package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tokenmart/core/events"
	"tokenmart/native/market"
	"tokenmart/observability"
	"tokenmart/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Server serves the read-only JSON-RPC surface of the marketplace.
type Server struct {
	market *modules.MarketModule
	logger *slog.Logger
}

// NewServer constructs a server exposing the supplied marketplace facade and
// event history.
func NewServer(proxy *market.Proxy, recorder *events.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		market: modules.NewMarketModule(proxy, recorder),
		logger: logger,
	}
}

// Start begins serving JSON-RPC requests on the provided address. It blocks
// until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      int             `json:"id"`
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

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	status := http.StatusOK

	switch req.Method {
	case "market_getSellOffer":
		status = s.handleGetSellOffer(w, req)
	case "market_getBuyOffer":
		status = s.handleGetBuyOffer(w, req)
	case "market_getVersion":
		status = s.handleGetVersion(w, req)
	case "market_listEvents":
		status = s.handleListEvents(w, req)
	default:
		status = http.StatusNotFound
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}

	observability.ModuleMetrics().Observe("market", req.Method, status, time.Since(start))
}

func (s *Server) handleGetSellOffer(w http.ResponseWriter, req *RPCRequest) int {
	result, modErr := s.market.GetSellOffer(req.Params)
	if modErr != nil {
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return modErr.HTTPStatus
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}

func (s *Server) handleGetBuyOffer(w http.ResponseWriter, req *RPCRequest) int {
	result, modErr := s.market.GetBuyOffer(req.Params)
	if modErr != nil {
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return modErr.HTTPStatus
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}

func (s *Server) handleGetVersion(w http.ResponseWriter, req *RPCRequest) int {
	result, modErr := s.market.Version(req.Params)
	if modErr != nil {
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return modErr.HTTPStatus
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}

func (s *Server) handleListEvents(w http.ResponseWriter, req *RPCRequest) int {
	result, modErr := s.market.ListEvents(req.Params)
	if modErr != nil {
		writeError(w, modErr.HTTPStatus, req.ID, modErr.Code, modErr.Message, modErr.Data)
		return modErr.HTTPStatus
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}
