// Package mockchain provides a mock JSON-RPC node and EFP indexer API
// for testing the requirement checkers without a real chain.
package mockchain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ContractFunc handles an eth_call to one contract: raw call data in,
// raw ABI-encoded return data out.
type ContractFunc func(data []byte) ([]byte, error)

// Server is a mock chain + EFP backend. JSON-RPC requests are served on
// POST /, EFP endpoints under GET /users/.
type Server struct {
	*httptest.Server

	mu        sync.RWMutex
	balances  map[common.Address]*big.Int
	contracts map[common.Address]ContractFunc
	rpcErr    string

	efpFollowers map[string]int64
	efpFollowing map[string][]string
	efpStatus    int
}

// New starts a mock server. Callers own shutdown via Close.
func New() *Server {
	s := &Server{
		balances:     make(map[common.Address]*big.Int),
		contracts:    make(map[common.Address]ContractFunc),
		efpFollowers: make(map[string]int64),
		efpFollowing: make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("GET /users/{address}/stats", s.handleEFPStats)
	mux.HandleFunc("GET /users/{address}/following", s.handleEFPFollowing)

	s.Server = httptest.NewServer(mux)
	return s
}

// SetBalance sets the native balance for an address.
func (s *Server) SetBalance(address string, wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[common.HexToAddress(address)] = new(big.Int).Set(wei)
}

// SetRPCError makes every RPC call fail with the given message until
// cleared with an empty string. Used to test fail-closed behavior.
func (s *Server) SetRPCError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcErr = msg
}

// RegisterContract installs a raw contract handler at an address.
func (s *Server) RegisterContract(address string, fn ContractFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[common.HexToAddress(address)] = fn
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, "invalid request")
		return
	}

	s.mu.RLock()
	rpcErr := s.rpcErr
	s.mu.RUnlock()
	if rpcErr != "" {
		writeRPCError(w, req.ID, rpcErr)
		return
	}

	switch req.Method {
	case "eth_getBalance":
		s.rpcGetBalance(w, req)
	case "eth_call":
		s.rpcCall(w, req)
	case "eth_chainId":
		writeRPCResult(w, req.ID, "0x1")
	default:
		writeRPCError(w, req.ID, fmt.Sprintf("method %s not supported", req.Method))
	}
}

func (s *Server) rpcGetBalance(w http.ResponseWriter, req rpcRequest) {
	if len(req.Params) < 1 {
		writeRPCError(w, req.ID, "missing address parameter")
		return
	}
	var addrHex string
	if err := json.Unmarshal(req.Params[0], &addrHex); err != nil {
		writeRPCError(w, req.ID, "invalid address parameter")
		return
	}

	s.mu.RLock()
	balance, ok := s.balances[common.HexToAddress(addrHex)]
	s.mu.RUnlock()
	if !ok {
		balance = big.NewInt(0)
	}
	writeRPCResult(w, req.ID, "0x"+balance.Text(16))
}

type callParams struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Input string `json:"input"`
}

func (s *Server) rpcCall(w http.ResponseWriter, req rpcRequest) {
	if len(req.Params) < 1 {
		writeRPCError(w, req.ID, "missing call parameter")
		return
	}
	var call callParams
	if err := json.Unmarshal(req.Params[0], &call); err != nil {
		writeRPCError(w, req.ID, "invalid call parameter")
		return
	}

	// Newer clients send "input", older ones "data".
	dataHex := call.Input
	if dataHex == "" {
		dataHex = call.Data
	}
	data := common.FromHex(dataHex)

	s.mu.RLock()
	fn, ok := s.contracts[common.HexToAddress(call.To)]
	s.mu.RUnlock()
	if !ok {
		// Calls to unknown addresses return empty data, like a real
		// node calling a non-contract account.
		writeRPCResult(w, req.ID, "0x")
		return
	}

	out, err := fn(data)
	if err != nil {
		writeRPCError(w, req.ID, err.Error())
		return
	}
	writeRPCResult(w, req.ID, "0x"+common.Bytes2Hex(out))
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, msg string) {
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": -32000, "message": msg},
	})
}

// --- EFP endpoints ---

// SetEFPFollowerCount sets the stats follower count for an address.
func (s *Server) SetEFPFollowerCount(address string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.efpFollowers[strings.ToLower(address)] = count
}

// SetEFPFollowing sets the full following list for an address. The
// handler serves it in pages according to limit/offset.
func (s *Server) SetEFPFollowing(address string, following []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.efpFollowing[strings.ToLower(address)] = append([]string(nil), following...)
}

// SetEFPStatus forces a non-200 status on EFP endpoints (0 resets).
func (s *Server) SetEFPStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.efpStatus = status
}

func (s *Server) efpFail(w http.ResponseWriter) bool {
	s.mu.RLock()
	status := s.efpStatus
	s.mu.RUnlock()
	if status != 0 && status != http.StatusOK {
		http.Error(w, "upstream error", status)
		return true
	}
	return false
}

func (s *Server) handleEFPStats(w http.ResponseWriter, r *http.Request) {
	if s.efpFail(w) {
		return
	}
	address := strings.ToLower(r.PathValue("address"))

	s.mu.RLock()
	followers := s.efpFollowers[address]
	following := int64(len(s.efpFollowing[address]))
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]int64{
		"followers_count": followers,
		"following_count": following,
	})
}

func (s *Server) handleEFPFollowing(w http.ResponseWriter, r *http.Request) {
	if s.efpFail(w) {
		return
	}
	address := strings.ToLower(r.PathValue("address"))

	limit, offset := 100, 0
	//nolint:errcheck
	fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
	//nolint:errcheck
	fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)

	s.mu.RLock()
	list := s.efpFollowing[address]
	s.mu.RUnlock()

	if offset > len(list) {
		offset = len(list)
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}

	entries := make([]map[string]string, 0, end-offset)
	for _, addr := range list[offset:end] {
		entries = append(entries, map[string]string{"address": addr})
	}

	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]any{"following": entries})
}
