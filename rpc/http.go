package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"spendsave/config"
	nativecommon "spendsave/native/common"
	"spendsave/native/savings"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	// AuthTokenEnv names the bearer token required for mutating methods.
	AuthTokenEnv = "SPENDSAVE_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the savings engine surface over JSON-RPC.
type Server struct {
	engine     *savings.Engine
	log        *slog.Logger
	authToken  string
	callBudget uint64
}

// NewServer wires a server to the engine. The mutating-method auth token is
// read from the environment; an empty token disables authentication (dev
// only).
func NewServer(engine *savings.Engine, log *slog.Logger, callBudget uint64) *Server {
	if log == nil {
		log = slog.Default()
	}
	if callBudget == 0 {
		callBudget = savings.DefaultCallBudget
	}
	return &Server{
		engine:     engine,
		log:        log,
		authToken:  strings.TrimSpace(os.Getenv(AuthTokenEnv)),
		callBudget: callBudget,
	}
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeRPCError(w, nil, codeParseError, "unable to read request body")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeRPCError(w, req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
		return
	}
	if mutatingMethods[req.Method] && !s.authorized(r) {
		writeRPCError(w, req.ID, codeUnauthorized, "missing or invalid bearer token")
		return
	}
	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		s.log.Warn("rpc request failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr})
		return
	}
	writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

var mutatingMethods = map[string]bool{
	"savings_configure":        true,
	"savings_disable":          true,
	"savings_setYieldStrategy": true,
	"savings_executeAll":       true,
	"savings_executeOne":       true,
	"savings_withdraw":         true,
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) dispatch(req *rpcRequest) (interface{}, *rpcError) {
	switch req.Method {
	case "savings_configure":
		return s.handleConfigure(req)
	case "savings_disable":
		return s.handleDisable(req)
	case "savings_setYieldStrategy":
		return s.handleSetYieldStrategy(req)
	case "savings_executeAll":
		return s.handleExecuteAll(req)
	case "savings_executeOne":
		return s.handleExecuteOne(req)
	case "savings_withdraw":
		return s.handleWithdraw(req)
	case "savings_hasPending":
		return s.handleHasPending(req)
	case "savings_getExecutionStatus":
		return s.handleExecutionStatus(req)
	case "savings_getFullStatus":
		return s.handleFullStatus(req)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %s", req.Method)}
	}
}

func decodeParams(req *rpcRequest, out interface{}) *rpcError {
	if len(req.Params) != 1 {
		return &rpcError{Code: codeInvalidParams, Message: "expected a single parameter object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	return nil
}

func parseAddressParam(name, value string) ([20]byte, *rpcError) {
	addr, err := config.ParseAddress(value)
	if err != nil {
		return addr, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", name, err)}
	}
	return addr, nil
}

func parseAmountParam(name, value string) (*big.Int, *rpcError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s: %q", name, value)}
	}
	return amount, nil
}

func engineError(err error) *rpcError {
	code := codeServerError
	switch {
	case errors.Is(err, savings.ErrUnauthorized):
		code = codeUnauthorized
	case errors.Is(err, nativecommon.ErrReentrantCall),
		errors.Is(err, savings.ErrInsufficientBudget),
		errors.Is(err, savings.ErrNoPlanConfigured),
		errors.Is(err, savings.ErrInsufficientBalance),
		errors.Is(err, savings.ErrInvalidDailyAmount),
		errors.Is(err, savings.ErrInvalidGoalAmount),
		errors.Is(err, savings.ErrPenaltyTooHigh),
		errors.Is(err, savings.ErrInvalidEndTime),
		errors.Is(err, savings.ErrInvalidStrategy),
		errors.Is(err, savings.ErrInvalidWithdrawal):
		code = codeInvalidRequest
	}
	return &rpcError{Code: code, Message: err.Error()}
}

type planTarget struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

func (p *planTarget) addresses() (caller, account, asset [20]byte, rpcErr *rpcError) {
	if caller, rpcErr = parseAddressParam("caller", p.Caller); rpcErr != nil {
		return
	}
	if account, rpcErr = parseAddressParam("account", p.Account); rpcErr != nil {
		return
	}
	asset, rpcErr = parseAddressParam("asset", p.Asset)
	return
}

func (s *Server) handleConfigure(req *rpcRequest) (interface{}, *rpcError) {
	var params struct {
		planTarget
		DailyAmount string `json:"dailyAmount"`
		GoalAmount  string `json:"goalAmount"`
		PenaltyBps  uint32 `json:"penaltyBps"`
		EndTime     int64  `json:"endTime"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, account, asset, rpcErr := params.addresses()
	if rpcErr != nil {
		return nil, rpcErr
	}
	daily, rpcErr := parseAmountParam("dailyAmount", params.DailyAmount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	goal, rpcErr := parseAmountParam("goalAmount", params.GoalAmount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Configure(caller, account, asset, daily, goal, params.PenaltyBps, params.EndTime); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleDisable(req *rpcRequest) (interface{}, *rpcError) {
	var params planTarget
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, account, asset, rpcErr := params.addresses()
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Disable(caller, account, asset); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleSetYieldStrategy(req *rpcRequest) (interface{}, *rpcError) {
	var params struct {
		planTarget
		Strategy uint8 `json:"strategy"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, account, asset, rpcErr := params.addresses()
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.SetYieldStrategy(caller, account, asset, savings.YieldStrategy(params.Strategy)); err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleExecuteAll(req *rpcRequest) (interface{}, *rpcError) {
	var params struct {
		Caller  string `json:"caller"`
		Account string `json:"account"`
		Budget  uint64 `json:"budget"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAddressParam("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	budget := params.Budget
	if budget == 0 {
		budget = s.callBudget
	}
	res, err := s.engine.ExecuteAll(caller, account, savings.NewBudget(budget))
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{
		"totalSaved":     res.TotalSaved.String(),
		"processed":      res.Processed,
		"skipped":        res.SkippedCount,
		"budgetConsumed": res.BudgetConsumed,
		"costEstimate":   res.CostEstimate,
	}, nil
}

func (s *Server) handleExecuteOne(req *rpcRequest) (interface{}, *rpcError) {
	var params planTarget
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, account, asset, rpcErr := params.addresses()
	if rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.engine.ExecuteOne(caller, account, asset, savings.NewBudget(s.callBudget))
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{
		"amountSaved": res.Amount.String(),
		"skipped":     res.Skipped,
		"reason":      res.Reason,
	}, nil
}

func (s *Server) handleWithdraw(req *rpcRequest) (interface{}, *rpcError) {
	var params struct {
		planTarget
		Amount string `json:"amount"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, account, asset, rpcErr := params.addresses()
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.engine.Withdraw(caller, account, asset, amount)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{
		"amount":      res.Amount.String(),
		"penalty":     res.Penalty.String(),
		"netAmount":   res.NetAmount.String(),
		"goalReached": res.GoalReached,
	}, nil
}

func (s *Server) handleHasPending(req *rpcRequest) (interface{}, *rpcError) {
	var params struct {
		Account string `json:"account"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAddressParam("account", params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pending, err := s.engine.HasPending(account)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]bool{"pending": pending}, nil
}

type statusTarget struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

func (p *statusTarget) addresses() (account, asset [20]byte, rpcErr *rpcError) {
	if account, rpcErr = parseAddressParam("account", p.Account); rpcErr != nil {
		return
	}
	asset, rpcErr = parseAddressParam("asset", p.Asset)
	return
}

func (s *Server) handleExecutionStatus(req *rpcRequest) (interface{}, *rpcError) {
	var params statusTarget
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, asset, rpcErr := params.addresses()
	if rpcErr != nil {
		return nil, rpcErr
	}
	status, err := s.engine.Status(account, asset)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{
		"canExecute":        status.CanExecute,
		"nextExecutionTime": status.NextExecutionTime,
		"amountDue":         status.AmountDue.String(),
	}, nil
}

func (s *Server) handleFullStatus(req *rpcRequest) (interface{}, *rpcError) {
	var params statusTarget
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	account, asset, rpcErr := params.addresses()
	if rpcErr != nil {
		return nil, rpcErr
	}
	full, err := s.engine.FullStatus(account, asset)
	if err != nil {
		return nil, engineError(err)
	}
	return map[string]interface{}{
		"enabled":                 full.Enabled,
		"dailyAmount":             full.DailyAmount.String(),
		"goalAmount":              full.GoalAmount.String(),
		"currentAmount":           full.CurrentAmount.String(),
		"remaining":               full.Remaining.String(),
		"estimatedPenalty":        full.EstimatedPenalty.String(),
		"estimatedCompletionTime": full.EstimatedCompletionTime,
		"strategy":                full.Strategy.String(),
	}, nil
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeResponse(w, rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message}})
}

func writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
