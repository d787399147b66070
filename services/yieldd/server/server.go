package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netyield/core/events"
	"netyield/core/types"
	"netyield/crypto"
	"netyield/native/treasury"
	"netyield/native/yield"
	"netyield/observability"
	"netyield/state"
)

// adminSecretHeader carries the shared secret gating admin endpoints.
const adminSecretHeader = "X-NYL-Admin-Secret"

// TokenReader is the slice of the asset collaborator the server reads
// balances through.
type TokenReader interface {
	BalanceOf(addr crypto.Address) (uint64, error)
	Transfer(from, to crypto.Address, amount uint64) error
}

// Server exposes the yield ledger over HTTP. Mutations are serialized under a
// single mutex and executed inside a state overlay, so each call either
// commits wholesale or leaves the store untouched.
type Server struct {
	mu          sync.Mutex
	mgr         *state.Manager
	engine      *yield.Engine
	token       TokenReader
	registry    *treasury.Registry
	log         *slog.Logger
	metrics     *observability.LedgerMetrics
	adminSecret string
	limiter     *clientLimiter
	emitter     *stagedEmitter
}

// New constructs a server over an already-wired engine. The admin secret may
// be empty, which disables the admin surface entirely.
func New(mgr *state.Manager, engine *yield.Engine, tok TokenReader, registry *treasury.Registry, log *slog.Logger, adminSecret string) *Server {
	srv := &Server{
		mgr:         mgr,
		engine:      engine,
		token:       tok,
		registry:    registry,
		log:         log,
		metrics:     observability.Metrics(),
		adminSecret: adminSecret,
		emitter:     &stagedEmitter{log: log},
	}
	engine.SetEmitter(srv.emitter)
	return srv
}

// SetRateLimit throttles mutating endpoints per client. Zero or negative
// requestsPerMinute disables throttling.
func (s *Server) SetRateLimit(requestsPerMinute float64, burst int) {
	s.limiter = newClientLimiter(requestsPerMinute, burst)
}

// stagedEmitter buffers ledger events during a mutation and renders them into
// the structured log only once the overlay has committed, so a failed commit
// never logs events for state that was discarded. Accessed only under the
// server mutex.
type stagedEmitter struct {
	log     *slog.Logger
	pending []events.Event
}

type eventRenderer interface {
	Event() *types.Event
}

func (e *stagedEmitter) Emit(evt events.Event) {
	if e == nil {
		return
	}
	e.pending = append(e.pending, evt)
}

func (e *stagedEmitter) flush() {
	if e == nil {
		return
	}
	for _, evt := range e.pending {
		if e.log == nil {
			continue
		}
		if renderer, ok := evt.(eventRenderer); ok {
			record := renderer.Event()
			e.log.Info("ledger event", "type", record.Type, "attributes", record.Attributes)
			continue
		}
		e.log.Info("ledger event", "type", evt.EventType())
	}
	e.pending = nil
}

func (e *stagedEmitter) discard() {
	if e == nil {
		return
	}
	e.pending = nil
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/ledger", func(lr chi.Router) {
		lr.Get("/", s.handleLedger)
		lr.Get("/accounts/{address}", s.handleAccount)
		lr.Group(func(mr chi.Router) {
			mr.Use(s.limiter.middleware)
			mr.Post("/mint", s.handleMint)
			mr.Post("/burn", s.handleBurn)
			mr.Post("/advance", s.handleAdvance)
			mr.Post("/reduce", s.handleReduce)
			mr.Post("/treasury", s.handleConfigureTreasury)
		})
	})

	r.Route("/v1/admin", func(ar chi.Router) {
		ar.Use(s.requireAdmin)
		ar.Post("/treasuries", s.handleRegisterTreasury)
		ar.Post("/pause", s.handlePause)
	})

	return r
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminSecret == "" {
			writeError(w, http.StatusForbidden, "admin_disabled", "admin surface is disabled")
			return
		}
		provided := r.Header.Get(adminSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.adminSecret)) != 1 {
			writeError(w, http.StatusForbidden, "unauthorized", "invalid admin secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// runMutation serializes a mutating operation inside a state overlay and
// records its outcome.
func (s *Server) runMutation(operation string, batchSize int, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	s.mgr.Begin()
	err := fn()
	if err != nil {
		s.mgr.Discard()
	} else {
		err = s.mgr.Commit()
	}
	if err != nil {
		s.emitter.discard()
	} else {
		s.emitter.flush()
	}
	code, _ := errorCode(err)
	s.metrics.ObserveOperation(operation, time.Since(start), code)
	if batchSize > 0 {
		s.metrics.ObserveBatchSize(operation, batchSize)
	}
	if err != nil {
		s.log.Warn("ledger operation failed", "operation", operation, "code", code, "error", err)
	} else {
		s.log.Info("ledger operation applied", "operation", operation, "batchSize", batchSize)
	}
	return err
}

// --- Request/response payloads ---

// Amounts travel as decimal strings: they are full-range uint64 values, which
// JSON numbers cannot carry safely.
type amountRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type batchRequest struct {
	Caller   string   `json:"caller"`
	Accounts []string `json:"accounts"`
	Amounts  []string `json:"amounts"`
}

type treasuryRequest struct {
	Caller   string `json:"caller"`
	Treasury string `json:"treasury"`
}

type registerTreasuryRequest struct {
	Address string `json:"address"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type ledgerResponse struct {
	UnderlyingAsset   string `json:"underlyingAsset"`
	Treasury          string `json:"treasury,omitempty"`
	Custody           string `json:"custody"`
	CustodyBalance    string `json:"custodyBalance"`
	TotalSupply       string `json:"totalSupply"`
	TotalAdvanced     string `json:"totalAdvanced"`
	CumulativeReduced string `json:"cumulativeReduced"`
}

type accountResponse struct {
	Address           string `json:"address"`
	Advanced          string `json:"advanced"`
	CumulativeReduced string `json:"cumulativeReduced"`
	TokenBalance      string `json:"tokenBalance"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

func writeEngineError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	writeError(w, status, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, field, value string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_address", field+": "+err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func parseAmount(w http.ResponseWriter, field, value string) (uint64, bool) {
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_amount", field+": "+err.Error())
		return 0, false
	}
	return amount, true
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// --- Read handlers ---

func (s *Server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	// Reads share the mutation mutex: the state manager is not safe for
	// concurrent use, and an unlocked read could observe a staged overlay.
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, err := s.engine.UnderlyingAsset()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	treasuryRef, err := s.engine.Treasury()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	totalSupply, err := s.engine.TotalSupply()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	totalAdvanced, err := s.engine.TotalAdvanced()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	cumulativeReduced, err := s.engine.CumulativeReduced()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	custodyBalance, err := s.token.BalanceOf(s.engine.Custody())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := ledgerResponse{
		Custody:           s.engine.Custody().String(),
		CustodyBalance:    formatUint(custodyBalance),
		TotalSupply:       formatUint(totalSupply),
		TotalAdvanced:     formatUint(totalAdvanced),
		CumulativeReduced: formatUint(cumulativeReduced),
	}
	if !asset.IsZero() {
		resp.UnderlyingAsset = asset.String()
	}
	if !treasuryRef.IsZero() {
		resp.Treasury = treasuryRef.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	advanced, err := s.engine.AdvancedOf(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	reduced, err := s.engine.CumulativeReducedOf(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	balance, err := s.token.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Address:           addr.String(),
		Advanced:          formatUint(advanced),
		CumulativeReduced: formatUint(reduced),
		TokenBalance:      formatUint(balance),
	})
}

// --- Mutation handlers ---

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, "caller", req.Caller)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := s.runMutation("mint_supply", 0, func() error {
		return s.engine.MintSupply(caller, amount)
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted", "amount": req.Amount})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, "caller", req.Caller)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := s.runMutation("burn_supply", 0, func() error {
		return s.engine.BurnSupply(caller, amount)
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "burned", "amount": req.Amount})
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) (crypto.Address, []crypto.Address, []uint64, bool) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return crypto.Address{}, nil, nil, false
	}
	caller, ok := parseAddress(w, "caller", req.Caller)
	if !ok {
		return crypto.Address{}, nil, nil, false
	}
	accounts := make([]crypto.Address, 0, len(req.Accounts))
	for i, entry := range req.Accounts {
		addr, ok := parseAddress(w, "accounts["+strconv.Itoa(i)+"]", entry)
		if !ok {
			return crypto.Address{}, nil, nil, false
		}
		accounts = append(accounts, addr)
	}
	amounts := make([]uint64, 0, len(req.Amounts))
	for i, entry := range req.Amounts {
		amount, ok := parseAmount(w, "amounts["+strconv.Itoa(i)+"]", entry)
		if !ok {
			return crypto.Address{}, nil, nil, false
		}
		amounts = append(amounts, amount)
	}
	return caller, accounts, amounts, true
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	caller, accounts, amounts, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	if err := s.runMutation("advance", len(accounts), func() error {
		return s.engine.Advance(caller, accounts, amounts)
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "advanced", "entries": len(accounts)})
}

func (s *Server) handleReduce(w http.ResponseWriter, r *http.Request) {
	caller, accounts, amounts, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	if err := s.runMutation("reduce", len(accounts), func() error {
		return s.engine.Reduce(caller, accounts, amounts)
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reduced", "entries": len(accounts)})
}

func (s *Server) handleConfigureTreasury(w http.ResponseWriter, r *http.Request) {
	var req treasuryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, "caller", req.Caller)
	if !ok {
		return
	}
	// An empty treasury field detaches the treasury.
	var newTreasury crypto.Address
	if req.Treasury != "" {
		if newTreasury, ok = parseAddress(w, "treasury", req.Treasury); !ok {
			return
		}
	}
	if err := s.runMutation("configure_treasury", 0, func() error {
		return s.engine.ConfigureTreasury(caller, newTreasury)
	}); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

// --- Admin handlers ---

func (s *Server) handleRegisterTreasury(w http.ResponseWriter, r *http.Request) {
	var req registerTreasuryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, ok := parseAddress(w, "address", req.Address)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	asset, err := s.engine.UnderlyingAsset()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if asset.IsZero() {
		writeEngineError(w, yield.ErrNotInitialized)
		return
	}
	s.registry.Register(addr, treasury.NewVault(addr, asset, s.token))
	s.log.Info("treasury registered", "address", addr.String())
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered", "address": addr.String()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Module == "" {
		req.Module = yield.ModuleName
	}
	s.mu.Lock()
	err := s.mgr.SetPaused(req.Module, req.Paused)
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.log.Info("pause flag updated", "module", req.Module, "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]any{"module": req.Module, "paused": req.Paused})
}
