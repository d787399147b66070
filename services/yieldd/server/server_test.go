package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"netyield/core/events"
	"netyield/crypto"
	"netyield/native/token"
	"netyield/native/treasury"
	"netyield/native/yield"
	"netyield/state"
	"netyield/storage"
)

const testAdminSecret = "test-secret"

func testAddr(t *testing.T, prefix crypto.AddressPrefix, b byte) crypto.Address {
	t.Helper()
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	addr, err := crypto.NewAddress(prefix, raw)
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	return addr
}

type fixture struct {
	srv      *Server
	handler  http.Handler
	mgr      *state.Manager
	engine   *yield.Engine
	token    *token.Ledger
	asset    crypto.Address
	owner    crypto.Address
	minter   crypto.Address
	manager  crypto.Address
	treasury crypto.Address
}

func newFixture(t *testing.T) *fixture {
	return newFixtureOver(t, storage.NewMemDB(), io.Discard)
}

func newFixtureOver(t *testing.T, db storage.Database, logSink io.Writer) *fixture {
	t.Helper()
	mgr := state.NewManager(db)

	ledger := token.NewLedger("NYA")
	ledger.SetState(mgr)

	registry := treasury.NewRegistry()

	engine := yield.NewEngine()
	engine.SetState(mgr)
	engine.SetToken(ledger)
	engine.SetTreasuryLookup(registry)
	engine.SetRoles(mgr)
	engine.SetPauses(mgr)

	fx := &fixture{
		mgr:      mgr,
		engine:   engine,
		token:    ledger,
		asset:    testAddr(t, crypto.AccountPrefix, 0xAA),
		owner:    testAddr(t, crypto.AccountPrefix, 0x01),
		minter:   testAddr(t, crypto.AccountPrefix, 0x02),
		manager:  testAddr(t, crypto.AccountPrefix, 0x03),
		treasury: testAddr(t, crypto.TreasuryPrefix, 0x04),
	}

	for role, addr := range map[string]crypto.Address{
		yield.RoleOwner:   fx.owner,
		yield.RoleMinter:  fx.minter,
		yield.RoleManager: fx.manager,
	} {
		if err := mgr.SetRole(role, addr.Bytes()); err != nil {
			t.Fatalf("seed role %s: %v", role, err)
		}
	}

	if err := engine.Initialize(fx.asset); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	log := slog.New(slog.NewJSONHandler(logSink, nil))
	fx.srv = New(mgr, engine, ledger, registry, log, testAdminSecret)
	fx.handler = fx.srv.Router()
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (fx *fixture) mint(t *testing.T, amount string) {
	t.Helper()
	rec := fx.do(t, http.MethodPost, "/v1/ledger/mint", amountRequest{Caller: fx.minter.String(), Amount: amount}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mint returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rec.Code)
	}
}

func TestMintAndLedgerRead(t *testing.T) {
	fx := newFixture(t)
	fx.mint(t, "1000")

	rec := fx.do(t, http.MethodGet, "/v1/ledger", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger read returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp ledgerResponse
	decodeJSON(t, rec, &resp)
	if resp.TotalSupply != "1000" {
		t.Fatalf("total supply = %s, want 1000", resp.TotalSupply)
	}
	if resp.CustodyBalance != "1000" {
		t.Fatalf("custody balance = %s, want 1000", resp.CustodyBalance)
	}
	if resp.UnderlyingAsset != fx.asset.String() {
		t.Fatalf("underlying asset = %s, want %s", resp.UnderlyingAsset, fx.asset.String())
	}
	if resp.Treasury != "" {
		t.Fatalf("expected no treasury before configuration, got %s", resp.Treasury)
	}
}

func TestMintUnauthorized(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodPost, "/v1/ledger/mint", amountRequest{Caller: fx.owner.String(), Amount: "1"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Code != "unauthorized" {
		t.Fatalf("code = %s, want unauthorized", resp.Code)
	}
}

func TestMintMalformedAmount(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodPost, "/v1/ledger/mint", amountRequest{Caller: fx.minter.String(), Amount: "not-a-number"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Code != "malformed_amount" {
		t.Fatalf("code = %s, want malformed_amount", resp.Code)
	}
}

func TestAdvanceAndAccountRead(t *testing.T) {
	fx := newFixture(t)
	fx.mint(t, "500")

	alice := testAddr(t, crypto.AccountPrefix, 0x10)
	rec := fx.do(t, http.MethodPost, "/v1/ledger/advance", batchRequest{
		Caller:   fx.manager.String(),
		Accounts: []string{alice.String()},
		Amounts:  []string{"120"},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("advance returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodGet, "/v1/ledger/accounts/"+alice.String(), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("account read returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp accountResponse
	decodeJSON(t, rec, &resp)
	if resp.Advanced != "120" {
		t.Fatalf("advanced = %s, want 120", resp.Advanced)
	}
	if resp.TokenBalance != "120" {
		t.Fatalf("token balance = %s, want 120", resp.TokenBalance)
	}
}

func TestAdvanceFailureLeavesStateUntouched(t *testing.T) {
	fx := newFixture(t)
	fx.mint(t, "100")

	alice := testAddr(t, crypto.AccountPrefix, 0x10)
	bob := testAddr(t, crypto.AccountPrefix, 0x11)
	// Custody only covers the first entry; the batch must abort whole,
	// including the first transfer.
	rec := fx.do(t, http.MethodPost, "/v1/ledger/advance", batchRequest{
		Caller:   fx.manager.String(),
		Accounts: []string{alice.String(), bob.String()},
		Amounts:  []string{"60", "60"},
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var errResp errorResponse
	decodeJSON(t, rec, &errResp)
	if errResp.Code != "insufficient_balance" {
		t.Fatalf("code = %s, want insufficient_balance", errResp.Code)
	}

	rec = fx.do(t, http.MethodGet, "/v1/ledger/accounts/"+alice.String(), nil, nil)
	var acct accountResponse
	decodeJSON(t, rec, &acct)
	if acct.Advanced != "0" || acct.TokenBalance != "0" {
		t.Fatalf("aborted batch leaked state: advanced=%s balance=%s", acct.Advanced, acct.TokenBalance)
	}
}

func TestBatchLengthMismatch(t *testing.T) {
	fx := newFixture(t)
	fx.mint(t, "100")
	alice := testAddr(t, crypto.AccountPrefix, 0x10)
	rec := fx.do(t, http.MethodPost, "/v1/ledger/advance", batchRequest{
		Caller:   fx.manager.String(),
		Accounts: []string{alice.String()},
		Amounts:  []string{"10", "20"},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Code != "length_mismatch" {
		t.Fatalf("code = %s, want length_mismatch", resp.Code)
	}
}

func TestTreasuryLifecycleAndReduce(t *testing.T) {
	fx := newFixture(t)
	fx.mint(t, "400")

	// Register a vault over the treasury address via the admin surface.
	rec := fx.do(t, http.MethodPost, "/v1/admin/treasuries",
		registerTreasuryRequest{Address: fx.treasury.String()},
		map[string]string{adminSecretHeader: testAdminSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("register treasury returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodPost, "/v1/ledger/treasury",
		treasuryRequest{Caller: fx.owner.String(), Treasury: fx.treasury.String()}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("configure treasury returned %d: %s", rec.Code, rec.Body.String())
	}

	alice := testAddr(t, crypto.AccountPrefix, 0x10)
	rec = fx.do(t, http.MethodPost, "/v1/ledger/advance", batchRequest{
		Caller:   fx.manager.String(),
		Accounts: []string{alice.String()},
		Amounts:  []string{"150"},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("advance returned %d: %s", rec.Code, rec.Body.String())
	}

	// Fund the treasury so the reduction withdrawal can settle.
	fx.mgr.Begin()
	if err := fx.token.Mint(fx.treasury, 150); err != nil {
		t.Fatalf("fund treasury: %v", err)
	}
	if err := fx.mgr.Commit(); err != nil {
		t.Fatalf("commit treasury funding: %v", err)
	}

	rec = fx.do(t, http.MethodPost, "/v1/ledger/reduce", batchRequest{
		Caller:   fx.manager.String(),
		Accounts: []string{alice.String()},
		Amounts:  []string{"150"},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reduce returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodGet, "/v1/ledger", nil, nil)
	var ledger ledgerResponse
	decodeJSON(t, rec, &ledger)
	if ledger.TotalSupply != "250" {
		t.Fatalf("total supply = %s, want 250", ledger.TotalSupply)
	}
	if ledger.TotalAdvanced != "0" {
		t.Fatalf("total advanced = %s, want 0", ledger.TotalAdvanced)
	}
	if ledger.CumulativeReduced != "150" {
		t.Fatalf("cumulative reduced = %s, want 150", ledger.CumulativeReduced)
	}
}

func TestAdminSecretRequired(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Paused: true}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing secret: expected 403, got %d", rec.Code)
	}

	rec = fx.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Paused: true},
		map[string]string{adminSecretHeader: "wrong"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong secret: expected 403, got %d", rec.Code)
	}
}

func TestConcurrentReadsAndMutations(t *testing.T) {
	fx := newFixture(t)
	fx.mint(t, "1")

	// Reads and mutations share the server mutex; neither may observe a
	// staged overlay or race on the state manager.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			rec := fx.do(t, http.MethodPost, "/v1/ledger/mint", amountRequest{Caller: fx.minter.String(), Amount: "1"}, nil)
			if rec.Code != http.StatusOK {
				t.Errorf("mint returned %d: %s", rec.Code, rec.Body.String())
			}
		}()
		go func() {
			defer wg.Done()
			rec := fx.do(t, http.MethodGet, "/v1/ledger", nil, nil)
			if rec.Code != http.StatusOK {
				t.Errorf("ledger read returned %d: %s", rec.Code, rec.Body.String())
				return
			}
			var resp ledgerResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Errorf("decode response: %v", err)
				return
			}
			// Every observation must be a committed state: recorded
			// supply and actual custody never diverge mid-batch.
			if resp.TotalSupply != resp.CustodyBalance {
				t.Errorf("read observed staged state: supply=%s custody=%s", resp.TotalSupply, resp.CustodyBalance)
			}
		}()
	}
	wg.Wait()

	rec := fx.do(t, http.MethodGet, "/v1/ledger", nil, nil)
	var resp ledgerResponse
	decodeJSON(t, rec, &resp)
	if resp.TotalSupply != "51" {
		t.Fatalf("total supply = %s, want 51", resp.TotalSupply)
	}
}

// failingDB wraps MemDB and fails batch flushes on demand.
type failingDB struct {
	*storage.MemDB
	failWrites bool
}

func (db *failingDB) Write(batch *storage.Batch) error {
	if db.failWrites {
		return errors.New("disk full")
	}
	return db.MemDB.Write(batch)
}

func TestFailedCommitSuppressesEvents(t *testing.T) {
	db := &failingDB{MemDB: storage.NewMemDB()}
	var logBuf bytes.Buffer
	fx := newFixtureOver(t, db, &logBuf)

	db.failWrites = true
	rec := fx.do(t, http.MethodPost, "/v1/ledger/mint", amountRequest{Caller: fx.minter.String(), Amount: "10"}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on commit failure, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(logBuf.String(), "ledger event") {
		t.Fatalf("commit failure logged events for discarded state: %s", logBuf.String())
	}

	db.failWrites = false
	logBuf.Reset()
	fx.mint(t, "10")
	if !strings.Contains(logBuf.String(), events.TypeAssetSupplyMinted) {
		t.Fatalf("successful commit did not log the mint event: %s", logBuf.String())
	}

	rec = fx.do(t, http.MethodGet, "/v1/ledger", nil, nil)
	var resp ledgerResponse
	decodeJSON(t, rec, &resp)
	if resp.TotalSupply != "10" {
		t.Fatalf("total supply = %s, want 10", resp.TotalSupply)
	}
}

func TestRateLimitThrottlesMutations(t *testing.T) {
	fx := newFixture(t)
	fx.srv.SetRateLimit(60, 1)
	fx.handler = fx.srv.Router()

	fx.mint(t, "10")
	rec := fx.do(t, http.MethodPost, "/v1/ledger/mint", amountRequest{Caller: fx.minter.String(), Amount: "10"}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on burst overflow, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Code != "rate_limited" {
		t.Fatalf("code = %s, want rate_limited", resp.Code)
	}

	// Read routes stay open while mutations are throttled.
	rec = fx.do(t, http.MethodGet, "/v1/ledger", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger read returned %d while throttled", rec.Code)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodPost, "/v1/admin/pause", pauseRequest{Paused: true},
		map[string]string{adminSecretHeader: testAdminSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodPost, "/v1/ledger/mint", amountRequest{Caller: fx.minter.String(), Amount: "1"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while paused, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Code != "paused" {
		t.Fatalf("code = %s, want paused", resp.Code)
	}
}
