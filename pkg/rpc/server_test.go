package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/oracle"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/tokens"
)

func testKey(b byte) types.Pubkey {
	var k types.Pubkey
	for i := range k {
		k[i] = b
	}
	return k
}

var (
	voteA = testKey(10)
	voteB = testKey(11)
	alice = testKey(5)
)

// staticPool implements PoolReader for testing.
type staticPool struct {
	pool *stakepool.Pool
}

func (s *staticPool) Pool() *stakepool.Pool { return s.pool.Clone() }

// mockJournal implements JournalReader for testing.
type mockJournal struct {
	receipts  []stakepool.Receipt
	err       error
	lastLimit int
}

func (m *mockJournal) Journal(limit int) ([]stakepool.Receipt, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.receipts) {
		return m.receipts[:limit], nil
	}
	return m.receipts, nil
}

type testEnv struct {
	server  *Server
	pool    *stakepool.Pool
	journal *mockJournal
	oracle  *oracle.Memory
	tokens  *tokens.Memory
}

// Helper function to create a test server with mock dependencies.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	pool, err := stakepool.NewPool(stakepool.PoolParams{
		Address:           testKey(1),
		Manager:           testKey(2),
		Staker:            testKey(3),
		ManagerFeeAccount: testKey(4),
		Epoch:             7,
		Limits:            stakepool.Limits{MinimumFloor: 10, MaxValidators: 4, MinimumTransient: 1},
		Fees: stakepool.InitialFees{
			Epoch: stakepool.Fee{Numerator: 1, Denominator: 10},
		},
	})
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	pool.Validators = append(pool.Validators,
		stakepool.ValidatorRecord{VoteAccount: voteA, ActiveStakeLamports: 100, LastUpdateEpoch: 7},
		stakepool.ValidatorRecord{
			VoteAccount:            voteB,
			ActiveStakeLamports:    50,
			TransientStakeLamports: 30,
			TransientDirection:     stakepool.TransientDeactivating,
			TransientSeed:          1,
			TransientEpoch:         7,
			LastUpdateEpoch:        7,
		},
	)
	pool.Reserve.Lamports = 20
	pool.TotalStakeLamports = 200
	pool.TotalPoolTokens = 100
	pool.Version = 12

	ledger := tokens.NewMemory()
	if err := ledger.Mint(alice, 40); err != nil {
		t.Fatalf("Failed to mint: %v", err)
	}

	env := &testEnv{
		pool:    pool,
		journal: &mockJournal{},
		oracle:  oracle.NewMemory(7),
		tokens:  ledger,
	}
	config := DefaultConfig()
	config.Addr = ":0"
	env.server = New(config, Backend{
		Pool:     &staticPool{pool: pool},
		Journal:  env.journal,
		Epochs:   env.oracle,
		Balances: ledger,
	})
	return env
}

// Helper function to make an RPC request.
func makeRPCRequest(t *testing.T, server *Server, method string, params interface{}) *Response {
	t.Helper()

	var paramsRaw json.RawMessage
	if params != nil {
		var err error
		paramsRaw, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("Failed to marshal params: %v", err)
		}
	}

	body, err := json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      1,
		Method:  method,
		Params:  paramsRaw,
	})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.handleRPC(rr, httpReq)

	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return &resp
}

// decodeResult re-decodes a generic result into out.
func decodeResult(t *testing.T, resp *Response, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Expected no error, got: %v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("Failed to marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
}

func TestGetHealth(t *testing.T) {
	env := newTestServer(t)

	resp := makeRPCRequest(t, env.server, "getHealth", nil)
	if resp.Error != nil {
		t.Fatalf("Expected no error, got: %v", resp.Error)
	}
	if resp.Result != "ok" {
		t.Errorf("Expected 'ok', got: %v", resp.Result)
	}

	env.server.SetHealthy(false)
	resp = makeRPCRequest(t, env.server, "getHealth", nil)
	if resp.Error == nil || resp.Error.Code != NodeUnhealthy {
		t.Errorf("Expected unhealthy error, got: %v", resp.Error)
	}
}

func TestGetVersion(t *testing.T) {
	env := newTestServer(t)

	var info VersionInfo
	decodeResult(t, makeRPCRequest(t, env.server, "getVersion", nil), &info)
	if info.Version != Version {
		t.Errorf("Expected version %s, got: %s", Version, info.Version)
	}
	if info.LayoutVersion != stakepool.LayoutVersion {
		t.Errorf("Expected layout %d, got: %d", stakepool.LayoutVersion, info.LayoutVersion)
	}
}

func TestGetStakePool(t *testing.T) {
	env := newTestServer(t)

	var result struct {
		Context Context       `json:"context"`
		Value   StakePoolInfo `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, env.server, "getStakePool", nil), &result)

	if result.Context.Version != 12 || result.Context.Epoch != 7 {
		t.Errorf("Unexpected context: %+v", result.Context)
	}
	v := result.Value
	if v.TotalStakeLamports != 200 || v.TotalPoolTokens != 100 || v.ReserveLamports != 20 {
		t.Errorf("Unexpected totals: %+v", v)
	}
	if v.ValidatorCount != 2 {
		t.Errorf("Expected 2 validators, got: %d", v.ValidatorCount)
	}
	if v.Manager != testKey(2).String() {
		t.Errorf("Unexpected manager: %s", v.Manager)
	}
	if v.PreferredDepositValidator != nil {
		t.Errorf("Expected no preferred deposit validator, got: %v", *v.PreferredDepositValidator)
	}
	if fee := v.Fees["epoch"].Current; fee.Numerator != 1 || fee.Denominator != 10 {
		t.Errorf("Unexpected epoch fee: %+v", fee)
	}
	if len(v.Fees) != len(stakepool.FeeKinds()) {
		t.Errorf("Expected %d fees, got: %d", len(stakepool.FeeKinds()), len(v.Fees))
	}
	if v.Digest != env.pool.Digest().String() {
		t.Errorf("Digest mismatch: %s", v.Digest)
	}
}

func TestGetValidatorList(t *testing.T) {
	env := newTestServer(t)

	var result struct {
		Value []ValidatorInfo `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, env.server, "getValidatorList", nil), &result)

	if len(result.Value) != 2 {
		t.Fatalf("Expected 2 validators, got: %d", len(result.Value))
	}
	b := result.Value[1]
	if b.VoteAccount != voteB.String() || b.TransientStakeLamports != 30 || b.TransientDirection != "deactivating" {
		t.Errorf("Unexpected validator: %+v", b)
	}
}

func TestGetValidator(t *testing.T) {
	env := newTestServer(t)

	var result struct {
		Value ValidatorInfo `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, env.server, "getValidator", []interface{}{voteA.String()}), &result)
	if result.Value.ActiveStakeLamports != 100 {
		t.Errorf("Expected 100 active lamports, got: %d", result.Value.ActiveStakeLamports)
	}

	resp := makeRPCRequest(t, env.server, "getValidator", []interface{}{testKey(99).String()})
	if resp.Error == nil {
		t.Fatal("Expected error for unknown validator")
	}
	if resp.Error.Code != PoolErrorCode(stakepool.CodeValidatorNotFound) {
		t.Errorf("Expected code %d, got: %d", PoolErrorCode(stakepool.CodeValidatorNotFound), resp.Error.Code)
	}

	for _, params := range []interface{}{nil, []interface{}{}, []interface{}{42}, []interface{}{"not-base58!"}} {
		resp := makeRPCRequest(t, env.server, "getValidator", params)
		if resp.Error == nil || resp.Error.Code != InvalidParams {
			t.Errorf("params %v: expected invalid params, got: %v", params, resp.Error)
		}
	}
}

func TestGetExchangeRate(t *testing.T) {
	env := newTestServer(t)

	var result struct {
		Value ExchangeRate `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, env.server, "getExchangeRate", nil), &result)
	if result.Value.LamportsPerToken != 2 {
		t.Errorf("Expected rate 2, got: %v", result.Value.LamportsPerToken)
	}
}

func TestGetEpochInfo(t *testing.T) {
	env := newTestServer(t)

	var info EpochInfo
	decodeResult(t, makeRPCRequest(t, env.server, "getEpochInfo", nil), &info)
	if info.Epoch != 7 || info.UpdateRequired {
		t.Errorf("Unexpected epoch info: %+v", info)
	}

	env.oracle.AdvanceEpoch()
	decodeResult(t, makeRPCRequest(t, env.server, "getEpochInfo", nil), &info)
	if info.Epoch != 8 || info.LastUpdateEpoch != 7 || !info.UpdateRequired {
		t.Errorf("Unexpected epoch info: %+v", info)
	}

	env.oracle.FailEpoch(errors.New("cluster down"))
	resp := makeRPCRequest(t, env.server, "getEpochInfo", nil)
	if resp.Error == nil || resp.Error.Code != OracleUnavailable {
		t.Errorf("Expected oracle error, got: %v", resp.Error)
	}
}

func TestGetJournal(t *testing.T) {
	env := newTestServer(t)
	for v := uint64(30); v > 0; v-- {
		env.journal.receipts = append(env.journal.receipts, stakepool.Receipt{
			Operation: stakepool.OpDepositSol,
			Version:   v,
			Lamports:  v * 10,
		})
	}

	var receipts []stakepool.Receipt
	decodeResult(t, makeRPCRequest(t, env.server, "getJournal", nil), &receipts)
	if len(receipts) != defaultJournalLimit {
		t.Fatalf("Expected %d receipts, got: %d", defaultJournalLimit, len(receipts))
	}
	if receipts[0].Version != 30 || receipts[0].Operation != stakepool.OpDepositSol {
		t.Errorf("Unexpected newest receipt: %+v", receipts[0])
	}

	decodeResult(t, makeRPCRequest(t, env.server, "getJournal", []interface{}{5000}), &receipts)
	if env.journal.lastLimit != maxJournalLimit {
		t.Errorf("Expected limit clamped to %d, got: %d", maxJournalLimit, env.journal.lastLimit)
	}

	resp := makeRPCRequest(t, env.server, "getJournal", []interface{}{-1})
	if resp.Error == nil || resp.Error.Code != InvalidParams {
		t.Errorf("Expected invalid params, got: %v", resp.Error)
	}

	env.journal.err = errors.New("disk gone")
	resp = makeRPCRequest(t, env.server, "getJournal", nil)
	if resp.Error == nil || resp.Error.Code != InternalError {
		t.Errorf("Expected internal error, got: %v", resp.Error)
	}
}

func TestGetJournalUnavailable(t *testing.T) {
	server := New(DefaultConfig(), Backend{Pool: &staticPool{pool: newTestServer(t).pool}})
	resp := makeRPCRequest(t, server, "getJournal", nil)
	if resp.Error == nil || resp.Error.Code != JournalUnavailable {
		t.Errorf("Expected journal unavailable, got: %v", resp.Error)
	}
}

func TestGetTokenBalance(t *testing.T) {
	env := newTestServer(t)

	var result struct {
		Value TokenBalance `json:"value"`
	}
	decodeResult(t, makeRPCRequest(t, env.server, "getTokenBalance", []interface{}{alice.String()}), &result)
	if result.Value.Amount != 40 || result.Value.Lamports != 80 {
		t.Errorf("Unexpected balance: %+v", result.Value)
	}
}

func TestMethodNotFound(t *testing.T) {
	env := newTestServer(t)

	resp := makeRPCRequest(t, env.server, "sendTransaction", nil)
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Errorf("Expected method not found, got: %v", resp.Error)
	}
}

func TestInvalidRequests(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		wantStatus  int
		wantCode    int
	}{
		{"get method", http.MethodGet, "", "", http.StatusMethodNotAllowed, 0},
		{"bad json", http.MethodPost, "application/json", "{", http.StatusOK, ParseError},
		{"bad version", http.MethodPost, "application/json", `{"jsonrpc":"1.0","id":1,"method":"getHealth"}`, http.StatusOK, InvalidRequest},
		{"bad content type", http.MethodPost, "text/plain", `{}`, http.StatusOK, InvalidRequest},
		{"empty batch", http.MethodPost, "application/json", `[]`, http.StatusOK, InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", bytes.NewReader([]byte(tt.body)))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()
			env.server.handleRPC(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got: %d", tt.wantStatus, rr.Code)
			}
			if tt.wantCode == 0 {
				return
			}
			var resp Response
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("Expected code %d, got: %v", tt.wantCode, resp.Error)
			}
		})
	}
}

func TestBatchRequest(t *testing.T) {
	env := newTestServer(t)

	body := `[
		{"jsonrpc":"2.0","id":1,"method":"getHealth"},
		{"jsonrpc":"2.0","id":2,"method":"nope"},
		{"jsonrpc":"1.0","id":3,"method":"getHealth"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	rr := httptest.NewRecorder()
	env.server.handleRPC(rr, req)

	var responses []Response
	if err := json.Unmarshal(rr.Body.Bytes(), &responses); err != nil {
		t.Fatalf("Failed to unmarshal batch response: %v", err)
	}
	if len(responses) != 3 {
		t.Fatalf("Expected 3 responses, got: %d", len(responses))
	}
	if responses[0].Result != "ok" {
		t.Errorf("Expected ok, got: %v", responses[0].Result)
	}
	if responses[1].Error == nil || responses[1].Error.Code != MethodNotFound {
		t.Errorf("Expected method not found, got: %v", responses[1].Error)
	}
	if responses[2].Error == nil || responses[2].Error.Code != InvalidRequest {
		t.Errorf("Expected invalid request, got: %v", responses[2].Error)
	}
}

func TestHandlerRoutesAndCORS(t *testing.T) {
	env := newTestServer(t)
	env.server.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics"))
	}))

	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /metrics, got: %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodOptions, srv.URL, nil)
	req.Header.Set("Origin", "https://example.org")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got: %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://example.org" {
		t.Errorf("Unexpected CORS origin: %q", got)
	}
}

func TestFromError(t *testing.T) {
	err := FromError(stakepool.ErrStaleLedger)
	if err.Code != PoolErrorBase-int(stakepool.CodeStaleLedger) {
		t.Errorf("Unexpected code: %d", err.Code)
	}
	if FromError(errors.New("boom")).Code != InternalError {
		t.Error("Expected internal error for plain errors")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Addr = ""
	if cfg.Validate() == nil {
		t.Error("Expected error for empty address")
	}
}
