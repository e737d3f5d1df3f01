package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/efreitasn/finance/internal/quote"
	"github.com/efreitasn/finance/internal/service"
	"github.com/efreitasn/finance/internal/store"
)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router http.Handler
	quotes *quote.StaticProvider
}

func newTestEnv() *testEnv {
	logger := zap.NewNop()
	st := store.NewMemoryStore()
	sessions := store.NewSessionStore(time.Hour)
	quotes := quote.NewStaticProvider()

	quoteSvc := service.NewQuoteService(quotes, time.Second, logger)
	authSvc := service.NewAuthService(st, sessions, decimal.NewFromInt(10000), bcrypt.MinCost, logger)
	tradeSvc := service.NewTradeService(st, quoteSvc, logger)
	portfolioSvc := service.NewPortfolioService(st, quoteSvc, logger)

	return &testEnv{
		router: NewRouter(authSvc, tradeSvc, portfolioSvc, quoteSvc, logger),
		quotes: quotes,
	}
}

func (env *testEnv) setPrice(symbol, name, price string) {
	env.quotes.Set(symbol, name, decimal.RequireFromString(price))
}

// do sends a JSON request, authenticated when token is non-empty, and
// returns the recorder.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw body with the given content type.
func (env *testEnv) doRaw(t *testing.T, method, path, token, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// register creates an account and returns its session token.
func (env *testEnv) register(t *testing.T, username, password string) string {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/register", "", map[string]string{
		"username":     username,
		"password":     password,
		"confirmation": password,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", username, rr.Code, rr.Body.String())
	}
	var resp sessionResponse
	decode(t, rr, &resp)
	return resp.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	var resp errorResponse
	decode(t, rr, &resp)
	if resp.Error != code {
		t.Errorf("error = %q, want %q", resp.Error, code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, http.MethodGet, "/healthz", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "alice", "password": "pw", "confirmation": "pw",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rr.Code, rr.Body.String())
	}
	var reg sessionResponse
	decode(t, rr, &reg)
	if reg.Token == "" || reg.UserID == 0 {
		t.Fatalf("register response missing session: %+v", reg)
	}

	rr = env.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "pw"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rr.Code, rr.Body.String())
	}
	var login sessionResponse
	decode(t, rr, &login)
	if login.UserID != reg.UserID {
		t.Errorf("login user_id = %d, want %d", login.UserID, reg.UserID)
	}
	if login.Token == reg.Token {
		t.Error("each login should open a new session")
	}

	rr = env.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "nope"})
	expectError(t, rr, http.StatusForbidden, "invalid_credentials")
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv()
	env.register(t, "bob", "pw")

	rr := env.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "bob", "password": "pw", "confirmation": "pw",
	})
	expectError(t, rr, http.StatusConflict, "duplicate_username")

	rr = env.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "carol", "password": "pw", "confirmation": "other",
	})
	expectError(t, rr, http.StatusBadRequest, "validation_error")

	rr = env.doRaw(t, http.MethodPost, "/register", "", "text/plain", "username=carol")
	expectError(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv()

	for _, path := range []string{"/", "/positions", "/history", "/profile", "/quote/AAA"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		expectError(t, rr, http.StatusUnauthorized, "unauthenticated")
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("%s: missing WWW-Authenticate header", path)
		}
	}

	rr := env.do(t, http.MethodGet, "/", "not-a-token", nil)
	expectError(t, rr, http.StatusUnauthorized, "unauthenticated")
}

func TestLogout(t *testing.T) {
	env := newTestEnv()
	token := env.register(t, "alice", "pw")

	rr := env.do(t, http.MethodPost, "/logout", token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/", token, nil)
	expectError(t, rr, http.StatusUnauthorized, "unauthenticated")
}

func TestTradingFlow(t *testing.T) {
	env := newTestEnv()
	token := env.register(t, "alice", "pw")
	env.setPrice("AAA", "AAA Corp", "50")

	rr := env.do(t, http.MethodPost, "/buy", token, map[string]any{"symbol": "aaa", "shares": 10})
	if rr.Code != http.StatusCreated {
		t.Fatalf("buy status = %d, body %s", rr.Code, rr.Body.String())
	}
	var bought transactionResponse
	decode(t, rr, &bought)
	if bought.Type != "BUY" || bought.Symbol != "AAA" || bought.Shares != 10 {
		t.Errorf("buy response = %+v", bought)
	}
	if bought.Price != "50.00" || bought.Total != "500.00" || bought.TotalDisplay != "$500.00" {
		t.Errorf("buy amounts = %s / %s / %s", bought.Price, bought.Total, bought.TotalDisplay)
	}

	env.setPrice("AAA", "AAA Corp", "60")
	rr = env.do(t, http.MethodPost, "/sell", token, map[string]any{"symbol": "AAA", "shares": 5})
	if rr.Code != http.StatusCreated {
		t.Fatalf("sell status = %d, body %s", rr.Code, rr.Body.String())
	}
	var sold transactionResponse
	decode(t, rr, &sold)
	if sold.Type != "SELL" || sold.Shares != 5 || sold.Total != "300.00" {
		t.Errorf("sell response = %+v", sold)
	}

	rr = env.do(t, http.MethodGet, "/", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("valuation status = %d", rr.Code)
	}
	var v valuationResponse
	decode(t, rr, &v)
	if v.Cash != "9800.00" || v.CashDisplay != "$9,800.00" {
		t.Errorf("cash = %s (%s), want 9800.00", v.Cash, v.CashDisplay)
	}
	if len(v.Holdings) != 1 || v.Holdings[0].Shares != 5 || v.Holdings[0].Value != "300.00" || v.Holdings[0].Name != "AAA Corp" {
		t.Errorf("holdings = %+v", v.Holdings)
	}
	if v.Total != "10100.00" {
		t.Errorf("total = %s, want 10100.00", v.Total)
	}

	rr = env.do(t, http.MethodGet, "/positions", token, nil)
	var positions positionListResponse
	decode(t, rr, &positions)
	if len(positions.Positions) != 1 || positions.Positions[0] != (positionResponse{Symbol: "AAA", Shares: 5}) {
		t.Errorf("positions = %+v", positions.Positions)
	}

	rr = env.do(t, http.MethodGet, "/history", token, nil)
	var history historyResponse
	decode(t, rr, &history)
	if len(history.Transactions) != 2 {
		t.Fatalf("history has %d entries, want 2", len(history.Transactions))
	}
	if history.Transactions[0].Type != "SELL" || history.Transactions[1].Type != "BUY" {
		t.Errorf("history order = %s, %s; want SELL, BUY", history.Transactions[0].Type, history.Transactions[1].Type)
	}
}

func TestTrade_Errors(t *testing.T) {
	env := newTestEnv()
	token := env.register(t, "alice", "pw")
	env.setPrice("AAA", "", "50")
	env.setPrice("BIG", "", "20000")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown symbol", "/buy", `{"symbol":"ZZZZ","shares":1}`, http.StatusBadRequest, "invalid_symbol"},
		{"missing symbol", "/buy", `{"shares":1}`, http.StatusBadRequest, "invalid_symbol"},
		{"fractional shares", "/buy", `{"symbol":"AAA","shares":1.5}`, http.StatusBadRequest, "invalid_quantity"},
		{"zero shares", "/buy", `{"symbol":"AAA","shares":0}`, http.StatusBadRequest, "invalid_quantity"},
		{"negative shares", "/buy", `{"symbol":"AAA","shares":-3}`, http.StatusBadRequest, "invalid_quantity"},
		{"missing shares", "/buy", `{"symbol":"AAA"}`, http.StatusBadRequest, "invalid_quantity"},
		{"shares as string", "/buy", `{"symbol":"AAA","shares":"abc"}`, http.StatusBadRequest, "invalid_request"},
		{"cannot afford", "/buy", `{"symbol":"BIG","shares":1}`, http.StatusConflict, "insufficient_funds"},
		{"no position", "/sell", `{"symbol":"AAA","shares":1}`, http.StatusConflict, "no_position"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doRaw(t, http.MethodPost, tt.path, token, "application/json", tt.body)
			expectError(t, rr, tt.status, tt.code)
		})
	}

	rr := env.do(t, http.MethodPost, "/buy", token, map[string]any{"symbol": "AAA", "shares": 2})
	if rr.Code != http.StatusCreated {
		t.Fatalf("buy status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/sell", token, map[string]any{"symbol": "AAA", "shares": 3})
	expectError(t, rr, http.StatusConflict, "insufficient_shares")

	// Nothing above may have moved cash beyond the one buy.
	rr = env.do(t, http.MethodGet, "/profile", token, nil)
	var profile profileResponse
	decode(t, rr, &profile)
	if profile.Cash != "9900.00" {
		t.Errorf("cash = %s, want 9900.00", profile.Cash)
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv()
	token := env.register(t, "alice", "pw")
	env.setPrice("NFLX", "Netflix, Inc.", "612.345")

	rr := env.do(t, http.MethodGet, "/quote/nflx", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var q quoteResponse
	decode(t, rr, &q)
	if q.Symbol != "NFLX" || q.Name != "Netflix, Inc." || q.Price != "612.35" || q.PriceDisplay != "$612.35" {
		t.Errorf("quote = %+v", q)
	}

	rr = env.do(t, http.MethodGet, "/quote/NOPE", token, nil)
	expectError(t, rr, http.StatusBadRequest, "invalid_symbol")
}

func TestProfile(t *testing.T) {
	env := newTestEnv()
	token := env.register(t, "alice", "pw")

	rr := env.do(t, http.MethodGet, "/profile", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var p profileResponse
	decode(t, rr, &p)
	if p.Username != "alice" || p.Cash != "10000.00" || p.CashDisplay != "$10,000.00" {
		t.Errorf("profile = %+v", p)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv()
	token := env.register(t, "alice", "pw")

	rr := env.do(t, http.MethodPost, "/profile/password", token, map[string]string{
		"current_password": "wrong", "new_password": "pw2", "confirmation": "pw2",
	})
	expectError(t, rr, http.StatusForbidden, "invalid_credentials")

	rr = env.do(t, http.MethodPost, "/profile/password", token, map[string]string{
		"current_password": "pw", "new_password": "pw2", "confirmation": "pw2",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "pw2"})
	if rr.Code != http.StatusOK {
		t.Errorf("login with new password: status %d", rr.Code)
	}
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv()
	token := env.register(t, "alice", "pw")
	rr := env.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "pw"})
	var other sessionResponse
	decode(t, rr, &other)

	rr = env.do(t, http.MethodDelete, "/profile", token, map[string]string{"password": "bad"})
	expectError(t, rr, http.StatusForbidden, "invalid_credentials")

	rr = env.do(t, http.MethodDelete, "/profile", token, map[string]string{"password": "pw"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	for _, tok := range []string{token, other.Token} {
		rr = env.do(t, http.MethodGet, "/", tok, nil)
		expectError(t, rr, http.StatusUnauthorized, "unauthenticated")
	}

	rr = env.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "pw"})
	expectError(t, rr, http.StatusForbidden, "invalid_credentials")
}
