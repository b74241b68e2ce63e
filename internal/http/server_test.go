package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taxledger/internal/auth"
	"taxledger/internal/core"
	"taxledger/internal/memory"
	"taxledger/internal/report"
	"taxledger/internal/services"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database unreachable") }

type testServer struct {
	srv        *Server
	store      *memory.Store
	auth       *auth.Service
	admin      string
	accountant string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New(
		core.TaxBracket{Lower: decimal.Zero, Upper: core.Bounded(decimal.NewFromInt(100000)), RatePercent: decimal.Zero},
		core.TaxBracket{Lower: decimal.NewFromInt(100000), Upper: core.Unbounded(), RatePercent: decimal.NewFromInt(20)},
	)
	authSvc, err := auth.NewService(store, auth.Config{
		Key:                 []byte("0123456789abcdef0123456789abcdef"),
		Issuer:              "taxledger",
		Audience:            "taxledger-clients",
		Expiry:              time.Hour,
		RegistrationEnabled: true,
		BcryptCost:          bcrypt.MinCost,
	})
	require.NoError(t, err)

	slabs := services.NewSlabService(store, nil)
	srv := NewServer(":0", Deps{
		Taxpayers:    services.NewTaxpayerService(store, store),
		Incomes:      services.NewIncomeService(store, store, nil),
		Slabs:        slabs,
		Calculations: services.NewCalculationService(store, store, store, slabs),
		Auth:         authSvc,
		Reports:      report.NewRenderer(),
		Store:        store,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	ts := &testServer{srv: srv, store: store, auth: authSvc}
	ts.admin = ts.token(t, core.RoleAdmin)
	ts.accountant = ts.token(t, core.RoleAccountant)
	return ts
}

func (ts *testServer) token(t *testing.T, role core.Role) string {
	t.Helper()
	tok, err := ts.auth.IssueToken(core.User{ID: uuid.New(), Email: strings.ToLower(string(role)) + "@example.com", Role: role})
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (ts *testServer) createTaxpayer(t *testing.T, name string) string {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/taxpayers", ts.admin, map[string]string{
		"name": name, "cnic": "35202-1234567-1", "contact": "0300-1234567",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[map[string]any](t, rr)["id"].(string)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	}

	ts.srv.deps.Store = failingPinger{}
	rr := ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "Clerk@Example.com", "password": "s3cret-pass", "role": "Accountant",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	tok := decodeBody[tokenResponse](t, rr).Token
	require.NotEmpty(t, tok)

	rr = ts.do(t, http.MethodGet, "/api/taxpayers", tok, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "clerk@example.com", "password": "s3cret-pass",
	})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "clerk@example.com", "password": "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "clerk@example.com", "password": "s3cret-pass", "role": "Accountant",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "other@example.com", "password": "short", "role": "Admin",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/auth/register", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthorization(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/taxpayers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/taxpayers", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/taxpayers", ts.accountant, map[string]string{"name": "A", "cnic": "1"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/taxslabs", ts.accountant, map[string]any{"fromAmount": 0, "ratePercent": 5})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestTaxpayerLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createTaxpayer(t, "Ayesha Khan")

	rr := ts.do(t, http.MethodGet, "/api/taxpayers/"+id, ts.accountant, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "Ayesha Khan", got["name"])
	assert.Equal(t, []any{}, got["incomeEntries"])

	rr = ts.do(t, http.MethodPut, "/api/taxpayers/"+id, ts.admin, map[string]string{
		"id": id, "name": "Ayesha K.", "cnic": "35202-1234567-1",
	})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/taxpayers", ts.admin, nil)
	list := decodeBody[[]taxpayerResponse](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "Ayesha K.", list[0].Name)

	rr = ts.do(t, http.MethodPost, "/api/taxpayers", ts.admin, map[string]string{"name": " ", "cnic": "1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/taxpayers/not-a-uuid", ts.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/taxpayers/"+id, ts.admin, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rr = ts.do(t, method, "/api/taxpayers/"+id, ts.admin, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, method)
	}
	rr = ts.do(t, http.MethodPut, "/api/taxpayers/"+id, ts.admin, map[string]string{"name": "X", "cnic": "1"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIncomeEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createTaxpayer(t, "Bilal")
	base := "/api/taxpayers/" + id + "/incomes"

	rr := ts.do(t, http.MethodPost, base, ts.accountant, `{"date":"2024-01-15","type":"Salary","amount":100000}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decodeBody[incomeResponse](t, rr)
	assert.Equal(t, "2024-01-15", first.Date)
	assert.Equal(t, id, first.TaxpayerID.String())

	rr = ts.do(t, http.MethodPost, base, ts.accountant, `{"date":"2024-03-01T23:30:00-02:00","type":"Bonus","amount":"50000.50"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	second := decodeBody[incomeResponse](t, rr)
	assert.Equal(t, "2024-03-02", second.Date)
	assert.Equal(t, json.Number("50000.5"), second.Amount)

	rr = ts.do(t, http.MethodGet, base, ts.accountant, nil)
	entries := decodeBody[[]incomeResponse](t, rr)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID, "newest date first")

	for name, body := range map[string]string{
		"negative amount": `{"date":"2024-01-15","type":"Salary","amount":-5}`,
		"zero amount":     `{"date":"2024-01-15","type":"Salary","amount":0}`,
		"bad date":        `{"date":"15/01/2024","type":"Salary","amount":5}`,
		"missing type":    `{"date":"2024-01-15","amount":5}`,
	} {
		rr = ts.do(t, http.MethodPost, base, ts.accountant, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, name)
	}
	rr = ts.do(t, http.MethodPost, base, ts.accountant, `{"date":"2024-01-15","type":"Salary","amount":5,"extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/taxpayers/"+uuid.NewString()+"/incomes", ts.accountant,
		`{"date":"2024-01-15","type":"Salary","amount":5}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, http.MethodPut, base+"/"+first.ID.String(), ts.accountant, `{"date":"2024-01-15","type":"Salary","amount":120000}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodPut, base+"/"+uuid.NewString(), ts.accountant, `{"date":"2024-01-15","type":"Salary","amount":1}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, http.MethodDelete, base+"/"+second.ID.String(), ts.accountant, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = ts.do(t, http.MethodDelete, base+"/"+second.ID.String(), ts.accountant, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/taxpayers/"+id, ts.accountant, nil)
	detail := decodeBody[taxpayerDetailResponse](t, rr)
	require.Len(t, detail.IncomeEntries, 1)
	assert.Equal(t, json.Number("120000"), detail.IncomeEntries[0].Amount)
}

func TestSlabEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/taxslabs", ts.accountant, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	slabs := decodeBody[[]slabResponse](t, rr)
	require.Len(t, slabs, 2)
	assert.Equal(t, json.Number("0"), slabs[1].ToAmount, "unbounded is rendered as zero")

	rr = ts.do(t, http.MethodPost, "/api/taxslabs", ts.admin, `{"fromAmount":500000,"ratePercent":30}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody[slabResponse](t, rr)
	assert.Equal(t, json.Number("30"), created.RatePercent)

	path := "/api/taxslabs/" + strconv.FormatInt(created.ID, 10)
	rr = ts.do(t, http.MethodPut, path, ts.admin, `{"fromAmount":400000,"toAmount":0,"ratePercent":25}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodPut, path, ts.admin, `{"fromAmount":400000,"ratePercent":120}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/taxslabs", ts.admin, `{"fromAmount":-1,"ratePercent":5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/taxslabs", ts.admin, nil)
	slabs = decodeBody[[]slabResponse](t, rr)
	require.Len(t, slabs, 3)
	assert.Equal(t, json.Number("400000"), slabs[2].FromAmount, "ordered by lower bound")
	assert.Equal(t, json.Number("25"), slabs[2].RatePercent)

	rr = ts.do(t, http.MethodDelete, path, ts.admin, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = ts.do(t, http.MethodDelete, path, ts.admin, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/taxslabs/abc", ts.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCalculateAndHistory(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createTaxpayer(t, "Chaudhry")
	base := "/api/taxpayers/" + id

	for _, amount := range []string{"100000", "50000"} {
		rr := ts.do(t, http.MethodPost, base+"/incomes", ts.accountant,
			`{"date":"2024-02-01","type":"Salary","amount":`+amount+`}`)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := ts.do(t, http.MethodPost, base+"/calculate", ts.accountant, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	calc := decodeBody[calculationResponse](t, rr)
	assert.Equal(t, json.Number("150000"), calc.TotalIncome)
	assert.Equal(t, json.Number("10000"), calc.TaxAmount)

	rr = ts.do(t, http.MethodGet, base+"/calculations", ts.accountant, nil)
	history := decodeBody[[]calculationResponse](t, rr)
	require.Len(t, history, 1)
	assert.Equal(t, calc.ID, history[0].ID)

	rr = ts.do(t, http.MethodPost, "/api/taxpayers/"+uuid.NewString()+"/calculate", ts.accountant, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = ts.do(t, http.MethodGet, "/api/taxpayers/"+uuid.NewString()+"/calculations", ts.accountant, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReport(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.now = func() time.Time { return time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC) }
	id := ts.createTaxpayer(t, "Dania Ali")

	rr := ts.do(t, http.MethodGet, "/api/taxpayers/"+id+"/report", ts.accountant, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="TaxReport_Dania_Ali_20240701093000.pdf"`, rr.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")))

	rr = ts.do(t, http.MethodGet, "/api/taxpayers/"+id+"/calculations", ts.accountant, nil)
	assert.Len(t, decodeBody[[]calculationResponse](t, rr), 1, "report calculates when none exist")

	rr = ts.do(t, http.MethodGet, "/api/taxpayers/"+uuid.NewString()+"/report", ts.accountant, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	ts := newTestServer(t)
	deps := ts.srv.deps
	deps.RequestsPerMinute = 2
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	ts.srv = srv

	for i := 0; i < 2; i++ {
		rr := ts.do(t, http.MethodPost, "/api/taxpayers", ts.admin, map[string]string{"name": "T", "cnic": "1"})
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr := ts.do(t, http.MethodPost, "/api/taxpayers", ts.admin, map[string]string{"name": "T", "cnic": "1"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = ts.do(t, http.MethodGet, "/api/taxpayers", ts.admin, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	requests, limited, _, _ := srv.Stats()
	assert.Equal(t, int64(4), requests)
	assert.Equal(t, int64(1), limited)
}

func TestBlockedMethod(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, "TRACE", "/api/taxpayers", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
