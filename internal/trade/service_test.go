package trade_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/jbmild/cocos/internal/model"
	"github.com/jbmild/cocos/internal/portfolio"
	"github.com/jbmild/cocos/internal/store"
	"github.com/jbmild/cocos/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var (
	usd  = model.Instrument{ID: 1, Ticker: "USD", Name: "US Dollar", Kind: model.KindCurrency}
	aapl = model.Instrument{ID: 2, Ticker: "AAPL", Name: "Apple Inc", Kind: model.KindStock}
	nodq = model.Instrument{ID: 3, Ticker: "NODQ", Name: "No Quote Corp", Kind: model.KindStock}
)

func newTestRouter(t *testing.T) (*chi.Mux, *store.MemoryStore) {
	t.Helper()

	ms := store.NewMemoryStore()
	ms.AddInstrument(usd)
	ms.AddInstrument(aapl)
	ms.AddInstrument(nodq)
	ms.AddPrice(model.PricePoint{
		InstrumentID:  aapl.ID,
		Close:         d(100.50),
		PreviousClose: d(100),
		Date:          time.Now().UTC(),
	})

	svc := trade.NewService(ms, portfolio.FullReplay{}, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", svc.HandleCreateOrder)
		r.Get("/orders/{orderID}", svc.HandleGetOrder)
		r.Post("/orders/{orderID}/cancel", svc.HandleCancelOrder)
		r.Get("/portfolio/{userID}", svc.HandleGetPortfolio)
		r.Get("/instruments/search", svc.HandleSearchInstruments)
	})
	return r, ms
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createOrder(t *testing.T, r http.Handler, body string, wantStatus int) model.Order {
	t.Helper()

	w := do(t, r, http.MethodPost, "/api/v1/orders", body)
	if w.Code != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, w.Code, w.Body.String())
	}
	var o model.Order
	if wantStatus == http.StatusCreated {
		if err := json.NewDecoder(w.Body).Decode(&o); err != nil {
			t.Fatalf("decode order: %v", err)
		}
	}
	return o
}

func deposit(t *testing.T, r http.Handler, amount int64) {
	t.Helper()

	body := fmt.Sprintf(`{"user_id":1,"instrument_id":1,"side":"CASH_IN","type":"MARKET","size":%d}`, amount)
	o := createOrder(t, r, body, http.StatusCreated)
	if o.Status != model.StatusFilled {
		t.Fatalf("expected deposit FILLED, got %s", o.Status)
	}
}

func getPortfolio(t *testing.T, r http.Handler, userID int64) model.Portfolio {
	t.Helper()

	w := do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/portfolio/%d", userID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var pf model.Portfolio
	if err := json.NewDecoder(w.Body).Decode(&pf); err != nil {
		t.Fatalf("decode portfolio: %v", err)
	}
	return pf
}

func TestCreateOrder_DepositThenBuy(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	o := createOrder(t, r,
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"MARKET","size":10}`,
		http.StatusCreated)
	if o.Status != model.StatusFilled {
		t.Errorf("expected FILLED, got %s", o.Status)
	}
	if !o.Price.Equal(d(100.50)) {
		t.Errorf("expected execution at market price 100.50, got %s", o.Price)
	}

	pf := getPortfolio(t, r, 1)
	if !pf.AvailableCash.Equal(d(8995)) {
		t.Errorf("expected cash 8995, got %s", pf.AvailableCash)
	}
	if len(pf.Holdings) != 1 || pf.Holdings[0].Quantity != 10 {
		t.Errorf("expected a 10-unit holding, got %+v", pf.Holdings)
	}
}

func TestCreateOrder_AmountConversion(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	o := createOrder(t, r,
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"MARKET","amount":1005}`,
		http.StatusCreated)
	if o.Size != 10 {
		t.Errorf("expected size 10 from amount 1005 at price 100.50, got %d", o.Size)
	}
	if o.Status != model.StatusFilled {
		t.Errorf("expected FILLED, got %s", o.Status)
	}
}

func TestCreateOrder_AmountTooSmall(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	w := do(t, r, http.MethodPost, "/api/v1/orders",
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"MARKET","amount":50}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "too small") {
		t.Errorf("expected an amount-too-small message, got %s", w.Body.String())
	}
}

func TestCreateOrder_SellWithoutPositionRejected(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	// Rejection is a recorded outcome, not an HTTP error.
	o := createOrder(t, r,
		`{"user_id":1,"instrument_id":2,"side":"SELL","type":"MARKET","size":10}`,
		http.StatusCreated)
	if o.Status != model.StatusRejected {
		t.Errorf("expected REJECTED, got %s", o.Status)
	}

	pf := getPortfolio(t, r, 1)
	if !pf.AvailableCash.Equal(d(10000)) {
		t.Errorf("expected rejected order to leave cash untouched, got %s", pf.AvailableCash)
	}
}

func TestCreateOrder_InsufficientCashRejected(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 100)

	o := createOrder(t, r,
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"MARKET","size":10}`,
		http.StatusCreated)
	if o.Status != model.StatusRejected {
		t.Errorf("expected REJECTED, got %s", o.Status)
	}
}

func TestCreateOrder_UnknownInstrument(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/orders",
		`{"user_id":1,"instrument_id":99,"side":"BUY","type":"MARKET","size":1}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateOrder_NoMarketPrice(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	w := do(t, r, http.MethodPost, "/api/v1/orders",
		`{"user_id":1,"instrument_id":3,"side":"BUY","type":"MARKET","size":1}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without market data, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateOrder_LimitWithoutPrice(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/orders",
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"LIMIT","size":10}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/orders", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCancelOrder_Lifecycle(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	o := createOrder(t, r,
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"LIMIT","size":10,"price":95}`,
		http.StatusCreated)
	if o.Status != model.StatusNew {
		t.Fatalf("expected LIMIT order to rest as NEW, got %s", o.Status)
	}

	w := do(t, r, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var cancelled model.Order
	if err := json.NewDecoder(w.Body).Decode(&cancelled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}

	// Cancelling again must fail and name the current status.
	w = do(t, r, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on double cancel, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "CANCELLED") {
		t.Errorf("expected the current status in %s", w.Body.String())
	}
}

func TestCancelOrder_FilledOrder(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	o := createOrder(t, r,
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"MARKET","size":10}`,
		http.StatusCreated)

	w := do(t, r, http.MethodPost, "/api/v1/orders/"+o.ID+"/cancel", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 cancelling a FILLED order, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "FILLED") {
		t.Errorf("expected the current status in %s", w.Body.String())
	}
}

func TestCancelOrder_Unknown(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/orders/b4b4b4b4-0000-0000-0000-000000000000/cancel", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetOrder(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	o := createOrder(t, r,
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"MARKET","size":5}`,
		http.StatusCreated)

	w := do(t, r, http.MethodGet, "/api/v1/orders/"+o.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got model.Order
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != o.ID || got.Size != 5 {
		t.Errorf("expected the created order back, got %+v", got)
	}

	w = do(t, r, http.MethodGet, "/api/v1/orders/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown order, got %d", w.Code)
	}
}

func TestGetPortfolio_BadUserID(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/portfolio/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetPortfolio_EmptyAccount(t *testing.T) {
	r, _ := newTestRouter(t)

	pf := getPortfolio(t, r, 7)
	if !pf.AvailableCash.IsZero() || !pf.TotalValue.IsZero() {
		t.Errorf("expected an empty portfolio, got cash %s total %s", pf.AvailableCash, pf.TotalValue)
	}
}

func TestSearchInstruments(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/instruments/search?q=ap", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []model.Instrument
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Ticker != "AAPL" {
		t.Errorf("expected AAPL only, got %+v", got)
	}

	w = do(t, r, http.MethodGet, "/api/v1/instruments/search?q=zzz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %s", body)
	}

	w = do(t, r, http.MethodGet, "/api/v1/instruments/search?limit=0", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-positive limit, got %d", w.Code)
	}
}

func TestLimitOrderExcludedFromPortfolio(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 10000)

	createOrder(t, r,
		`{"user_id":1,"instrument_id":2,"side":"BUY","type":"LIMIT","size":10,"price":95}`,
		http.StatusCreated)

	// Resting NEW orders have no economic effect until filled.
	pf := getPortfolio(t, r, 1)
	if !pf.AvailableCash.Equal(d(10000)) {
		t.Errorf("expected cash untouched by a resting order, got %s", pf.AvailableCash)
	}
	if len(pf.Holdings) != 0 {
		t.Errorf("expected no holdings, got %+v", pf.Holdings)
	}
}

func TestCashOutBeyondBalanceRejected(t *testing.T) {
	r, _ := newTestRouter(t)
	deposit(t, r, 500)

	o := createOrder(t, r,
		`{"user_id":1,"instrument_id":1,"side":"CASH_OUT","type":"MARKET","size":600}`,
		http.StatusCreated)
	if o.Status != model.StatusRejected {
		t.Errorf("expected REJECTED, got %s", o.Status)
	}

	o = createOrder(t, r,
		`{"user_id":1,"instrument_id":1,"side":"CASH_OUT","type":"MARKET","size":500}`,
		http.StatusCreated)
	if o.Status != model.StatusFilled {
		t.Errorf("expected FILLED for withdrawal of the full balance, got %s", o.Status)
	}

	pf := getPortfolio(t, r, 1)
	if !pf.AvailableCash.IsZero() {
		t.Errorf("expected zero cash, got %s", pf.AvailableCash)
	}
}
