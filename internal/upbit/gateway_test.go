package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
)

type mockCanceller struct {
	mock.Mock
}

func (m *mockCanceller) ListOpenOrders(ctx context.Context, market string) ([]model.Order, error) {
	args := m.Called(ctx, market)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Error(1)
}

func (m *mockCanceller) CancelOrder(ctx context.Context, orderUUID string) (model.Order, error) {
	args := m.Called(ctx, orderUUID)
	return args.Get(0).(model.Order), args.Error(1)
}

func TestCancelAll(t *testing.T) {
	ctx := context.Background()
	accounts := []model.Account{
		{Currency: "KRW", UnitCurrency: "KRW", Balance: 1000000},
		{Currency: "BTC", UnitCurrency: "KRW", Balance: 0.02},
	}

	c := new(mockCanceller)
	c.On("ListOpenOrders", ctx, "KRW-BTC").Return([]model.Order{{UUID: "a", Market: "KRW-BTC", Side: model.OrderSideAsk}}, nil)
	c.On("ListOpenOrders", ctx, "KRW-ETH").Return([]model.Order{{UUID: "b", Market: "KRW-ETH", Side: model.OrderSideBid}, {UUID: "c", Market: "KRW-ETH", Side: model.OrderSideBid}}, nil)
	c.On("CancelOrder", ctx, "a").Return(model.Order{UUID: "a", State: model.OrderStateCancel}, nil)
	c.On("CancelOrder", ctx, "b").Return(model.Order{}, &rest.APIError{Kind: rest.ErrTransient, Status: 500})
	c.On("CancelOrder", ctx, "c").Return(model.Order{UUID: "c", State: model.OrderStateCancel}, nil)

	cancelled, err := CancelAll(ctx, c, accounts, []string{"KRW-BTC", "KRW-ETH"}, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, rest.ErrTransient)

	require.Len(t, cancelled, 2)
	assert.Equal(t, "a", cancelled[0].UUID)
	assert.Equal(t, "c", cancelled[1].UUID)

	c.AssertExpectations(t)
	c.AssertNumberOfCalls(t, "ListOpenOrders", 2)
}

func TestCancelAll_SkipsCash(t *testing.T) {
	c := new(mockCanceller)
	cancelled, err := CancelAll(context.Background(), c, []model.Account{{Currency: "KRW", UnitCurrency: "KRW", Balance: 1}}, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, cancelled)
	c.AssertNotCalled(t, "ListOpenOrders", mock.Anything, mock.Anything)
}

func TestGateway_CancelAllOpen(t *testing.T) {
	var deleted []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/accounts":
			_, _ = w.Write([]byte(`[{"currency":"KRW","balance":"100000","locked":"50000","avg_buy_price":"0","unit_currency":"KRW"},{"currency":"XRP","balance":"10","locked":"0","avg_buy_price":"700","unit_currency":"KRW"}]`))
		case r.URL.Path == "/v1/orders/open" && r.URL.Query().Get("market") == "KRW-XRP":
			_, _ = w.Write([]byte(`[{"uuid":"x-1","market":"KRW-XRP","side":"ask","ord_type":"limit","state":"wait","created_at":"2024-01-01T09:00:00+09:00"}]`))
		case r.URL.Path == "/v1/orders/open":
			_, _ = w.Write([]byte(`[]`))
		case r.URL.Path == "/v1/order" && r.Method == http.MethodDelete:
			deleted = append(deleted, r.URL.Query().Get("uuid"))
			_, _ = w.Write([]byte(`{"uuid":"x-1","market":"KRW-XRP","side":"ask","ord_type":"limit","state":"wait","created_at":"2024-01-01T09:00:00+09:00"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	rc := rest.NewClient(rest.Config{AccessKey: "ak", SecretKey: "sk", RetryAttempts: 1}, zerolog.Nop())
	gw := NewGateway(rc, server.URL, zerolog.Nop())

	cancelled, err := gw.CancelAllOpen(context.Background(), []string{"KRW-BTC"})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, []string{"x-1"}, deleted)
}

// orderBookServer keeps open orders in memory across create, list and cancel calls
type orderBookServer struct {
	mu   sync.Mutex
	seq  int
	open map[string]map[string]any
}

func newOrderBookServer() *httptest.Server {
	book := &orderBookServer{open: make(map[string]map[string]any)}
	return httptest.NewServer(http.HandlerFunc(book.serve))
}

func (b *orderBookServer) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/orders":
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.seq++
		order := map[string]any{
			"uuid":     fmt.Sprintf("order-%d", b.seq),
			"market":   req["market"],
			"side":     req["side"],
			"ord_type": req["ord_type"],
			"price":    req["price"],
			"volume":   req["volume"],
			"state":    "wait",
		}
		b.open[order["uuid"].(string)] = order
		_ = json.NewEncoder(w).Encode(order)

	case r.Method == http.MethodGet && r.URL.Path == "/v1/orders/open":
		market := r.URL.Query().Get("market")
		orders := []map[string]any{}
		for _, o := range b.open {
			if o["market"] == market {
				orders = append(orders, o)
			}
		}
		_ = json.NewEncoder(w).Encode(orders)

	case r.Method == http.MethodDelete && r.URL.Path == "/v1/order":
		order, ok := b.open[r.URL.Query().Get("uuid")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"name":"order_not_found","message":"order not found"}}`))
			return
		}
		delete(b.open, order["uuid"].(string))
		order["state"] = "cancel"
		_ = json.NewEncoder(w).Encode(order)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func openUUIDs(orders []model.Order) []string {
	uuids := make([]string, 0, len(orders))
	for _, o := range orders {
		uuids = append(uuids, o.UUID)
	}
	return uuids
}

func TestGateway_OrderRoundTrip(t *testing.T) {
	server := newOrderBookServer()
	defer server.Close()

	rc := rest.NewClient(rest.Config{AccessKey: "ak", SecretKey: "sk", RetryAttempts: 1}, zerolog.Nop())
	gw := NewGateway(rc, server.URL, zerolog.Nop())
	ctx := context.Background()

	req := model.OrderRequest{
		Market: "KRW-BTC",
		Side:   model.OrderSideBid,
		Type:   model.OrderTypeLimit,
		Price:  "50000000",
		Volume: "0.0001",
	}

	first, err := gw.CreateOrder(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, first.UUID)

	open, err := gw.ListOpenOrders(ctx, "KRW-BTC")
	require.NoError(t, err)
	assert.Contains(t, openUUIDs(open), first.UUID)

	second, err := gw.CreateOrder(ctx, req)
	require.NoError(t, err)

	cancelled, err := gw.CancelOrder(ctx, first.UUID)
	require.NoError(t, err)
	assert.Equal(t, first.UUID, cancelled.UUID)
	assert.Equal(t, model.OrderStateCancel, cancelled.State)

	open, err = gw.ListOpenOrders(ctx, "KRW-BTC")
	require.NoError(t, err)
	assert.NotContains(t, openUUIDs(open), first.UUID)
	assert.Contains(t, openUUIDs(open), second.UUID)

	other, err := gw.ListOpenOrders(ctx, "KRW-ETH")
	require.NoError(t, err)
	assert.Empty(t, other)
}
