package routes

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/localcart/api/responses"
	"github.com/angelmondragon/localcart/internal/cart"
	"github.com/angelmondragon/localcart/internal/cartstate"
	"github.com/angelmondragon/localcart/internal/cartstore"
	"github.com/angelmondragon/localcart/internal/checkout"
	"github.com/angelmondragon/localcart/internal/connectivity"
	"github.com/angelmondragon/localcart/internal/insights"
	"github.com/angelmondragon/localcart/internal/orders"
	"github.com/angelmondragon/localcart/internal/testutil"
	"github.com/angelmondragon/localcart/pkg/config"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/angelmondragon/localcart/pkg/marketplace"
	"github.com/angelmondragon/localcart/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type testServer struct {
	server *httptest.Server
	conn   *connectivity.Static
}

func newTestServer(t *testing.T, remote http.Handler) *testServer {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "routes-test", Output: io.Discard})
	cfg := &config.Config{
		App:          config.AppConfig{Env: "test"},
		FeatureFlags: config.FeatureFlagsConfig{ServeMetrics: true},
		Cart:         config.CartConfig{StreamHeartbeat: time.Second},
	}
	conn := testutil.NewSQLite(t)
	ctx := context.Background()

	store, err := cartstore.New(ctx, conn, logg)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	ds, err := cart.NewDataSource(cart.DataSourceParams{Store: store, Logger: logg})
	require.NoError(t, err)
	online := connectivity.NewStatic(true)
	repo, err := cartstate.NewRepository(cartstate.RepositoryParams{DataSource: ds, Connectivity: online, Logger: logg})
	require.NoError(t, err)

	marketplaceServer := httptest.NewServer(remote)
	t.Cleanup(marketplaceServer.Close)
	client, err := marketplace.NewClient(marketplaceServer.URL)
	require.NoError(t, err)

	orderCache, err := orders.NewOrderCache(conn)
	require.NoError(t, err)
	payments, err := orders.NewPaymentHistory(conn)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	checkoutSvc, err := checkout.NewService(checkout.Params{
		Logger:   logg,
		Items:    ds,
		Remote:   client,
		Orders:   orderCache,
		Payments: payments,
		Metrics:  metrics.NewCheckoutMetrics(reg),
	})
	require.NoError(t, err)
	insightSvc, err := insights.NewService(insights.Params{
		Logger: logg,
		Remote: client,
		Config: config.CacheConfig{
			SellerDemandCapacity: 4, SellerDemandTTL: time.Minute,
			PriceCoachCapacity: 4, PriceCoachTTL: time.Minute,
			RecommendationsCapacity: 4, RecommendationsTTL: time.Minute,
		},
		Metrics: metrics.NewCacheMetrics(reg),
	})
	require.NoError(t, err)

	handler := NewRouter(Params{
		Config:   cfg,
		Logger:   logg,
		DB:       stubPinger{},
		Metrics:  reg,
		Cart:     repo,
		Checkout: checkoutSvc,
		Orders:   orderCache,
		Payments: payments,
		Insights: insightSvc,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testServer{server: server, conn: online}
}

func (s *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func decodeError(t *testing.T, resp *http.Response) responses.APIError {
	t.Helper()
	var envelope responses.ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error
}

type cartBody struct {
	Items []struct {
		ItemID     string `json:"item_id"`
		ProductID  string `json:"product_id"`
		Quantity   int    `json:"quantity"`
		TotalPrice struct {
			Amount string `json:"amount"`
		} `json:"total_price"`
	} `json:"items"`
	IsOffline    bool    `json:"is_offline"`
	ErrorMessage *string `json:"error_message"`
}

func remoteRejectingListing(listing string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			var req marketplace.CreateOrderRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.ListingID == listing {
				w.WriteHeader(http.StatusConflict)
				_, _ = io.WriteString(w, `{"detail":"listing sold out"}`)
				return
			}
			_ = json.NewEncoder(w).Encode(marketplace.Order{ID: "ord_" + req.ListingID, Status: "pending_payment"})
		case strings.HasSuffix(r.URL.Path, "/confirm-payment"):
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(r.URL.Path, "/insights/sellers/"):
			_, _ = io.WriteString(w, `{"seller_id":"s1","active_listings":3,"demand_score":0.5}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, remoteRejectingListing(""))

	resp := s.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test", resp.Header.Get("X-LocalCart-Env"))

	resp = s.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCartLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, remoteRejectingListing(""))

	resp := s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","title":"Lamp","quantity":2,"unit_price_minor_units":1250,"currency_code":"usd","variant_selections":[{"name":"color","value":"red"}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	line := decodeData[struct {
		ItemID string `json:"item_id"`
	}](t, resp)
	require.NotEmpty(t, line.ItemID)

	resp = s.do(t, http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decodeData[cartBody](t, resp)
	require.Len(t, state.Items, 1)
	assert.Equal(t, "25.00", state.Items[0].TotalPrice.Amount)

	resp = s.do(t, http.MethodPatch, "/api/v1/cart/items/"+line.ItemID, `{"quantity":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPatch, "/api/v1/cart/items/missing", `{"quantity":5}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Code)

	resp = s.do(t, http.MethodGet, "/api/v1/cart", "")
	state = decodeData[cartBody](t, resp)
	require.NotNil(t, state.ErrorMessage)
	assert.Equal(t, 5, state.Items[0].Quantity)

	resp = s.do(t, http.MethodDelete, "/api/v1/cart/error", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/v1/cart/items/"+line.ItemID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/cart", "")
	state = decodeData[cartBody](t, resp)
	assert.Empty(t, state.Items)
	assert.Nil(t, state.ErrorMessage)

	resp = s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p1","title":"Lamp","quantity":0,"currency_code":"USD"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/v1/cart/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodPost, "/api/v1/cart/login", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCheckoutPartialOverHTTP(t *testing.T) {
	s := newTestServer(t, remoteRejectingListing("p2"))

	for _, body := range []string{
		`{"product_id":"p1","title":"Lamp","quantity":1,"unit_price_minor_units":1000,"currency_code":"USD"}`,
		`{"product_id":"p2","title":"Desk","quantity":1,"unit_price_minor_units":5000,"currency_code":"USD"}`,
	} {
		resp := s.do(t, http.MethodPost, "/api/v1/cart/items", body)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		// distinct last-modified stamps keep checkout order stable
		time.Sleep(2 * time.Millisecond)
	}

	resp := s.do(t, http.MethodPost, "/api/v1/checkout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeData[struct {
		Outcome  string `json:"outcome"`
		Orders   []struct{ RemoteOrderID string `json:"remote_order_id"` } `json:"orders"`
		Failures []struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"failures"`
	}](t, resp)
	assert.Equal(t, "PARTIAL", result.Outcome)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "ord_p1", result.Orders[0].RemoteOrderID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "REMOTE_REJECTION", result.Failures[0].Kind)
	assert.Equal(t, "listing sold out", result.Failures[0].Message)

	resp = s.do(t, http.MethodGet, "/api/v1/cart", "")
	state := decodeData[cartBody](t, resp)
	require.Len(t, state.Items, 1)
	assert.Equal(t, "p2", state.Items[0].ProductID)
	require.NotNil(t, state.ErrorMessage)
	assert.Equal(t, "1 item could not be ordered", *state.ErrorMessage)

	resp = s.do(t, http.MethodGet, "/api/v1/orders?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	orderPage := decodeData[struct {
		Items []struct {
			Total struct {
				Amount string `json:"amount"`
			} `json:"total"`
		} `json:"items"`
	}](t, resp)
	require.Len(t, orderPage.Items, 1)
	assert.Equal(t, "10.00", orderPage.Items[0].Total.Amount)

	resp = s.do(t, http.MethodGet, "/api/v1/payments", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paymentPage := decodeData[struct {
		Items []struct {
			ActionLabel string `json:"action_label"`
			Confirmed   bool   `json:"confirmed"`
		} `json:"items"`
	}](t, resp)
	require.Len(t, paymentPage.Items, 1)
	assert.Equal(t, "Card ending d_p1", paymentPage.Items[0].ActionLabel)
	assert.True(t, paymentPage.Items[0].Confirmed)
}

func TestInsightsOverHTTP(t *testing.T) {
	s := newTestServer(t, remoteRejectingListing(""))

	resp := s.do(t, http.MethodGet, "/api/v1/insights/sellers/s1/demand", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	demand := decodeData[marketplace.SellerDemand](t, resp)
	assert.Equal(t, "s1", demand.SellerID)

	resp = s.do(t, http.MethodGet, "/api/v1/insights/products/p1/price-coach", "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "HTTP 404", decodeError(t, resp).Message)

	resp = s.do(t, http.MethodDelete, "/api/v1/insights/cache", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCartStreamPushesStateChanges(t *testing.T) {
	s := newTestServer(t, remoteRejectingListing(""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.server.URL+"/api/v1/cart/stream", nil)
	require.NoError(t, err)
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan cartBody, 8)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var state cartBody
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &state) == nil {
				events <- state
			}
		}
	}()

	waitFor := func(match func(cartBody) bool) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case state, ok := <-events:
				require.True(t, ok, "stream ended")
				if match(state) {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for stream event")
			}
		}
	}

	waitFor(func(s cartBody) bool { return len(s.Items) == 0 && !s.IsOffline })

	s.conn.Set(false)
	waitFor(func(s cartBody) bool { return s.IsOffline })

	post := s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p9","title":"Chair","quantity":1,"unit_price_minor_units":100,"currency_code":"USD"}`)
	require.Equal(t, http.StatusCreated, post.StatusCode)
	waitFor(func(s cartBody) bool { return len(s.Items) == 1 && s.Items[0].ProductID == "p9" })
}
