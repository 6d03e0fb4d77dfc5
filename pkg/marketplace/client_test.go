package marketplace

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	client, err := NewClient(srv.URL+"/api/v1/", opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCreateOrderRequest(t *testing.T) {
	var captured CreateOrderRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ord_123","status":"pending_payment"}`))
	}, WithAPIToken("secret"))

	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		ListingID:             "listing-1",
		Quantity:              2,
		TotalAmountMinorUnits: 2598,
		Currency:              "USD",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "ord_123" || order.Status != "pending_payment" {
		t.Fatalf("unexpected order %+v", order)
	}
	if captured.ListingID != "listing-1" || captured.Quantity != 2 || captured.TotalAmountMinorUnits != 2598 || captured.Currency != "USD" {
		t.Fatalf("unexpected payload %+v", captured)
	}
}

func TestConfirmPaymentPath(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.ConfirmPayment(context.Background(), "ord_123"); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if path != "/api/v1/orders/ord_123/confirm-payment" {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestRemoteRejectionMessages(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "string detail", status: http.StatusConflict, body: `{"detail":"listing sold out"}`, message: "listing sold out"},
		{name: "structured detail", status: http.StatusUnprocessableEntity, body: `{"detail": [ {"loc": ["quantity"], "msg": "too large"} ]}`, message: `[{"loc":["quantity"],"msg":"too large"}]`},
		{name: "no detail", status: http.StatusBadRequest, body: `{"error":"bad"}`, message: "HTTP 400"},
		{name: "non json body", status: http.StatusForbidden, body: `forbidden`, message: "HTTP 403"},
		{name: "null detail", status: http.StatusNotFound, body: `{"detail":null}`, message: "HTTP 404"},
		{name: "server error", status: http.StatusBadGateway, body: ``, message: "HTTP 502"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.CreateOrder(context.Background(), CreateOrderRequest{ListingID: "l", Quantity: 1})
			typed := pkgerrors.As(err)
			if typed == nil {
				t.Fatalf("expected typed error, got %v", err)
			}
			if typed.Code() != pkgerrors.CodeRemoteRejection {
				t.Fatalf("expected remote rejection, got %s", typed.Code())
			}
			if typed.Message() != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, typed.Message())
			}
			details, ok := typed.Details().(map[string]any)
			if !ok || details["status"] != tc.status {
				t.Fatalf("unexpected details %#v", typed.Details())
			}
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(url, WithHTTPClient(&http.Client{Timeout: time.Second}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.CreateOrder(context.Background(), CreateOrderRequest{ListingID: "l", Quantity: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNetwork) {
		t.Fatalf("expected network failure, got %v", err)
	}
}

func TestUndecodableBodyIsUnknownFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	})
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{ListingID: "l", Quantity: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnknown) {
		t.Fatalf("expected unknown failure, got %v", err)
	}
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	var calls atomic.Int32
	status.Store(http.StatusConflict)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}, WithBreaker(2, time.Minute))

	ctx := context.Background()
	req := CreateOrderRequest{ListingID: "l", Quantity: 1}

	for i := 0; i < 3; i++ {
		if _, err := client.CreateOrder(ctx, req); !pkgerrors.IsCode(err, pkgerrors.CodeRemoteRejection) {
			t.Fatalf("expected rejection, got %v", err)
		}
	}
	if client.BreakerState() != gobreaker.StateClosed {
		t.Fatalf("4xx responses must not trip the breaker")
	}

	status.Store(http.StatusServiceUnavailable)
	for i := 0; i < 2; i++ {
		_, _ = client.CreateOrder(ctx, req)
	}
	if client.BreakerState() != gobreaker.StateOpen {
		t.Fatalf("expected breaker open, got %s", client.BreakerState())
	}

	before := calls.Load()
	_, err := client.CreateOrder(ctx, req)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNetwork) {
		t.Fatalf("expected network failure while open, got %v", err)
	}
	if calls.Load() != before {
		t.Fatalf("open breaker must short-circuit requests")
	}
}

func TestInsightEndpoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/insights/sellers/seller-1/demand":
			_, _ = w.Write([]byte(`{"seller_id":"seller-1","active_listings":4,"views_7d":120,"saves_7d":9,"demand_score":0.7}`))
		case "/api/v1/insights/products/prod/1/price-coach":
			if r.URL.RawPath != "/api/v1/insights/products/prod%2F1/price-coach" {
				t.Errorf("product id not escaped: %q", r.URL.RawPath)
			}
			_, _ = w.Write([]byte(`{"product_id":"prod/1","currency":"USD","suggested_minor_units":1299,"low_minor_units":999,"high_minor_units":1599}`))
		case "/api/v1/insights/products/prod-2/recommendations":
			_, _ = w.Write([]byte(`{"listings":[{"listing_id":"l-9","title":"Lamp","price_minor_units":4500,"currency":"USD"}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	demand, err := client.SellerDemand(ctx, "seller-1")
	if err != nil {
		t.Fatalf("seller demand: %v", err)
	}
	if demand.ActiveListings != 4 || demand.Views7d != 120 {
		t.Fatalf("unexpected demand %+v", demand)
	}

	coach, err := client.PriceCoach(ctx, "prod/1")
	if err != nil {
		t.Fatalf("price coach: %v", err)
	}
	if coach.SuggestedMinorUnits != 1299 {
		t.Fatalf("unexpected coach %+v", coach)
	}

	listings, err := client.RecommendedListings(ctx, "prod-2")
	if err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	if len(listings) != 1 || listings[0].ListingID != "l-9" {
		t.Fatalf("unexpected listings %+v", listings)
	}
}

func TestValidationFailsBeforeRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	if _, err := client.CreateOrder(context.Background(), CreateOrderRequest{Quantity: 1}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := client.ConfirmPayment(context.Background(), " "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := NewClient(" "); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
