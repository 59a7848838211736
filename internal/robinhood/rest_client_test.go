package robinhood

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"robinhood-tool-server/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	rc := &RestClient{
		client:       resty.New().SetBaseURL(server.URL),
		logger:       zap.NewNop(), // Use a no-op logger for tests
		limiter:      rate.NewLimiter(rate.Inf, 1),
		retryBackoff: time.Millisecond,
		deviceToken:  "test-device",
	}

	return rc, server
}

func loggedIn(rc *RestClient) *RestClient {
	rc.token = "test-token"
	return rc
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/oauth2/token/", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "user@example.com", r.PostForm.Get("username"))
			assert.Equal(t, "123456", r.PostForm.Get("mfa_code"))
			assert.Equal(t, "test-device", r.PostForm.Get("device_token"))
			writeJSON(w, `{"access_token":"abc","token_type":"Bearer","expires_in":86400,"scope":"internal"}`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		token, err := rc.Login(context.Background(), "user@example.com", "pw", "123456")

		require.NoError(t, err)
		assert.Equal(t, 86400, token.ExpiresIn)
		assert.True(t, rc.IsLoggedIn())
	})

	t.Run("MFARequired", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `{"mfa_required":true,"mfa_type":"sms"}`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.Login(context.Background(), "user@example.com", "pw", "")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "mfa")
		assert.False(t, rc.IsLoggedIn())
	})

	t.Run("BadCredentials", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Unable to log in with provided credentials."}`))
		})
		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.Login(context.Background(), "user@example.com", "wrong", "")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to login")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls)) // 4xx is not retried
	})
}

func TestLogout(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/revoke_token/", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "test-token", r.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()
	loggedIn(rc)

	assert.NoError(t, rc.Logout(context.Background()))
	assert.False(t, rc.IsLoggedIn())
	assert.ErrorIs(t, rc.Logout(context.Background()), ErrNotLoggedIn)
}

func TestAuthenticatedCallsRequireSession(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	_, err := rc.GetAllStockOrders(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = rc.GetQuotes(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestGetAllStockOrders_Paginates(t *testing.T) {
	var server *httptest.Server
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, fmt.Sprintf(`{"next":"%s/orders/?cursor=2","results":[
				{"id":"o1","side":"buy","state":"filled","average_price":"100.00","quantity":"1.00000",
				 "created_at":"2025-05-02T13:30:00.000000Z","executions":[{"fees":"0.01"}]}]}`, server.URL))
			return
		}
		writeJSON(w, `{"next":null,"results":[
			{"id":"o2","side":"sell","state":"confirmed","average_price":null,"quantity":"2.00000","created_at":"2025-05-02T14:00:00Z"}]}`)
	})
	rc, srv := setupTestServer(handler)
	server = srv
	defer server.Close()
	loggedIn(rc)

	orders, err := rc.GetAllStockOrders(context.Background())

	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o1", orders[0].ID)
	assert.Equal(t, "100.00", orders[0].AveragePrice)
	assert.Equal(t, "0.01", orders[0].Executions[0].Fees)
	assert.Equal(t, "", orders[1].AveragePrice)

	open, err := rc.GetAllOpenStockOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "o2", open[0].ID)
}

func TestGetLatestPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/quotes/", r.URL.Path)
			assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
			writeJSON(w, `{"results":[{"symbol":"AAPL","last_trade_price":"189.9800","ask_price":"190.00","bid_price":"189.95"}]}`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()
		loggedIn(rc)

		price, err := rc.GetLatestPrice(context.Background(), "aapl")

		require.NoError(t, err)
		assert.Equal(t, 189.98, price)
	})

	t.Run("UnknownSymbol", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `{"results":[null]}`)
		})
		rc, server := setupTestServer(handler)
		defer server.Close()
		loggedIn(rc)

		_, err := rc.GetLatestPrice(context.Background(), "ZZZZ")

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, `{"url":"https://api.robinhood.com/instruments/1/","symbol":"AAPL"}`)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	instrument, err := rc.GetInstrumentByURL(context.Background(), server.URL+"/instruments/1/")

	require.NoError(t, err)
	assert.Equal(t, "AAPL", instrument.Symbol)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoRequest_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	_, err := rc.GetInstrumentByURL(context.Background(), server.URL+"/instruments/1/")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "request failed after 3 attempts")
	assert.Equal(t, int32(maxRetries), atomic.LoadInt32(&calls))
}

func TestGetInstrumentByURL_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	_, err := rc.GetInstrumentByURL(context.Background(), server.URL+"/instruments/missing/")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlaceOrder(t *testing.T) {
	t.Run("MarketBuyUsesAskAsCollar", func(t *testing.T) {
		var placed map[string]any
		mux := http.NewServeMux()
		mux.HandleFunc("/accounts/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `{"results":[{"url":"https://api.robinhood.com/accounts/5RY/","account_number":"5RY"}]}`)
		})
		mux.HandleFunc("/instruments/", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
			writeJSON(w, `{"results":[{"url":"https://api.robinhood.com/instruments/1/","symbol":"AAPL"}]}`)
		})
		mux.HandleFunc("/quotes/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `{"results":[{"symbol":"AAPL","ask_price":"190.0100","bid_price":"189.9000","last_trade_price":"190.00"}]}`)
		})
		mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&placed))
			writeJSON(w, `{"id":"new-order","state":"unconfirmed","side":"buy","created_at":"2025-05-02T13:30:00Z"}`)
		})
		rc, server := setupTestServer(mux)
		defer server.Close()
		loggedIn(rc)

		order, err := rc.PlaceOrder(context.Background(), OrderRequest{
			Symbol: "aapl", Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 3,
		})

		require.NoError(t, err)
		assert.Equal(t, "new-order", order.ID)
		assert.Equal(t, "190.01", placed["price"])
		assert.Equal(t, "3", placed["quantity"])
		assert.Equal(t, "AAPL", placed["symbol"])
		assert.Equal(t, "gtc", placed["time_in_force"])
		assert.Equal(t, "https://api.robinhood.com/accounts/5RY/", placed["account"])
		assert.NotEmpty(t, placed["ref_id"])
	})

	t.Run("Validation", func(t *testing.T) {
		rc, server := setupTestServer(http.NotFoundHandler())
		defer server.Close()
		loggedIn(rc)

		testCases := []OrderRequest{
			{Symbol: "", Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 1},
			{Symbol: "AAPL", Side: "hold", Type: OrderTypeMarket, Quantity: 1},
			{Symbol: "AAPL", Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0},
			{Symbol: "AAPL", Side: OrderSideSell, Type: OrderTypeLimit, Quantity: 1},
			{Symbol: "AAPL", Side: OrderSideSell, Type: "stop", Quantity: 1},
		}
		for _, tc := range testCases {
			_, err := rc.PlaceOrder(context.Background(), tc)
			assert.Error(t, err, "%+v", tc)
		}
	})
}

func TestCancelOrder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/abc/cancel/", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, `{}`)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()
	loggedIn(rc)

	assert.NoError(t, rc.CancelOrder(context.Background(), "abc"))
	assert.Error(t, rc.CancelOrder(context.Background(), ""))
}

func TestGetHistoricalPortfolio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"results":[{"url":"u","account_number":"5RY"}]}`)
	})
	mux.HandleFunc("/portfolios/historicals/5RY/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "week", r.URL.Query().Get("span"))
		assert.Equal(t, "10minute", r.URL.Query().Get("interval"))
		writeJSON(w, `{"span":"week","equity_historicals":[{"begins_at":"2025-05-01T13:30:00Z","close_equity":"1000.00","adjusted_close_equity":"1000.00"}],"total_return":{"percentage":"1.25"}}`)
	})
	rc, server := setupTestServer(mux)
	defer server.Close()
	loggedIn(rc)

	history, err := rc.GetHistoricalPortfolio(context.Background(), "week")
	require.NoError(t, err)
	require.Len(t, history.EquityHistoricals, 1)
	assert.Equal(t, "1.25", history.TotalReturn.Percentage)

	_, err = rc.GetHistoricalPortfolio(context.Background(), "decade")
	assert.Error(t, err)
}

func TestObserverSeesEveryAttempt(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, `{"symbol":"AAPL"}`)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	var statuses []int
	rc.SetObserver(func(endpoint string, status int, _ time.Duration) {
		assert.Equal(t, "/instruments/", endpoint)
		statuses = append(statuses, status)
	})

	_, err := rc.GetInstrumentByURL(context.Background(), server.URL+"/instruments/1/")
	require.NoError(t, err)
	assert.Equal(t, []int{503, 200}, statuses)
}

func TestSetObserver_ConcurrentWithRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"symbol":"AAPL"}`)
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	var observed int32
	observer := func(string, int, time.Duration) { atomic.AddInt32(&observed, 1) }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			rc.SetObserver(observer)
		}()
		go func() {
			defer wg.Done()
			_, err := rc.GetInstrumentByURL(context.Background(), server.URL+"/instruments/1/")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := rc.GetInstrumentByURL(context.Background(), server.URL+"/instruments/1/")
	require.NoError(t, err)
	assert.Positive(t, atomic.LoadInt32(&observed))
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/orders/", endpointLabel("/orders/abc/cancel/"))
	assert.Equal(t, "/quotes/", endpointLabel("/quotes/?symbols=AAPL"))
	assert.Equal(t, "/instruments/", endpointLabel("https://api.robinhood.com/instruments/450dfc6d/"))
	assert.Equal(t, "/", endpointLabel("https://api.robinhood.com"))
}

func TestNewRestClient(t *testing.T) {
	cfg := &config.Robinhood{RateLimit: 5, RateLimitBurst: 1}
	rc := NewRestClient(cfg, zap.NewNop())

	assert.NotNil(t, rc)
	assert.NotEmpty(t, rc.deviceToken)
	assert.False(t, rc.IsLoggedIn())
	assert.Equal(t, DefaultBaseURL, rc.client.BaseURL)
}
