package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "licensepay.backend/internal/domain/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	newMiniredisClient(t)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{Provider: "mockgw", BaseURL: srv.URL, AuthUserID: "u", AuthSecret: "s"}
	limiter := NewRateLimiter(100, time.Minute)
	return NewClient(cfg, limiter), srv
}

func TestClient_AuthToken_FetchesAndCachesUntilNearExpiry(t *testing.T) {
	authCalls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth":
			authCalls++
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok-1",
				"expires_in":   300,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	tok1, err := client.AuthToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok1)

	tok2, err := client.AuthToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok2)
	assert.Equal(t, 1, authCalls, "a still-fresh token must not trigger a second /v1/auth call")
}

func TestClient_AuthToken_RefreshesWhenNearExpiry(t *testing.T) {
	authCalls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		authCalls++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-near-expiry",
			"expires_in":   10, // inside the 30s refresh margin
		})
	})

	ctx := context.Background()
	_, err := client.AuthToken(ctx)
	require.NoError(t, err)
	_, err = client.AuthToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, authCalls, "a token within the refresh margin must be re-fetched")
}

func TestClient_CreateCheckout_SanitizesFieldsAndReturnsResponse(t *testing.T) {
	var capturedBody map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 300})
		case "/v1/checkouts":
			_ = json.NewDecoder(r.Body).Decode(&capturedBody)
			_ = json.NewEncoder(w).Encode(CheckoutResponse{CheckoutID: "chk-1", Status: "pending", URL: "https://pay.test/chk-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	resp, err := client.CreateCheckout(context.Background(), CheckoutRequest{
		ExternalRef:        "order-1",
		AmountCents:        5000,
		Currency:           "COP",
		CheckoutHeader:     "Header!!<script>",
		CheckoutItem:       "License Key Bundle #42",
		DescriptionToPayee: "Payout for order #1 <<urgent>>",
		PayeeAccountID:     "acct-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "chk-1", resp.CheckoutID)
	assert.NotContains(t, capturedBody["checkout_header"], "<")
	assert.NotContains(t, capturedBody["checkout_header"], "!")
}

func TestClient_CreateCheckout_RateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 300})
		default:
			_ = json.NewEncoder(w).Encode(CheckoutResponse{CheckoutID: "chk-x"})
		}
	})
	client.limiter = NewRateLimiter(1, time.Minute)

	req := CheckoutRequest{PayeeAccountID: "acct-limited"}
	_, err := client.CreateCheckout(context.Background(), req)
	require.NoError(t, err)

	_, err = client.CreateCheckout(context.Background(), req)
	require.Error(t, err)
	appErr, ok := err.(*domainerrors.AppError)
	require.True(t, ok)
	assert.Equal(t, domainerrors.CodeRateLimit, appErr.Code)
}

func TestClient_GetCheckoutStatus_CachesUntilBypassed(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 300})
		case "/v1/checkouts/chk-1":
			calls++
			_ = json.NewEncoder(w).Encode(CheckoutStatus{CheckoutID: "chk-1", Status: "paid"})
		}
	})

	ctx := context.Background()
	s1, err := client.GetCheckoutStatus(ctx, "chk-1", false)
	require.NoError(t, err)
	assert.Equal(t, "paid", s1.Status)

	s2, err := client.GetCheckoutStatus(ctx, "chk-1", false)
	require.NoError(t, err)
	assert.Equal(t, "paid", s2.Status)
	assert.Equal(t, 1, calls, "a cached status must not re-hit the gateway")

	_, err = client.GetCheckoutStatus(ctx, "chk-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "bypassCache must force a fresh round trip")
}

func TestClient_GetOrCreateAccount_CreatesWhenLookupMisses(t *testing.T) {
	var createCalls, lookupCalls int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/auth":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 300})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/accounts":
			lookupCalls++
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/accounts":
			createCalls++
			_ = json.NewEncoder(w).Encode(Account{ID: "acc-99", Alias: "seller-1"})
		}
	})

	acc, err := client.GetOrCreateAccount(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-99", acc.ID)
	assert.Equal(t, 1, lookupCalls)
	assert.Equal(t, 1, createCalls)

	acc2, err := client.GetOrCreateAccount(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-99", acc2.ID)
	assert.Equal(t, 1, lookupCalls, "a cached account must not re-hit the lookup endpoint")
}

func TestClient_GatewayErrorStatus_SurfacesAsExternalProvider(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 300})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	_, err := client.GetMoneyMovementStatus(context.Background(), "mm-1")
	require.Error(t, err)
	appErr, ok := err.(*domainerrors.AppError)
	require.True(t, ok)
	assert.Equal(t, domainerrors.CodeExternalProvider, appErr.Code)
}

func TestFormatExternalID_UsesMerchantLocalTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		t.Skipf("skip: tzdata unavailable in this environment: %v", err)
	}

	at := time.Date(2025, 3, 1, 4, 30, 0, 0, time.UTC)
	got := FormatExternalID("prod-1", "epayco", "order-9", at)
	assert.Equal(t, "prod-1-epayco-order-9-"+at.In(loc).Format("2006-01-02-1504"), got)
}
