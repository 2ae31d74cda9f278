// Package gateway implements the outbound payment-gateway client (C7): the
// half of each provider integration that calls OUT to the gateway, as
// opposed to internal/infrastructure/providers which only parses INBOUND
// webhooks. One Client is constructed per configured provider.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/pkg/logger"
)

// Config holds one gateway's outbound connection settings, mirroring
// config.ProviderConfig.
type Config struct {
	Provider   string
	BaseURL    string
	AuthUserID string
	AuthSecret string
}

// Account is a payee/payer account resource as reported by the gateway.
// Only the fields CreateCheckout needs are decoded.
type Account struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

// CheckoutRequest describes a checkout to create against the gateway.
type CheckoutRequest struct {
	ExternalRef        string
	AmountCents        int64
	Currency           string
	CheckoutHeader     string
	CheckoutItem       string
	DescriptionToPayee string
	PayeeAccountID     string
}

// CheckoutResponse is the gateway's response to a checkout creation call.
type CheckoutResponse struct {
	CheckoutID string `json:"checkout_id"`
	Status     string `json:"status"`
	URL        string `json:"url"`
}

// CheckoutStatus is the polled status of a previously created checkout.
// ExternalID/AmountCents/Currency echo what the gateway believes the
// checkout was created for — reconciliation compares these against the
// local Transaction before applying anything.
type CheckoutStatus struct {
	CheckoutID  string `json:"checkout_id"`
	Status      string `json:"status"`
	ExternalID  string `json:"external_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// MoneyMovementStatus is the polled status of a settlement/payout record.
type MoneyMovementStatus struct {
	MovementID string `json:"movement_id"`
	Status     string `json:"status"`
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

type cachedCheckoutStatus struct {
	status    CheckoutStatus
	fetchedAt time.Time
}

const (
	tokenRefreshMargin = 30 * time.Second
	statusCacheTTL     = 60 * time.Second

	maxHeaderLen = 30
	maxItemLen   = 40
	maxDescLen   = 40
)

var sanitizeFieldRe = regexp.MustCompile(`[^\w\s.\-]`)

// Client is one provider's outbound gateway client. Token, status, and
// account caches are RWMutex-guarded maps with a check-lock-double-check
// refresh path.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *RateLimiter

	mu            sync.RWMutex
	token         *cachedToken
	checkoutCache map[string]cachedCheckoutStatus
	accounts      map[string]*Account
}

// NewClient builds a Client for one configured provider.
func NewClient(cfg Config, limiter *RateLimiter) *Client {
	return &Client{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		limiter:       limiter,
		checkoutCache: make(map[string]cachedCheckoutStatus),
		accounts:      make(map[string]*Account),
	}
}

// AuthToken returns a cached bearer token, refreshing it when absent or
// within tokenRefreshMargin of expiry.
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok != nil && time.Now().Add(tokenRefreshMargin).Before(tok.expiresAt) {
		return tok.value, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check: another goroutine may have refreshed while we waited.
	if c.token != nil && time.Now().Add(tokenRefreshMargin).Before(c.token.expiresAt) {
		return c.token.value, nil
	}

	fresh, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = fresh
	return fresh.value, nil
}

func (c *Client) fetchToken(ctx context.Context) (*cachedToken, error) {
	body, _ := json.Marshal(map[string]string{
		"user_id": c.cfg.AuthUserID,
		"secret":  c.cfg.AuthSecret,
	})

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth", body, false, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, domainerrors.ExternalProvider(c.cfg.Provider+": auth response missing access_token", nil)
	}
	if out.ExpiresIn <= 0 {
		out.ExpiresIn = 300
	}
	return &cachedToken{value: out.AccessToken, expiresAt: time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)}, nil
}

// CreateCheckout creates a checkout against the gateway, rate limited per
// payee account so one busy payee can't exhaust the provider-wide budget.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	if err := c.limiter.Allow(ctx, c.cfg.Provider+":checkout:"+req.PayeeAccountID); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"external_ref":         req.ExternalRef,
		"amount_cents":         req.AmountCents,
		"currency":             req.Currency,
		"checkout_header":      sanitizeField(req.CheckoutHeader, maxHeaderLen),
		"checkout_item":        sanitizeField(req.CheckoutItem, maxItemLen),
		"description_to_payee": sanitizeField(req.DescriptionToPayee, maxDescLen),
		"payee_account_id":     req.PayeeAccountID,
	}
	body, _ := json.Marshal(payload)

	var out CheckoutResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/checkouts", body, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCheckoutStatus returns a checkout's status, serving from an in-process
// cache for statusCacheTTL unless bypassCache is set. Reconciliation always
// bypasses the cache, both for on-demand verification and for the sweep job.
func (c *Client) GetCheckoutStatus(ctx context.Context, checkoutID string, bypassCache bool) (*CheckoutStatus, error) {
	if !bypassCache {
		c.mu.RLock()
		cached, ok := c.checkoutCache[checkoutID]
		c.mu.RUnlock()
		if ok && time.Since(cached.fetchedAt) < statusCacheTTL {
			status := cached.status
			return &status, nil
		}
	}

	var out CheckoutStatus
	if err := c.doJSON(ctx, http.MethodGet, "/v1/checkouts/"+checkoutID, nil, true, &out); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.checkoutCache[checkoutID] = cachedCheckoutStatus{status: out, fetchedAt: time.Now()}
	c.mu.Unlock()

	return &out, nil
}

// GetMoneyMovementStatus returns a settlement/payout record's status.
// Unlike checkout status this is never cached: every call is a round trip
// to the gateway.
func (c *Client) GetMoneyMovementStatus(ctx context.Context, movementID string) (*MoneyMovementStatus, error) {
	var out MoneyMovementStatus
	if err := c.doJSON(ctx, http.MethodGet, "/v1/money_movements/"+movementID, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrCreateAccount resolves a payee account by alias, creating it on the
// gateway if absent, and caches the result for the process lifetime.
func (c *Client) GetOrCreateAccount(ctx context.Context, alias string) (*Account, error) {
	c.mu.RLock()
	acc, ok := c.accounts[alias]
	c.mu.RUnlock()
	if ok {
		return acc, nil
	}

	// c.mu is not held across the gateway calls: doJSON's AuthToken takes
	// c.mu itself.
	var existing Account
	err := c.doJSON(ctx, http.MethodGet, "/v1/accounts?alias="+alias, nil, true, &existing)
	switch {
	case err == nil && existing.ID != "":
		c.mu.Lock()
		c.accounts[alias] = &existing
		c.mu.Unlock()
		return &existing, nil
	case err == nil:
		// Lookup succeeded but returned no account: fall through to create.
	default:
		var appErr *domainerrors.AppError
		if !isNotFound(err, &appErr) {
			return nil, err
		}
	}

	body, _ := json.Marshal(map[string]string{"alias": alias})
	var created Account
	if err := c.doJSON(ctx, http.MethodPost, "/v1/accounts", body, true, &created); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.accounts[alias] = &created
	c.mu.Unlock()
	return &created, nil
}

func isNotFound(err error, target **domainerrors.AppError) bool {
	appErr, ok := err.(*domainerrors.AppError)
	if !ok {
		return false
	}
	*target = appErr
	return appErr.Status == http.StatusNotFound
}

// doJSON performs one gateway HTTP call, attaching the bearer token when
// authenticated is true, and decodes a JSON response into out (when out is
// non-nil). Non-2xx responses surface as domainerrors.ExternalProvider,
// except a 404 which is passed through as-is so callers like
// GetOrCreateAccount can branch on it.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, authenticated bool, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return domainerrors.ExternalProvider(c.cfg.Provider+": building request failed", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if authenticated {
		token, err := c.AuthToken(ctx)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn(ctx, c.cfg.Provider+": gateway call failed", zap.String("path", path), zap.Error(err))
		return domainerrors.ExternalProvider(c.cfg.Provider+": request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return domainerrors.NewAppError(http.StatusNotFound, domainerrors.CodeNotFound, c.cfg.Provider+": not found", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domainerrors.ExternalProvider(
			fmt.Sprintf("%s: unexpected status %d", c.cfg.Provider, resp.StatusCode), nil)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domainerrors.ExternalProvider(c.cfg.Provider+": malformed response body", err)
	}
	return nil
}

func sanitizeField(s string, maxLen int) string {
	clean := sanitizeFieldRe.ReplaceAllString(s, "")
	if len(clean) > maxLen {
		clean = clean[:maxLen]
	}
	return clean
}

// externalIDLocation is the merchant's local timezone, which the gateway's
// back office uses to eyeball external ids against settlement reports.
var externalIDLocation = func() *time.Location {
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// FormatExternalID builds the standardized checkout external id
// <productRef>-<provider>-<orderId>-<YYYY-MM-DD-HHMM>, timestamped in the
// merchant's local timezone.
func FormatExternalID(productRef, provider, orderID string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%s", productRef, provider, orderID, at.In(externalIDLocation).Format("2006-01-02-1504"))
}
