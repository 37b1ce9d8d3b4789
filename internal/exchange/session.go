package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// kiteAdapter integrates a session-oriented brokerage: orders authenticate
// with an expiring access token obtained by exchanging a one-time request
// token, refreshable while a refresh token is held.
//
// Session states: NoSession -> Authenticating (request token) -> Active;
// Active -> Refreshing (on an auth error) -> Active; Refreshing without a
// refresh token falls back to NoSession and requires a fresh login.
//
// Session mutations are serialized per exchange account via singleflight,
// so concurrent callers hitting an expired token share one refresh instead
// of invalidating each other's in-flight tokens.
type kiteAdapter struct {
	baseURL        string
	defaultSegment string
	client         *http.Client
	accountID      string

	mu           sync.Mutex
	apiKey       string
	apiSecret    string
	accessToken  string
	refreshToken string
	requestToken string
	dirty        bool

	sf singleflight.Group
}

func newKiteAdapter(cfg config.ExchangesConfig, client *http.Client, creds model.Credentials, accountID string) (*kiteAdapter, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, apperrors.NewConfig("kite: missing api key or secret")
	}
	return &kiteAdapter{
		baseURL:        strings.TrimSuffix(cfg.KiteBaseURL, "/"),
		defaultSegment: cfg.KiteDefaultVenue,
		client:         client,
		accountID:      accountID,
		apiKey:         creds.APIKey,
		apiSecret:      creds.APISecret,
		accessToken:    creds.AccessToken,
		refreshToken:   creds.RefreshToken,
		requestToken:   creds.RequestToken,
	}, nil
}

func (a *kiteAdapter) Name() string { return "kite" }

func (a *kiteAdapter) TestConnectivity(ctx context.Context) error {
	_, err := a.callWithSession(ctx, func(ctx context.Context, token string) ([]byte, error) {
		return a.authedRequest(ctx, http.MethodGet, "/user/profile", nil, token)
	})
	return err
}

// ExportCredentialState returns the tokens minted since the last export, or
// nil when the session has not changed.
func (a *kiteAdapter) ExportCredentialState() *model.Credentials {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dirty {
		return nil
	}
	a.dirty = false
	return &model.Credentials{
		APIKey:       a.apiKey,
		APISecret:    a.apiSecret,
		AccessToken:  a.accessToken,
		RefreshToken: a.refreshToken,
		RequestToken: a.requestToken,
	}
}

func (a *kiteAdapter) PlaceOrder(ctx context.Context, intent model.OrderIntent) (*model.PlacementResult, error) {
	if intent.Symbol == "" {
		return nil, apperrors.NewInvalidRequest("kite: symbol is required")
	}
	if intent.Side == "" {
		return nil, apperrors.NewInvalidRequest("kite: side is required")
	}
	qty, err := resolveIntegerQty(intent)
	if err != nil {
		return nil, err
	}

	segment, tradingSymbol := splitInstrument(intent.Symbol, a.defaultSegment)
	if tradingSymbol == "" {
		return nil, apperrors.NewInvalidRequest("kite: unresolvable instrument")
	}

	variety := rawHint(intent, "variety", "regular")
	product := rawHint(intent, "product", "MIS")
	validity := rawHint(intent, "validity", "DAY")

	form := url.Values{}
	form.Set("exchange", segment)
	form.Set("tradingsymbol", tradingSymbol)
	form.Set("transaction_type", strings.ToUpper(intent.Side))
	form.Set("quantity", strconv.FormatInt(qty, 10))
	form.Set("product", strings.ToUpper(product))
	form.Set("validity", strings.ToUpper(validity))

	var orderType string
	switch inferOrderType(intent) {
	case orderTypeMarket:
		orderType = "MARKET"
	case orderTypeLimit:
		orderType = "LIMIT"
		form.Set("price", intent.Price.String())
	case orderTypeStop:
		orderType = "SL-M"
		form.Set("trigger_price", intent.Price.String())
	case orderTypeStopLimit:
		orderType = "SL"
		form.Set("price", intent.Price.String())
		form.Set("trigger_price", intent.Price.String())
	}
	form.Set("order_type", orderType)
	if intent.ClientOrderID != "" {
		form.Set("tag", intent.ClientOrderID)
	}

	body, err := a.callWithSession(ctx, func(ctx context.Context, token string) ([]byte, error) {
		return a.authedRequest(ctx, http.MethodPost, "/orders/"+variety, form, token)
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewUpstream("kite: unreadable order response", err)
	}
	return &model.PlacementResult{
		VenueOrderID: resp.Data.OrderID,
		Symbol:       segment + ":" + tradingSymbol,
		Side:         strings.ToUpper(intent.Side),
		Type:         orderType,
		Price:        intent.Price,
		// The integer lot that actually went to the venue, not the raw
		// fractional amount.
		Qty: decimal.NewFromInt(qty),
	}, nil
}

// callWithSession runs op with a valid access token. On a detected auth
// error it refreshes exactly once and retries op exactly once; a second
// failure propagates untouched.
func (a *kiteAdapter) callWithSession(ctx context.Context, op func(ctx context.Context, token string) ([]byte, error)) ([]byte, error) {
	token, err := a.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	body, err := op(ctx, token)
	if err == nil || !isAuthError(err) {
		return body, err
	}

	logger.Warn("kite session rejected, refreshing once", "account", a.accountID)
	a.invalidateAccessToken(token)
	token, err = a.ensureSession(ctx)
	if err != nil {
		return nil, err
	}
	return op(ctx, token)
}

// ensureSession returns a usable access token: the cached one if present,
// else one minted by refreshing, else one from exchanging the one-time
// request token. With none of those it fails with an actionable message.
func (a *kiteAdapter) ensureSession(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.accessToken != "" {
		token := a.accessToken
		a.mu.Unlock()
		return token, nil
	}
	a.mu.Unlock()

	v, err, _ := a.sf.Do(a.accountID, func() (any, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		// A concurrent caller may have minted a token while we queued.
		if a.accessToken != "" {
			return a.accessToken, nil
		}
		if a.refreshToken != "" {
			if err := a.refreshSessionLocked(ctx); err != nil {
				return nil, err
			}
			return a.accessToken, nil
		}
		if a.requestToken != "" {
			if err := a.exchangeRequestTokenLocked(ctx); err != nil {
				return nil, err
			}
			return a.accessToken, nil
		}
		return nil, apperrors.NewConfig(
			"kite: no access, refresh or request token; complete the login flow and store a fresh request token")
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidateAccessToken drops the cached token, but only if it is still the
// one that just failed; a concurrent refresh may have replaced it already.
func (a *kiteAdapter) invalidateAccessToken(failed string) {
	a.mu.Lock()
	if a.accessToken == failed {
		a.accessToken = ""
	}
	a.mu.Unlock()
}

// refreshSessionLocked trades the refresh token for a new access token.
// An auth failure here means the refresh token itself is dead: the session
// drops to NoSession and a new login is required.
func (a *kiteAdapter) refreshSessionLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("api_key", a.apiKey)
	form.Set("refresh_token", a.refreshToken)
	form.Set("checksum", kiteChecksum(a.apiKey, a.refreshToken, a.apiSecret))

	body, err := a.sessionRequest(ctx, "/session/refresh_token", form)
	if err != nil {
		if isAuthError(err) {
			a.refreshToken = ""
			a.accessToken = ""
			return apperrors.NewConfig("kite: refresh token rejected, re-login required")
		}
		return err
	}
	return a.absorbTokensLocked(body)
}

// exchangeRequestTokenLocked performs the one-time login exchange. The
// request token is consumed and nulled on success only.
func (a *kiteAdapter) exchangeRequestTokenLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("api_key", a.apiKey)
	form.Set("request_token", a.requestToken)
	form.Set("checksum", kiteChecksum(a.apiKey, a.requestToken, a.apiSecret))

	body, err := a.sessionRequest(ctx, "/session/token", form)
	if err != nil {
		return err
	}
	if err := a.absorbTokensLocked(body); err != nil {
		return err
	}
	a.requestToken = ""
	return nil
}

func (a *kiteAdapter) absorbTokensLocked(body []byte) error {
	var resp struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return apperrors.NewUpstream("kite: unreadable session response", err)
	}
	if resp.Data.AccessToken == "" {
		return apperrors.NewUpstream("kite: session response missing access token", nil)
	}
	a.accessToken = resp.Data.AccessToken
	if resp.Data.RefreshToken != "" {
		a.refreshToken = resp.Data.RefreshToken
	}
	a.dirty = true
	return nil
}

func (a *kiteAdapter) sessionRequest(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Kite-Version", "3")
	return doVenueRequest(a.client, req, "kite")
}

func (a *kiteAdapter) authedRequest(ctx context.Context, method, path string, form url.Values, token string) ([]byte, error) {
	var reqBody *strings.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	} else {
		reqBody = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+a.apiKey+":"+token)
	return doVenueRequest(a.client, req, "kite")
}

func kiteChecksum(apiKey, token, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + token + apiSecret))
	return hex.EncodeToString(sum[:])
}

func isAuthError(err error) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr) && appErr.Type == apperrors.ErrAuthFailed
}

func rawHint(intent model.OrderIntent, key, fallback string) string {
	if v, ok := intent.Raw[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
