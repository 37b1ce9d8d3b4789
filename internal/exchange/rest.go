package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"golang.org/x/time/rate"
)

// binanceAdapter is a key/secret-signed REST adapter. Request signing is
// HMAC-SHA256 over the query string, hex encoded.
type binanceAdapter struct {
	baseURL string
	key     string
	secret  string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func newBinanceAdapter(cfg config.ExchangesConfig, client *http.Client, creds model.Credentials) (*binanceAdapter, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, apperrors.NewConfig("binance: missing api key or secret")
	}
	return &binanceAdapter{
		baseURL: strings.TrimSuffix(cfg.BinanceBaseURL, "/"),
		key:     creds.APIKey,
		secret:  creds.APISecret,
		client:  client,
		// Stay well under the venue's request weight budget.
		limiter: rate.NewLimiter(rate.Limit(8), 8),
		now:     time.Now,
	}, nil
}

func (a *binanceAdapter) Name() string { return "binance" }

func (a *binanceAdapter) ExportCredentialState() *model.Credentials { return nil }

func (a *binanceAdapter) TestConnectivity(ctx context.Context) error {
	params := url.Values{}
	_, err := a.signedRequest(ctx, http.MethodGet, "/api/v3/account", params)
	return err
}

func (a *binanceAdapter) PlaceOrder(ctx context.Context, intent model.OrderIntent) (*model.PlacementResult, error) {
	if intent.Symbol == "" {
		return nil, apperrors.NewInvalidRequest("binance: symbol is required")
	}
	if intent.Side == "" {
		return nil, apperrors.NewInvalidRequest("binance: side is required")
	}
	if !intent.HasAmount || !intent.Amount.IsPositive() {
		return nil, apperrors.NewInvalidRequest("binance: quantity must be positive")
	}

	orderType := inferOrderType(intent)
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(intent.Symbol))
	params.Set("side", strings.ToUpper(intent.Side))
	params.Set("quantity", intent.Amount.String())
	switch orderType {
	case orderTypeMarket:
		params.Set("type", "MARKET")
	case orderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", intent.Price.String())
	case orderTypeStop:
		params.Set("type", "STOP_LOSS")
		params.Set("stopPrice", intent.Price.String())
	case orderTypeStopLimit:
		params.Set("type", "STOP_LOSS_LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", intent.Price.String())
		params.Set("stopPrice", intent.Price.String())
	}
	if intent.ClientOrderID != "" {
		params.Set("newClientOrderId", intent.ClientOrderID)
	}

	body, err := a.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewUpstream("binance: unreadable order response", err)
	}
	return &model.PlacementResult{
		VenueOrderID: strconv.FormatInt(resp.OrderID, 10),
		Symbol:       strings.ToUpper(intent.Symbol),
		Side:         strings.ToUpper(intent.Side),
		Type:         params.Get("type"),
		Price:        intent.Price,
		Qty:          intent.Amount,
	}, nil
}

func (a *binanceAdapter) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewUpstream("binance: rate limiter wait", err)
	}
	params.Set("timestamp", strconv.FormatInt(a.now().UnixMilli(), 10))
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", a.key)

	return doVenueRequest(a.client, req, "binance")
}

// bitgetAdapter signs `timestamp + method + path + body` with HMAC-SHA256,
// base64 encoded.
type bitgetAdapter struct {
	baseURL    string
	key        string
	secret     string
	passphrase string
	client     *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func newBitgetAdapter(cfg config.ExchangesConfig, client *http.Client, creds model.Credentials) (*bitgetAdapter, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, apperrors.NewConfig("bitget: missing api key or secret")
	}
	return &bitgetAdapter{
		baseURL:    strings.TrimSuffix(cfg.BitgetBaseURL, "/"),
		key:        creds.APIKey,
		secret:     creds.APISecret,
		passphrase: creds.Passphrase,
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(8), 8),
		now:        time.Now,
	}, nil
}

func (a *bitgetAdapter) Name() string { return "bitget" }

func (a *bitgetAdapter) ExportCredentialState() *model.Credentials { return nil }

func (a *bitgetAdapter) TestConnectivity(ctx context.Context) error {
	_, err := a.request(ctx, http.MethodGet, "/api/v2/spot/account/info", nil)
	return err
}

func (a *bitgetAdapter) PlaceOrder(ctx context.Context, intent model.OrderIntent) (*model.PlacementResult, error) {
	if intent.Symbol == "" || intent.Side == "" {
		return nil, apperrors.NewInvalidRequest("bitget: symbol and side are required")
	}
	if !intent.HasAmount || !intent.Amount.IsPositive() {
		return nil, apperrors.NewInvalidRequest("bitget: size must be positive")
	}

	orderType := "market"
	force := "gtc"
	if inferOrderType(intent) != orderTypeMarket {
		orderType = "limit"
	}
	payload := map[string]string{
		"symbol":    strings.ToUpper(intent.Symbol),
		"side":      strings.ToLower(intent.Side),
		"orderType": orderType,
		"force":     force,
		"size":      intent.Amount.String(),
	}
	if orderType == "limit" {
		payload["price"] = intent.Price.String()
	}
	if intent.ClientOrderID != "" {
		payload["clientOid"] = intent.ClientOrderID
	}

	body, err := a.request(ctx, http.MethodPost, "/api/v2/spot/trade/place-order", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewUpstream("bitget: unreadable order response", err)
	}
	return &model.PlacementResult{
		VenueOrderID: resp.Data.OrderID,
		Symbol:       strings.ToUpper(intent.Symbol),
		Side:         strings.ToUpper(intent.Side),
		Type:         strings.ToUpper(orderType),
		Price:        intent.Price,
		Qty:          intent.Amount,
	}, nil
}

func (a *bitgetAdapter) request(ctx context.Context, method, path string, payload map[string]string) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewUpstream("bitget: rate limiter wait", err)
	}

	var bodyBytes []byte
	if payload != nil {
		bodyBytes, _ = json.Marshal(payload)
	}
	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(timestamp + method + path + string(bodyBytes)))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("ACCESS-KEY", a.key)
	req.Header.Set("ACCESS-SIGN", signature)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", a.passphrase)
	req.Header.Set("Content-Type", "application/json")

	return doVenueRequest(a.client, req, "bitget")
}

// doVenueRequest executes a venue call and classifies the failure mode:
// network and 5xx problems are retryable upstream errors, 4xx responses are
// final rejections.
func doVenueRequest(client *http.Client, req *http.Request, venue string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.NewUpstream(fmt.Sprintf("%s: request failed", venue), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewUpstream(fmt.Sprintf("%s: read response", venue), err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.NewAuthFailed(fmt.Sprintf("%s: %s", venue, truncate(body, 200)))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("%s rejected order: %s", venue, truncate(body, 200)))
	default:
		return nil, apperrors.NewUpstream(fmt.Sprintf("%s: http %d", venue, resp.StatusCode), nil)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
