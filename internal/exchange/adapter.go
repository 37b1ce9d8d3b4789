// Package exchange holds the venue adapters. Every venue, whether
// key/secret-signed REST or session-token based, satisfies one Adapter
// interface with a single required order-placement method; the registry
// resolves alias-tolerant identifiers to adapter factories and fails fast
// on unknown venues.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
)

// Adapter is the uniform capability set of an exchange integration.
type Adapter interface {
	Name() string
	// TestConnectivity verifies the credentials against the venue.
	TestConnectivity(ctx context.Context) error
	// PlaceOrder maps the canonical intent to venue-native fields and
	// submits it. Transport failures come back as UPSTREAM errors so the
	// worker's retry policy applies; everything else is a caller error.
	PlaceOrder(ctx context.Context, intent model.OrderIntent) (*model.PlacementResult, error)
	// ExportCredentialState returns freshly minted tokens that should be
	// persisted back to the credential store, or nil when nothing changed.
	ExportCredentialState() *model.Credentials
}

// Factory builds an adapter bound to one account's decrypted credentials.
type Factory func(creds model.Credentials, acct model.ExchangeAccount) (Adapter, error)

type Registry struct {
	cfg       config.ExchangesConfig
	factories map[string]Factory
	aliases   map[string]string
	client    *http.Client
}

func NewRegistry(cfg config.ExchangesConfig) *Registry {
	// Shared HTTP client; per-call deadlines come from the caller's context.
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.Timeout(),
	}
	r := &Registry{
		cfg:       cfg,
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
		client:    client,
	}

	r.register("binance", func(creds model.Credentials, acct model.ExchangeAccount) (Adapter, error) {
		return newBinanceAdapter(cfg, client, creds)
	}, "binancespot", "binanceusdm", "binancefutures")

	r.register("bitget", func(creds model.Credentials, acct model.ExchangeAccount) (Adapter, error) {
		return newBitgetAdapter(cfg, client, creds)
	})

	r.register("kite", func(creds model.Credentials, acct model.ExchangeAccount) (Adapter, error) {
		return newKiteAdapter(cfg, client, creds, acct.ID)
	}, "zerodha", "kiteconnect")

	return r
}

func (r *Registry) register(name string, f Factory, aliases ...string) {
	r.factories[name] = f
	r.aliases[name] = name
	for _, alias := range aliases {
		r.aliases[alias] = name
	}
}

// Supported lists the canonical venue names.
func (r *Registry) Supported() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns an adapter for the identifier, or a CONFIG error naming
// the supported venues when the identifier is unknown.
func (r *Registry) Resolve(identifier string, creds model.Credentials, acct model.ExchangeAccount) (Adapter, error) {
	canonical, ok := r.aliases[NormalizeVenue(identifier)]
	if !ok {
		return nil, apperrors.NewConfig(fmt.Sprintf(
			"unknown exchange %q, supported: %s", identifier, strings.Join(r.Supported(), ", ")))
	}
	return r.factories[canonical](creds, acct)
}

// NormalizeVenue lowercases and strips separators so "Binance-USDM" and
// "binance_usdm" resolve identically.
func NormalizeVenue(identifier string) string {
	s := strings.ToLower(strings.TrimSpace(identifier))
	return strings.NewReplacer("-", "", "_", "", " ", "", ".", "").Replace(s)
}
