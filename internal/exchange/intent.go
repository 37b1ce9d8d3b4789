package exchange

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
)

type orderKind int

const (
	orderTypeMarket orderKind = iota
	orderTypeLimit
	orderTypeStop
	orderTypeStopLimit
)

// inferOrderType classifies the intent. An explicit type in the payload
// always wins; only when the type is absent or unrecognised does the
// presence of a price decide between market and limit. A limit or stop is
// never quietly degraded to a market order.
func inferOrderType(intent model.OrderIntent) orderKind {
	t := strings.ToLower(strings.TrimSpace(intent.Type))
	t = strings.NewReplacer("-", "_", " ", "_").Replace(t)

	switch {
	case t == "stop_limit" || t == "stoplimit" || t == "sl":
		if intent.HasPrice {
			return orderTypeStopLimit
		}
		return orderTypeStop
	case strings.Contains(t, "stop") || t == "slm" || t == "sl_m":
		return orderTypeStop
	case t == "market":
		return orderTypeMarket
	case t == "limit":
		return orderTypeLimit
	}

	if intent.HasPrice {
		return orderTypeLimit
	}
	return orderTypeMarket
}

// resolveIntegerQty floors a fractional amount to a whole-lot quantity of
// at least 1, used by venues that trade integer lots. A non-positive amount
// is a caller error.
func resolveIntegerQty(intent model.OrderIntent) (int64, error) {
	if !intent.HasAmount || !intent.Amount.IsPositive() {
		return 0, apperrors.NewInvalidRequest("quantity must be positive")
	}
	qty := intent.Amount.Floor()
	if qty.LessThan(decimal.NewFromInt(1)) {
		return 1, nil
	}
	return qty.IntPart(), nil
}

// splitInstrument resolves "NSE:INFY" style symbols: an explicit prefix
// wins over the configured default segment.
func splitInstrument(symbol, defaultSegment string) (segment, tradingSymbol string) {
	if seg, rest, found := strings.Cut(symbol, ":"); found && seg != "" && rest != "" {
		return strings.ToUpper(seg), strings.ToUpper(rest)
	}
	return strings.ToUpper(defaultSegment), strings.ToUpper(symbol)
}
