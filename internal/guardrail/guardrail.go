// Package guardrail holds the pure pre-placement risk checks. None of them
// perform I/O: every piece of context arrives as an argument, which keeps
// the checks deterministic and directly unit-testable. Callers persist a
// guardrail_violation event when a check fails, then propagate the error.
package guardrail

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/signalgate/signalgate/internal/pkg/metrics"
)

// RoundPriceQty snaps price and qty to the venue's tick and step size using
// nearest-multiple rounding. Applying it twice equals applying it once.
func RoundPriceQty(meta model.VenueMeta, price, qty decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return roundToMultiple(price, meta.TickSize), roundToMultiple(qty, meta.StepSize)
}

func roundToMultiple(value, multiple decimal.Decimal) decimal.Decimal {
	if multiple.IsZero() || multiple.IsNegative() {
		return value
	}
	return value.Div(multiple).Round(0).Mul(multiple)
}

// CheckVenueFilters enforces the notional floor and quantity ceiling.
// Notional exactly at the minimum passes; strictly below fails.
func CheckVenueFilters(meta model.VenueMeta, minNotional, price, qty decimal.Decimal) error {
	notional := price.Mul(qty)
	if minNotional.IsPositive() && notional.LessThan(minNotional) {
		metrics.GuardrailRejects.WithLabelValues(apperrors.CodeMinNotional).Inc()
		return apperrors.NewGuardrail(apperrors.CodeMinNotional,
			fmt.Sprintf("notional %s below minimum %s", notional.String(), minNotional.String()))
	}
	if meta.MaxQty.IsPositive() && qty.GreaterThan(meta.MaxQty) {
		metrics.GuardrailRejects.WithLabelValues(apperrors.CodeMaxQty).Inc()
		return apperrors.NewGuardrail(apperrors.CodeMaxQty,
			fmt.Sprintf("quantity %s exceeds ceiling %s", qty.String(), meta.MaxQty.String()))
	}
	return nil
}

// CheckDailyLossCap is a binary circuit breaker: once a loss_cap event has
// been recorded for the instance in the current UTC day, every further
// placement is refused. The caller supplies the lookup result.
func CheckDailyLossCap(trippedToday bool) error {
	if trippedToday {
		metrics.GuardrailRejects.WithLabelValues(apperrors.CodeLossCap).Inc()
		return apperrors.NewGuardrail(apperrors.CodeLossCap,
			"daily loss cap reached, trading halted until next UTC day")
	}
	return nil
}

// EnsureInstanceScope asserts the instance belongs to the caller's
// workspace. A mismatch is a hard failure, never silently corrected.
func EnsureInstanceScope(instance *model.BotInstance, workspaceID string) error {
	if instance == nil {
		return apperrors.NewNotFound("bot instance not found")
	}
	if instance.WorkspaceID != workspaceID {
		return apperrors.NewScopeViolation(
			fmt.Sprintf("instance %s does not belong to workspace %s", instance.ID, workspaceID))
	}
	return nil
}

// StartOfUTCDay returns the loss-cap window boundary for now.
func StartOfUTCDay(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
