package guardrail

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundPriceQtyNearestMultiple(t *testing.T) {
	meta := model.VenueMeta{TickSize: dec("0.5"), StepSize: dec("0.001")}

	price, qty := RoundPriceQty(meta, dec("50000.3"), dec("0.0014"))
	assert.True(t, price.Equal(dec("50000.5")), price.String())
	assert.True(t, qty.Equal(dec("0.001")), qty.String())

	price, qty = RoundPriceQty(meta, dec("50000.2"), dec("0.0016"))
	assert.True(t, price.Equal(dec("50000")), price.String())
	assert.True(t, qty.Equal(dec("0.002")), qty.String())
}

func TestRoundPriceQtyIdempotent(t *testing.T) {
	meta := model.VenueMeta{TickSize: dec("0.05"), StepSize: dec("0.01")}
	p1, q1 := RoundPriceQty(meta, dec("123.4567"), dec("9.8765"))
	p2, q2 := RoundPriceQty(meta, p1, q1)
	assert.True(t, p1.Equal(p2))
	assert.True(t, q1.Equal(q2))
}

func TestRoundPriceQtyZeroMetaIsNoop(t *testing.T) {
	p, q := RoundPriceQty(model.VenueMeta{}, dec("1.23"), dec("4.56"))
	assert.True(t, p.Equal(dec("1.23")))
	assert.True(t, q.Equal(dec("4.56")))
}

func TestCheckVenueFiltersMinNotional(t *testing.T) {
	meta := model.VenueMeta{}

	// Strictly below fails with the machine code.
	err := CheckVenueFilters(meta, dec("100"), dec("50000"), dec("0.0001"))
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeMinNotional, appErr.Machine)
	assert.Equal(t, 400, appErr.HTTPStatus)

	// Exactly at the minimum passes.
	assert.NoError(t, CheckVenueFilters(meta, dec("100"), dec("50000"), dec("0.002")))

	// Above passes.
	assert.NoError(t, CheckVenueFilters(meta, dec("100"), dec("50000"), dec("0.01")))
}

func TestCheckVenueFiltersMaxQty(t *testing.T) {
	meta := model.VenueMeta{MaxQty: dec("10")}
	err := CheckVenueFilters(meta, decimal.Zero, dec("1"), dec("10.5"))
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeMaxQty, appErr.Machine)

	assert.NoError(t, CheckVenueFilters(meta, decimal.Zero, dec("1"), dec("10")))
}

func TestCheckDailyLossCap(t *testing.T) {
	assert.NoError(t, CheckDailyLossCap(false))

	err := CheckDailyLossCap(true)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeLossCap, appErr.Machine)
	assert.Equal(t, 403, appErr.HTTPStatus)
}

func TestEnsureInstanceScope(t *testing.T) {
	instance := &model.BotInstance{ID: "bot-1", WorkspaceID: "A"}

	assert.NoError(t, EnsureInstanceScope(instance, "A"))

	err := EnsureInstanceScope(instance, "B")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrScopeViolation, appErr.Type)
	assert.Equal(t, 403, appErr.HTTPStatus)

	err = EnsureInstanceScope(nil, "A")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrNotFound, appErr.Type)
}

func TestStartOfUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	now := time.Date(2026, 3, 1, 3, 15, 0, 0, loc) // 2026-02-28 18:15 UTC
	start := StartOfUTCDay(now)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), start)
}
