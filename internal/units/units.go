package units

import (
	"github.com/shopspring/decimal"
)

// Chain amounts are unsigned integers scaled by a per-market decimal count.
// Conversion always truncates so a user never buys or pays more than asked.

func ToRawPrice(price decimal.Decimal, pxDecimals int) uint64 {
	return toRaw(price, pxDecimals)
}

func ToRawSize(size decimal.Decimal, szDecimals int) uint64 {
	return toRaw(size, szDecimals)
}

func toRaw(value decimal.Decimal, decimals int) uint64 {
	if value.Sign() <= 0 {
		return 0
	}
	scaled := value.Shift(int32(decimals)).Floor()
	if !scaled.IsInteger() || scaled.Sign() < 0 {
		return 0
	}
	return uint64(scaled.IntPart())
}

func FromRaw(raw uint64, decimals int) decimal.Decimal {
	return decimal.NewFromUint64(raw).Shift(-int32(decimals))
}

// RoundToTick snaps a price to the nearest multiple of the market tick size,
// with ties rounding away from zero. The result is in decimal units.
func RoundToTick(price decimal.Decimal, tickSize uint64, pxDecimals int) decimal.Decimal {
	if tickSize == 0 {
		return price
	}
	raw := price.Shift(int32(pxDecimals))
	tick := decimal.NewFromUint64(tickSize)
	ticks := raw.DivRound(tick, 0)
	return ticks.Mul(tick).Shift(-int32(pxDecimals))
}
