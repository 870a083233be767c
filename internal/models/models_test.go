package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlacklistActiveAt(t *testing.T) {
	expires := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	b := BlacklistEntry{ExpiresAt: expires}

	assert.True(t, b.ActiveAt(expires.Add(-time.Hour)))
	assert.True(t, b.ActiveAt(expires))
	assert.False(t, b.ActiveAt(expires.Add(time.Nanosecond)))
}

func TestPositionToken(t *testing.T) {
	assert.Equal(t, "BTC", (&Position{Symbol: "BTCUSDT"}).Token())
	assert.Equal(t, "ETH", (&Position{Symbol: "ETHUSDC"}).Token())
	assert.Equal(t, "USDT", (&Position{Symbol: "USDT"}).Token())
}

func TestPositionCooldown(t *testing.T) {
	now := time.Now()
	p := Position{}
	assert.False(t, p.InCooldown(now, time.Minute))

	last := now.Add(-30 * time.Second)
	p.LastBufferActionAt = &last
	assert.True(t, p.InCooldown(now, time.Minute))
	assert.False(t, p.InCooldown(now.Add(31*time.Second), time.Minute))
}

func TestHoursSinceLastTrade(t *testing.T) {
	now := time.Now()
	tr := Trader{}
	assert.True(t, math.IsInf(tr.HoursSinceLastTrade(now), 1))

	last := now.Add(-48 * time.Hour)
	tr.LastTradeAt = &last
	assert.InDelta(t, 48, tr.HoursSinceLastTrade(now), 1e-6)
}

func TestPositionNotional(t *testing.T) {
	p := Position{Quantity: 2, EntryPrice: 100}
	assert.Equal(t, 200.0, p.Notional())
	p.MarkPrice = 110
	assert.Equal(t, 220.0, p.Notional())
}

func TestCycleIDAt(t *testing.T) {
	at := time.Date(2025, 3, 1, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, "20250301T12", CycleIDAt(at, 6*time.Hour))
	assert.Equal(t, "20250301T12", CycleIDAt(at.Add(-time.Hour), 6*time.Hour))
	assert.Equal(t, "20250301T13", CycleIDAt(at, time.Hour))
	assert.Equal(t, "20250301T12", CycleIDAt(at, 0))
}
