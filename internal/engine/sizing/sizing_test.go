package sizing

import (
	"testing"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/pkg/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSizer() *Sizer {
	return NewSizer(config.DefaultStrategyConf().Sizing)
}

func cleanAccount(value float64) AccountState {
	return AccountState{AccountValue: value, TokenExposureUSD: map[string]float64{}}
}

func TestSizeHighLeverageTrader(t *testing.T) {
	res := newSizer().Size(Request{
		Token:          "BTC",
		Side:           "long",
		BaseSizeUSD:    10000,
		TraderLeverage: 20,
	}, cleanAccount(200000))

	require.False(t, res.Rejected, res.RejectReason)
	assert.Equal(t, 2000.0, res.FinalSizeUSD)
	assert.Equal(t, 5.0, res.EffectiveLeverage)
	assert.Equal(t, 20.0, res.TraderLeverage)
	assert.Equal(t, 0.20, res.LeveragePenalty)
	assert.Equal(t, exchange.MarginTypeIsolated, res.MarginType)
	assert.Equal(t, 400.0, res.MarginUSD)
	assert.Equal(t, AssetClassMajor, res.AssetClass)
	assert.Equal(t, exchange.OrderTypeMarket, res.OrderType)
	assert.Equal(t, 5.0, res.SlippageBps)
	require.Len(t, res.Breakdown, 9)
	for i, step := range res.Breakdown {
		assert.Equal(t, i+1, step.Index)
	}
}

func TestResolveLeverage(t *testing.T) {
	s := newSizer()

	lev, src := s.ResolveLeverage(Request{TraderLeverage: 3, TraderNotionalUSD: 1000, TraderMarginUSD: 100})
	assert.Equal(t, 3.0, lev)
	assert.Equal(t, LeverageSourceExplicit, src)

	lev, src = s.ResolveLeverage(Request{TraderNotionalUSD: 1000, TraderMarginUSD: 250})
	assert.Equal(t, 4.0, lev)
	assert.Equal(t, LeverageSourceInferred, src)

	lev, src = s.ResolveLeverage(Request{})
	assert.Equal(t, 10.0, lev)
	assert.Equal(t, LeverageSourceDefault, src)
}

func TestPenaltyIsMonotonic(t *testing.T) {
	s := newSizer()
	assert.Equal(t, 1.0, s.Penalty(1))
	assert.Equal(t, 0.9, s.Penalty(1.5))
	assert.Equal(t, 0.65, s.Penalty(5))
	assert.Equal(t, 0.45, s.Penalty(10))
	assert.Equal(t, 0.20, s.Penalty(20))
	assert.Equal(t, 0.10, s.Penalty(50))

	prev := 1.0
	for lev := 1.0; lev <= 60; lev += 0.5 {
		p := s.Penalty(lev)
		assert.LessOrEqual(t, p, prev, "leverage %.1f", lev)
		prev = p
	}
}

func TestLowLeverageHitsPositionCap(t *testing.T) {
	res := newSizer().Size(Request{
		Token:          "ETH",
		Side:           "short",
		BaseSizeUSD:    100000,
		TraderLeverage: 1,
	}, cleanAccount(1000000))

	require.False(t, res.Rejected)
	assert.Equal(t, 50000.0, res.FinalSizeUSD)
	assert.Equal(t, 1.0, res.EffectiveLeverage)
	assert.Equal(t, "capped", res.Breakdown[3].Note)
}

func TestRejectsWithoutTotalHeadroom(t *testing.T) {
	acct := cleanAccount(10000)
	acct.TotalExposureUSD = 5000

	res := newSizer().Size(Request{Token: "SOL", Side: "long", BaseSizeUSD: 500, TraderLeverage: 2}, acct)
	assert.True(t, res.Rejected)
	assert.Equal(t, 5, res.RejectStep)
	assert.Zero(t, res.FinalSizeUSD)
	assert.Len(t, res.Breakdown, 5)
}

func TestTokenAndSideHeadroom(t *testing.T) {
	s := newSizer()

	acct := cleanAccount(10000)
	acct.TokenExposureUSD["SOL"] = 1900
	res := s.Size(Request{Token: "sol", Side: "long", BaseSizeUSD: 1000, TraderLeverage: 1}, acct)
	require.False(t, res.Rejected)
	assert.Equal(t, 100.0, res.FinalSizeUSD)
	assert.Equal(t, AssetClassLargeCap, res.AssetClass)
	assert.Equal(t, exchange.OrderTypeLimit, res.OrderType)

	acct.TokenExposureUSD["SOL"] = 2000
	res = s.Size(Request{Token: "SOL", Side: "long", BaseSizeUSD: 1000, TraderLeverage: 1}, acct)
	assert.True(t, res.Rejected)
	assert.Equal(t, 6, res.RejectStep)

	acct = cleanAccount(10000)
	acct.ShortExposureUSD = 3500
	res = s.Size(Request{Token: "PEPE", Side: "short", BaseSizeUSD: 500, TraderLeverage: 1}, acct)
	assert.True(t, res.Rejected)
	assert.Equal(t, 7, res.RejectStep)

	res = s.Size(Request{Token: "PEPE", Side: "long", BaseSizeUSD: 500, TraderLeverage: 1}, acct)
	require.False(t, res.Rejected)
	assert.Equal(t, AssetClassAlt, res.AssetClass)
	assert.Equal(t, 30.0, res.SlippageBps)
}

func TestDustRejected(t *testing.T) {
	res := newSizer().Size(Request{Token: "BTC", Side: "long", BaseSizeUSD: 40, TraderLeverage: 25}, cleanAccount(10000))
	assert.True(t, res.Rejected)
	assert.Equal(t, 8, res.RejectStep)
	assert.Zero(t, res.FinalSizeUSD)
}

func TestInvalidRequest(t *testing.T) {
	s := newSizer()
	assert.True(t, s.Size(Request{Token: "BTC", Side: "long"}, cleanAccount(1000)).Rejected)
	assert.True(t, s.Size(Request{Token: "BTC", Side: "up", BaseSizeUSD: 100}, cleanAccount(1000)).Rejected)
	assert.True(t, s.Size(Request{Token: "BTC", Side: "long", BaseSizeUSD: 100}, cleanAccount(0)).Rejected)
}

func TestLiquidationBuffer(t *testing.T) {
	conf := config.DefaultStrategyConf().Liquidation

	check := LiquidationBuffer(conf, BufferInput{Side: "long", MarkPrice: 100, LiquidationPrice: 95})
	assert.Equal(t, BufferActionEmergency, check.Action)
	assert.InDelta(t, 5.0, check.BufferPct, 1e-9)
	assert.Equal(t, 1.0, check.ReduceFraction)
	assert.Equal(t, exchange.OrderTypeMarket, check.OrderType)

	check = LiquidationBuffer(conf, BufferInput{Side: "long", MarkPrice: 100, LiquidationPrice: 90})
	assert.Equal(t, BufferActionReduce, check.Action)
	assert.Equal(t, 0.5, check.ReduceFraction)
	assert.Equal(t, exchange.OrderTypeMarket, check.OrderType)

	check = LiquidationBuffer(conf, BufferInput{Side: "long", MarkPrice: 100, LiquidationPrice: 50})
	assert.Equal(t, BufferActionNone, check.Action)
	assert.Empty(t, check.OrderType)

	check = LiquidationBuffer(conf, BufferInput{Side: "short", MarkPrice: 100, LiquidationPrice: 108})
	assert.Equal(t, BufferActionEmergency, check.Action)

	check = LiquidationBuffer(conf, BufferInput{Side: "short", MarkPrice: 100, LiquidationPrice: 0})
	assert.Equal(t, BufferActionNone, check.Action)
}
