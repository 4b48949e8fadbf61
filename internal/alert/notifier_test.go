package alert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marketpulse/marketpulse-x/pkg/types"
)

func TestLogNotifierIsDryRun(t *testing.T) {
	n := NewLogNotifier(zaptest.NewLogger(t))

	assert.Equal(t, "dry-run", n.Name())
	require.NoError(t, n.Notify(context.Background(), alertSignal("sum=0.97")))
}

func TestFormatSignal(t *testing.T) {
	text := FormatSignal(alertSignal("sum=0.97 gap=0.03"))

	assert.Contains(t, text, "[P1] Mock election 2026")
	assert.Contains(t, text, "sum=0.97 gap=0.03")
	assert.Contains(t, text, "rule=sum-lt-1-watch")
	assert.Contains(t, text, "edge=0.0300")
}

func TestFormatSignalListsTopLegs(t *testing.T) {
	sig := alertSignal("sum=0.97")
	sig.Payload.SuggestedTrade = &types.TradePlan{
		Action: "buy_basket",
		Legs: []types.TradeLeg{
			{OptionID: "opt-a", Side: types.SideBuy, Qty: 10, LimitPrice: 0.4940},
			{OptionID: "opt-b", Side: types.SideBuy, Qty: 10, LimitPrice: 0.5040},
			{OptionID: "opt-c", Side: types.SideBuy, Qty: 10, LimitPrice: 0.1010},
			{OptionID: "opt-d", Side: types.SideBuy, Qty: 10, LimitPrice: 0.2020},
		},
	}

	text := FormatSignal(sig)
	assert.Contains(t, text, "buy opt-a qty=10 limit=0.4940")
	assert.Contains(t, text, "buy opt-c qty=10 limit=0.1010")
	assert.NotContains(t, text, "opt-d", "only the top three legs are listed")
}

func TestFormatSignalFallsBackToMarketID(t *testing.T) {
	sig := alertSignal("sum=0.97")
	sig.Payload.MarketTitle = ""

	assert.Contains(t, FormatSignal(sig), "[P1] mkt-1")
}
