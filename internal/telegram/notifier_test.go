package telegram

import (
	"testing"
	"time"

	"github.com/dushixiang/copyrank/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := Render(service.Event{
		Type:     service.EventLiquidationDetected,
		Trader:   "0xabc",
		Token:    "BTC",
		Side:     "long",
		USDValue: 12345.678,
		At:       at,
	})
	assert.Contains(t, msg, "`0xabc`")
	assert.Contains(t, msg, "BTC long $12345.68")
	assert.Contains(t, msg, "2025-03-01T12:00:00Z")

	msg = Render(service.Event{
		Type:      service.EventBufferAction,
		Token:     "ETH",
		Side:      "short",
		Action:    "emergency_close",
		BufferPct: 8.5,
		Message:   "buffer below 10%",
		At:        at,
	})
	assert.Contains(t, msg, "缓冲 8.50%")
	assert.Contains(t, msg, "emergency\\_close")

	assert.Empty(t, Render(service.Event{Type: "unknown"}))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, "a\\_b\\*c\\`d\\[e", escapeMarkdown("a_b*c`d[e"))
	assert.Equal(t, "plain", escapeMarkdown("plain"))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x1234...cdef", shortAddress("0x1234567890abcdef"))
	assert.Equal(t, "0xabc", shortAddress("0xabc"))
}
