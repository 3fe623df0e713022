package notifier

import (
	"fmt"
	"strings"
	"time"

	"SwapSentinel/internal/model"
)

// Status is the operator-facing snapshot of the bot.
type Status struct {
	Strategy    string
	Position    model.Position
	LastPrice   float64
	LastTick    time.Time
	Ticks       int64
	SOLBalance  float64
	USDCBalance float64
	Healthy     bool
	Indicators  model.Indicators
}

// FormatFill reports an executed swap.
func FormatFill(side model.Signal, price, inAmount, outAmount float64, res model.SwapResult) string {
	var b strings.Builder
	icon, in, out := "🟢", "USDC", "SOL"
	if side == model.SignalSell {
		icon, in, out = "🔴", "SOL", "USDC"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b> @ %.4f\n", icon, side, price))
	b.WriteString(fmt.Sprintf("%.6f %s → %.6f %s\n", inAmount, in, outAmount, out))
	status := "confirmed"
	if !res.Confirmed {
		status = "unconfirmed"
	}
	b.WriteString(fmt.Sprintf("tx: <code>%s</code> (%s)\n", res.Signature, status))
	return b.String()
}

// FormatFailure reports an order that was not filled.
func FormatFailure(side model.Signal, err error) string {
	return fmt.Sprintf("⚠️ <b>%s not filled</b>\n%v\n", side, err)
}

// FormatStatus renders a status report.
func FormatStatus(s Status) string {
	var b strings.Builder
	b.WriteString("📊 <b>SwapSentinel status</b>\n\n")
	b.WriteString(fmt.Sprintf("Strategy: %s\n", s.Strategy))
	b.WriteString(fmt.Sprintf("Position: %s\n", s.Position.Side))
	if s.Position.IsLong() {
		b.WriteString(fmt.Sprintf("Entry: %.4f at %s\n", s.Position.EntryPrice, s.Position.EntryTime.UTC().Format("2006-01-02 15:04")))
		if s.LastPrice > 0 && s.Position.EntryPrice > 0 {
			pnl := (s.LastPrice - s.Position.EntryPrice) / s.Position.EntryPrice * 100
			b.WriteString(fmt.Sprintf("Unrealized: %+.2f%%\n", pnl))
		}
	}
	b.WriteString(fmt.Sprintf("Last price: %.4f\n", s.LastPrice))
	if ind := s.Indicators; ind.RSI > 0 {
		b.WriteString(fmt.Sprintf("RSI(14): %.1f | SMA(20): %.4f\n", ind.RSI, ind.SMA))
		if ind.BollingerUpper > 0 {
			b.WriteString(fmt.Sprintf("Bands: %.4f / %.4f | MACD hist: %+.4f\n", ind.BollingerLower, ind.BollingerUpper, ind.MACDHistogram))
		}
	}
	b.WriteString(fmt.Sprintf("Balances: %.4f SOL | %.2f USDC\n", s.SOLBalance, s.USDCBalance))
	if s.LastTick.IsZero() {
		b.WriteString("Last tick: never\n")
	} else {
		b.WriteString(fmt.Sprintf("Last tick: %s (%d total)\n", s.LastTick.UTC().Format("2006-01-02 15:04:05"), s.Ticks))
	}
	if !s.Healthy {
		b.WriteString("RPC: unhealthy\n")
	}
	return b.String()
}
