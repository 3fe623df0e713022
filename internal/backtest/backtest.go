package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"SwapSentinel/internal/model"
	"SwapSentinel/internal/strategy"
)

// Trade is one closed round trip.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Size       float64 // SOL
	PnL        float64 // USDC
}

// Report summarises a replay.
type Report struct {
	Strategy   string
	Candles    int
	Skipped    int // bars without a positive close
	From, To   time.Time
	Trades     []Trade
	Wins       int
	TotalPnL   float64
	Open       model.Position
	LastPrice  float64
	Unrealized float64
}

// WinRate is the share of closed trades with positive PnL, in [0, 1].
func (r Report) WinRate() float64 {
	if len(r.Trades) == 0 {
		return 0
	}
	return float64(r.Wins) / float64(len(r.Trades))
}

// Run replays series through engine, filling every signal at the candle
// close. Each buy spends positionSizeUSDC. Bars with a non-positive close
// are left out of the replay.
func Run(engine *strategy.Engine, series model.CandleSeries, positionSizeUSDC float64) Report {
	series, skipped := priced(series)
	rep := Report{Strategy: engine.Strategy().Name(), Candles: len(series), Skipped: skipped}
	if len(series) == 0 {
		return rep
	}
	rep.From, rep.To = series[0].Time(), series[len(series)-1].Time()

	var size decimal.Decimal
	pnl := decimal.Zero
	for i, c := range series {
		t := strategy.Tick{Time: c.Time(), Price: c.Close, Candles: series[:i+1]}
		engine.Update(t)

		switch engine.Evaluate(t) {
		case model.SignalHold:
		case model.SignalBuy:
			if err := engine.OnFill(model.SignalBuy, c.Close, t.Time); err != nil {
				continue
			}
			size = decimal.NewFromFloat(positionSizeUSDC).Div(decimal.NewFromFloat(c.Close))
		case model.SignalSell:
			entry := engine.Position()
			if err := engine.OnFill(model.SignalSell, c.Close, t.Time); err != nil {
				continue
			}
			tradePnL := size.Mul(decimal.NewFromFloat(c.Close).Sub(decimal.NewFromFloat(entry.EntryPrice)))
			pnl = pnl.Add(tradePnL)

			tr := Trade{
				EntryTime:  entry.EntryTime,
				ExitTime:   t.Time,
				EntryPrice: entry.EntryPrice,
				ExitPrice:  c.Close,
				Size:       size.InexactFloat64(),
				PnL:        tradePnL.InexactFloat64(),
			}
			if tr.PnL > 0 {
				rep.Wins++
			}
			rep.Trades = append(rep.Trades, tr)
		}
	}

	rep.TotalPnL = pnl.InexactFloat64()
	rep.LastPrice = series[len(series)-1].Close
	rep.Open = engine.Position()
	if rep.Open.IsLong() {
		rep.Unrealized = size.Mul(decimal.NewFromFloat(rep.LastPrice).Sub(decimal.NewFromFloat(rep.Open.EntryPrice))).InexactFloat64()
	}
	return rep
}

func priced(series model.CandleSeries) (model.CandleSeries, int) {
	out := make(model.CandleSeries, 0, len(series))
	for _, c := range series {
		if c.Close > 0 {
			out = append(out, c)
		}
	}
	return out, len(series) - len(out)
}

// Write prints the report.
func (r Report) Write(w io.Writer) {
	fmt.Fprintf(w, "Backtest: %s over %d candles", r.Strategy, r.Candles)
	if r.Candles > 0 {
		fmt.Fprintf(w, " (%s → %s)", r.From.UTC().Format(time.DateTime), r.To.UTC().Format(time.DateTime))
	}
	fmt.Fprintln(w)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "Skipped %d candles without a positive close\n", r.Skipped)
	}
	for i, t := range r.Trades {
		fmt.Fprintf(w, "  #%-3d %s  buy %.4f → sell %.4f  size %.6f SOL  pnl %+.2f USDC\n",
			i+1, t.EntryTime.UTC().Format(time.DateTime), t.EntryPrice, t.ExitPrice, t.Size, t.PnL)
	}
	fmt.Fprintf(w, "Trades: %d  Wins: %d  Win rate: %.1f%%\n", len(r.Trades), r.Wins, r.WinRate()*100)
	fmt.Fprintf(w, "Total PnL: %+.2f USDC\n", r.TotalPnL)
	if r.Open.IsLong() {
		fmt.Fprintf(w, "Open position: entry %.4f, last %.4f, unrealized %+.2f USDC\n",
			r.Open.EntryPrice, r.LastPrice, r.Unrealized)
	}
}
