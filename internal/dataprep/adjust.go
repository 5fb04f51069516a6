package dataprep

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairsbot/internal/marketdata"
)

// dateLayout keys corporate actions and bars by calendar day.
const dateLayout = "2006-01-02"

// event is one corporate action's back-adjustment factor, effective for all
// bars strictly before its ex-date.
type event struct {
	exDate string
	factor decimal.Decimal
}

// AdjustBars back-adjusts an unadjusted price series for dividends and
// splits. Bars on or after an action's ex-date are untouched; every earlier
// bar is scaled by the product of the factors of all later actions, so the
// latest prices stay nominal and history is made comparable to them.
//
// A dividend's factor is 1 - amount/prev_close, where prev_close is the
// closing price of the last bar day before the ex-date. A dividend with no
// preceding bar in the series is skipped. A split's factor is from/to.
func AdjustBars(bars []marketdata.Bar, divs []marketdata.Dividend, splits []marketdata.Split) []marketdata.Bar {
	if len(bars) == 0 || (len(divs) == 0 && len(splits) == 0) {
		return bars
	}

	dayCloses, days := closeByDay(bars)

	events := make([]event, 0, len(divs)+len(splits))
	for _, div := range divs {
		prevClose, ok := lastCloseBefore(dayCloses, days, div.ExDate)
		if !ok || !prevClose.IsPositive() || !div.CashAmount.IsPositive() {
			continue
		}
		factor := decimal.NewFromInt(1).Sub(div.CashAmount.Div(prevClose))
		events = append(events, event{exDate: div.ExDate, factor: factor})
	}
	for _, sp := range splits {
		if !sp.From.IsPositive() || !sp.To.IsPositive() {
			continue
		}
		events = append(events, event{exDate: sp.ExDate, factor: sp.From.Div(sp.To)})
	}
	if len(events) == 0 {
		return bars
	}

	sort.Slice(events, func(i, j int) bool { return events[i].exDate < events[j].exDate })

	// cumulative[i] is the product of factors i..end: the scale applied to a
	// bar older than events[i].exDate but not older than events[i-1].exDate.
	cumulative := make([]decimal.Decimal, len(events))
	running := decimal.NewFromInt(1)
	for i := len(events) - 1; i >= 0; i-- {
		running = running.Mul(events[i].factor)
		cumulative[i] = running
	}

	out := make([]marketdata.Bar, len(bars))
	for i, bar := range bars {
		day := bar.At.Format(dateLayout)
		// First event with ex-date strictly after this bar's day.
		idx := sort.Search(len(events), func(j int) bool { return events[j].exDate > day })
		adjusted := bar.Close
		if idx < len(events) {
			adjusted = bar.Close.Mul(cumulative[idx])
		}
		out[i] = marketdata.Bar{At: bar.At, Close: adjusted}
	}
	return out
}

// closeByDay returns the last close of each bar day plus the sorted day list.
func closeByDay(bars []marketdata.Bar) (map[string]decimal.Decimal, []string) {
	closes := make(map[string]decimal.Decimal)
	for _, bar := range bars {
		// Bars arrive oldest first, so the last write per day wins.
		closes[bar.At.Format(dateLayout)] = bar.Close
	}
	days := make([]string, 0, len(closes))
	for day := range closes {
		days = append(days, day)
	}
	sort.Strings(days)
	return closes, days
}

// lastCloseBefore finds the close of the latest bar day strictly before the
// given ex-date.
func lastCloseBefore(closes map[string]decimal.Decimal, days []string, exDate string) (decimal.Decimal, bool) {
	idx := sort.SearchStrings(days, exDate)
	if idx == 0 {
		return decimal.Decimal{}, false
	}
	return closes[days[idx-1]], true
}
