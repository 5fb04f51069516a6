package dataprep

import "time"

// businessDaysBack walks backwards from the given day, skipping weekends,
// and returns the date the lookback lands on. Exchange holidays are not
// modelled; the extra days only widen the download window slightly.
func businessDaysBack(from time.Time, days int) time.Time {
	d := from
	remaining := days
	for remaining > 0 {
		d = d.AddDate(0, 0, -1)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		remaining--
	}
	return d
}

// window is one inclusive date range of an aggregate download.
type window struct {
	from time.Time
	to   time.Time
}

// windows splits [from, to] into consecutive chunks of at most chunkDays
// calendar days. The aggregate endpoint caps results per request, so a full
// lookback has to be fetched in pieces.
func windows(from, to time.Time, chunkDays int) []window {
	var out []window
	for start := from; !start.After(to); {
		end := start.AddDate(0, 0, chunkDays-1)
		if end.After(to) {
			end = to
		}
		out = append(out, window{from: start, to: end})
		start = end.AddDate(0, 0, 1)
	}
	return out
}
