// Package window computes sliding-window aggregates over an ordered
// event history.
package window

import "github.com/tracefold/tracefold/internal/model"

// Compute partitions events into possibly-overlapping half-open windows
// [start, start+windowSize) advancing by stepSize, and aggregates each.
// Events must already be sorted ascending by timestamp. Window starts
// begin at the first event's timestamp and continue while
// start+windowSize <= tLast+stepSize. Empty windows are dropped.
//
// stepSize < windowSize slides (overlap); equal sizes tile; larger steps
// leave gaps. Both sizes are in the event time unit (microseconds).
//
// A pair of cursors advances across the sorted history, so the total
// cost is O(windows + events scanned) rather than a re-scan per window.
func Compute(events []model.EventRecord, windowSize, stepSize int64) []model.WindowResult {
	if len(events) == 0 || windowSize <= 0 || stepSize <= 0 {
		return nil
	}

	t0 := events[0].Timestamp
	tLast := events[len(events)-1].Timestamp

	var results []model.WindowResult
	lo := 0
	for start := t0; start+windowSize <= tLast+stepSize; start += stepSize {
		end := start + windowSize

		// lo only ever moves forward: the next window's start is >= this
		// one's, so everything skipped here stays out of range.
		for lo < len(events) && events[lo].Timestamp < start {
			lo++
		}
		hi := lo
		for hi < len(events) && events[hi].Timestamp < end {
			hi++
		}

		if res, ok := aggregate(events[lo:hi], start, end); ok {
			results = append(results, res)
		}
	}
	return results
}

func aggregate(events []model.EventRecord, start, end int64) (model.WindowResult, bool) {
	if len(events) == 0 {
		return model.WindowResult{}, false
	}

	res := model.WindowResult{
		WindowStart: start,
		WindowEnd:   end,
		EventCount:  len(events),
	}

	var latencySum float64
	var latencyCount int
	for _, e := range events {
		if e.LatencyMs != nil {
			latencySum += *e.LatencyMs
			latencyCount++
		}
		if e.CostUSD != nil {
			res.TotalCost += *e.CostUSD
		}
		if e.Success != nil {
			if *e.Success {
				res.SuccessCount++
			} else {
				res.FailureCount++
			}
		}
	}
	if latencyCount > 0 {
		mean := latencySum / float64(latencyCount)
		res.MeanLatency = &mean
	}
	return res, true
}
