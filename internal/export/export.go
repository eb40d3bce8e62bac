// Package export serializes a run's event history. Exporters consume
// the store's GetAll read path only; they require non-empty input and
// surface ErrNoData instead of writing an empty file header.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/tracefold/tracefold/internal/model"
)

// ErrNoData is returned when a run has no events to export.
var ErrNoData = errors.New("export: no data")

// fixed CSV columns, followed by measurement columns in sorted key order.
var csvHeader = []string{
	"event_id", "run_id", "event_name", "timestamp",
	"latency_ms", "cost_usd", "success",
}

// WriteNDJSON writes one JSON object per line.
func WriteNDJSON(w io.Writer, events []model.EventRecord) error {
	if len(events) == 0 {
		return ErrNoData
	}
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("export: ndjson: %w", err)
		}
	}
	return nil
}

// WriteCSV writes a header row plus one row per event. Measurement keys
// present anywhere in the batch become extra columns, sorted by name so
// the layout is reproducible; metadata stays a single JSON column.
func WriteCSV(w io.Writer, events []model.EventRecord) error {
	if len(events) == 0 {
		return ErrNoData
	}

	keys := measurementKeys(events)
	header := append(append([]string{}, csvHeader...), keys...)
	header = append(header, "metadata")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export: csv header: %w", err)
	}

	for _, e := range events {
		row := []string{
			e.EventID,
			e.RunID.String(),
			e.EventName,
			strconv.FormatInt(e.Timestamp, 10),
			formatFloat(e.LatencyMs),
			formatFloat(e.CostUSD),
			formatBool(e.Success),
		}
		for _, k := range keys {
			if v, ok := e.Measurements[k]; ok {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		meta := ""
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("export: marshal metadata: %w", err)
			}
			meta = string(b)
		}
		row = append(row, meta)

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func measurementKeys(events []model.EventRecord) []string {
	seen := make(map[string]bool)
	for _, e := range events {
		for k := range e.Measurements {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
