package model

// Filters defines predicates for structured event queries. All set
// predicates must match (conjunction). The zero value matches every event.
type Filters struct {
	EventName *string `json:"event_name,omitempty"`
	Success   *bool   `json:"success,omitempty"`

	// From/To bound the timestamp inclusively on both ends.
	From *int64 `json:"from,omitempty"`
	To   *int64 `json:"to,omitempty"`

	// Fields matches arbitrary metadata keys (or the top-level fields
	// event_id / event_name / run_id) by exact value.
	Fields map[string]any `json:"fields,omitempty"`
}

// Empty reports whether no predicate is set, in which case a query is
// equivalent to GetAll.
func (f Filters) Empty() bool {
	return f.EventName == nil && f.Success == nil && f.From == nil && f.To == nil && len(f.Fields) == 0
}

// WindowUnit is the time unit of a trailing window query.
type WindowUnit string

const (
	UnitSeconds WindowUnit = "seconds"
	UnitMinutes WindowUnit = "minutes"
	UnitHours   WindowUnit = "hours"
)

// Micros returns the unit's length in microseconds, or 0 for an
// unrecognized unit.
func (u WindowUnit) Micros() int64 {
	switch u {
	case UnitSeconds:
		return MicrosPerSecond
	case UnitMinutes:
		return 60 * MicrosPerSecond
	case UnitHours:
		return 3600 * MicrosPerSecond
	}
	return 0
}

// LastWindow selects events from the trailing N units up to "now".
type LastWindow struct {
	N    int64      `json:"n"`
	Unit WindowUnit `json:"unit"`
}

// TimeRange selects events with Start <= timestamp <= End.
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// WindowQuery is a window specification for QueryWindow. Exactly one
// field should be set; a query with no field set (or with malformed
// parameters, such as non-positive N or an unknown unit) selects nothing
// rather than erroring, keeping the read path side-effect-free.
type WindowQuery struct {
	Last  *LastWindow `json:"last,omitempty"`
	LastN *int        `json:"last_n,omitempty"`
	Range *TimeRange  `json:"range,omitempty"`
}
