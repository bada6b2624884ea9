package core

import "time"

// UnavailableReason says why a cycle produced no snapshot at all. The
// presentation layer renders these differently: a blocked API with no local
// stats is actionable, an empty log tree just means nothing happened yet.
type UnavailableReason string

const (
	// ReasonBlocked: the remote API was unreachable, rejected us, or returned
	// garbage, and no local stats existed to fall back on.
	ReasonBlocked UnavailableReason = "api_blocked_no_local_stats"
	// ReasonNoData: no credential or session key was configured and the local
	// log tree held no usage records.
	ReasonNoData UnavailableReason = "no_usage_data"
)

// Result is the outcome of one refresh cycle: either a snapshot or a terminal
// unavailable state. Zero usage is a valid snapshot; Unavailable means we
// could not determine usage at all.
type Result struct {
	Snapshot    *UsageSnapshot
	Unavailable UnavailableReason
	At          time.Time
}

func Ok(snap *UsageSnapshot, at time.Time) Result {
	return Result{Snapshot: snap, At: at}
}

func Unavailable(reason UnavailableReason, at time.Time) Result {
	return Result{Unavailable: reason, At: at}
}

func (r Result) OK() bool { return r.Snapshot != nil }

func (r Result) Message() string {
	switch r.Unavailable {
	case ReasonBlocked:
		return "Could not load usage: API blocked and no local stats found."
	case ReasonNoData:
		return "No usage data available."
	default:
		return ""
	}
}
