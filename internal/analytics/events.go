package analytics

import "time"

// Modes recorded in SearchEvent.Mode besides the session modes.
const (
	ModeSearch = "search"
	ModeStale  = "stale"
)

// SearchEvent is published once per answered (or discarded) query.
type SearchEvent struct {
	Query        string    `json:"query"`
	Mode         string    `json:"mode"`
	Results      int       `json:"results"`
	LatencyUs    int64     `json:"latency_us"`
	CacheHit     bool      `json:"cache_hit"`
	SessionID    string    `json:"session_id,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	IndexVersion uint64    `json:"index_version"`
	Timestamp    time.Time `json:"timestamp"`
}

// Tracker accepts search events. Implementations must not block the caller.
type Tracker interface {
	Track(event SearchEvent)
}

// Discard is a Tracker that drops everything.
var Discard Tracker = discard{}

type discard struct{}

func (discard) Track(SearchEvent) {}
