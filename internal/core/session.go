package core

import "time"

// Session is a bounded capture run. At most one session is active system-wide;
// stopped sessions are retained as history.
type Session struct {
	ID          string       `json:"id"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time,omitempty"` // zero while active
	PacketCount int64        `json:"packet_count"`       // frozen at stop from the store count
	Filter      FilterConfig `json:"filter"`
	Degraded    bool         `json:"degraded,omitempty"` // store writes exhausted retries during the run
}

// Active reports whether the session has not been stopped yet.
func (s Session) Active() bool {
	return s.EndTime.IsZero()
}

// StatsSnapshot is an immutable point-in-time copy of the aggregator state.
// Protocol counts always sum to TotalPackets.
type StatsSnapshot struct {
	TotalPackets   int64              `json:"total_packets"`
	TotalBytes     int64              `json:"total_bytes"`
	ProtocolCounts map[Protocol]int64 `json:"protocol_counts"`
	CaptureRate    float64            `json:"capture_rate"` // packets/sec over the trailing window
	Window         time.Duration      `json:"window"`
	DroppedPackets uint64             `json:"dropped_packets"`
	TakenAt        time.Time          `json:"taken_at"`
}

// FilterConfig configures a capture source and is recorded on the session as
// provenance.
type FilterConfig struct {
	Protocol   Protocol           `json:"protocol,omitempty" mapstructure:"protocol"`  // optional classification filter
	Port       uint16             `json:"port,omitempty" mapstructure:"port"`          // optional src-or-dst port filter
	Address    string             `json:"address,omitempty" mapstructure:"address"`    // optional src-or-dst host filter
	MaxPackets int64              `json:"max_packets,omitempty" mapstructure:"max_packets"` // 0 = unbounded
	Duration   time.Duration      `json:"duration,omitempty" mapstructure:"duration"`  // 0 = unbounded
	BufferSize int                `json:"buffer_size,omitempty" mapstructure:"buffer_size"`
	Interface  string             `json:"interface,omitempty" mapstructure:"interface"` // empty = simulated capture
	SimRate    int                `json:"sim_rate,omitempty" mapstructure:"sim_rate"`   // synthetic packets/sec
	SimWeights map[string]float64 `json:"sim_weights,omitempty" mapstructure:"sim_weights"`
}

// QueryFilter selects records from the store. Zero values mean "no constraint".
type QueryFilter struct {
	Protocol  Protocol  `json:"protocol,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Address   string    `json:"address,omitempty"` // matches either endpoint
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
}
