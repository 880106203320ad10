package core

import (
	"net/netip"
	"time"
)

// RawPacket is a frame as delivered by a capture source, before classification.
type RawPacket struct {
	Data       []byte    // Raw frame bytes
	Timestamp  time.Time // Capture timestamp
	CaptureLen uint32    // Actual captured length
	OrigLen    uint32    // Original frame length on the wire
}

// PacketRecord is the classified, immutable representation of one captured
// packet. Once built by the classifier it is never mutated; the session tag is
// applied by copying.
type PacketRecord struct {
	ID        int64      `json:"id"` // Store rowid, 0 until appended
	Timestamp time.Time  `json:"timestamp"`
	Protocol  Protocol   `json:"protocol"`
	SrcIP     netip.Addr `json:"src_ip"`
	DstIP     netip.Addr `json:"dst_ip"`
	SrcPort   uint16     `json:"src_port"` // 0 = not applicable for this protocol
	DstPort   uint16     `json:"dst_port"`
	Size      int        `json:"size"`
	Flags     []string   `json:"flags,omitempty"`      // Protocol-specific control bits
	SessionID string     `json:"session_id,omitempty"` // Empty until tagged by an active session
	Raw       []byte     `json:"raw,omitempty"`        // Raw frame bytes, owned by the store
}

// HasPorts reports whether the transport ports are meaningful for this record.
// Ports are explicit and protocol-dependent, never probed.
func (r PacketRecord) HasPorts() bool {
	return r.Protocol.PortBased()
}

// WithSession returns a copy of the record tagged with the given session id.
func (r PacketRecord) WithSession(id string) PacketRecord {
	r.SessionID = id
	return r
}
