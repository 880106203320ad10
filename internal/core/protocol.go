// Package core defines core data structures with zero external dependencies.
package core

// Protocol is the classification label attached to every captured packet.
type Protocol string

const (
	ProtoTCP     Protocol = "TCP"
	ProtoUDP     Protocol = "UDP"
	ProtoICMP    Protocol = "ICMP"
	ProtoARP     Protocol = "ARP"
	ProtoIPv4    Protocol = "IPv4"
	ProtoIPv6    Protocol = "IPv6"
	ProtoHTTP    Protocol = "HTTP"
	ProtoHTTPS   Protocol = "HTTPS"
	ProtoDNS     Protocol = "DNS"
	ProtoDHCP    Protocol = "DHCP"
	ProtoUnknown Protocol = "Unknown"
)

// Protocols lists every valid classification label.
var Protocols = []Protocol{
	ProtoTCP, ProtoUDP, ProtoICMP, ProtoARP, ProtoIPv4, ProtoIPv6,
	ProtoHTTP, ProtoHTTPS, ProtoDNS, ProtoDHCP, ProtoUnknown,
}

// Valid reports whether p is one of the defined classification labels.
func (p Protocol) Valid() bool {
	for _, known := range Protocols {
		if p == known {
			return true
		}
	}
	return false
}

// PortBased reports whether the protocol carries transport-layer ports.
func (p Protocol) PortBased() bool {
	switch p {
	case ProtoTCP, ProtoUDP, ProtoHTTP, ProtoHTTPS, ProtoDNS, ProtoDHCP:
		return true
	}
	return false
}
