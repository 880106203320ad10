// Package classify turns raw frames into protocol-labelled packet records.
package classify

import (
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netscope.xyz/netscope/internal/core"
)

// Classify builds a PacketRecord from a raw frame. It is stateless and never
// fails: a frame whose headers cannot be parsed to at least the network layer
// is labelled Unknown with size and timestamp still recorded.
func Classify(raw core.RawPacket) core.PacketRecord {
	size := int(raw.OrigLen)
	if size == 0 {
		size = len(raw.Data)
	}

	rec := core.PacketRecord{
		Timestamp: raw.Timestamp,
		Protocol:  core.ProtoUnknown,
		Size:      size,
		Raw:       raw.Data,
	}

	pkt := gopacket.NewPacket(raw.Data, layers.LayerTypeEthernet, gopacket.Lazy)

	if arpLayer := pkt.Layer(layers.LayerTypeARP); arpLayer != nil {
		arp := arpLayer.(*layers.ARP)
		rec.Protocol = core.ProtoARP
		rec.SrcIP = addrFromBytes(arp.SourceProtAddress)
		rec.DstIP = addrFromBytes(arp.DstProtAddress)
		return rec
	}

	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.Protocol = core.ProtoIPv4
		rec.SrcIP = addrFromIP(ip.SrcIP)
		rec.DstIP = addrFromIP(ip.DstIP)
	case *layers.IPv6:
		rec.Protocol = core.ProtoIPv6
		rec.SrcIP = addrFromIP(ip.SrcIP)
		rec.DstIP = addrFromIP(ip.DstIP)
	default:
		// Not parseable past L2: Unknown, classification never fails.
		return rec
	}

	switch t := pkt.TransportLayer().(type) {
	case *layers.TCP:
		rec.SrcPort = uint16(t.SrcPort)
		rec.DstPort = uint16(t.DstPort)
		rec.Protocol = refineTCP(rec.SrcPort, rec.DstPort)
		rec.Flags = tcpFlags(t)
	case *layers.UDP:
		rec.SrcPort = uint16(t.SrcPort)
		rec.DstPort = uint16(t.DstPort)
		rec.Protocol = refineUDP(rec.SrcPort, rec.DstPort)
	default:
		if pkt.Layer(layers.LayerTypeICMPv4) != nil || pkt.Layer(layers.LayerTypeICMPv6) != nil {
			rec.Protocol = core.ProtoICMP
		}
	}

	return rec
}

// refineTCP maps well-known TCP ports to application-layer labels. Payload
// inspection is not warranted at this stage.
func refineTCP(src, dst uint16) core.Protocol {
	for _, p := range [2]uint16{dst, src} {
		switch p {
		case 80, 8080:
			return core.ProtoHTTP
		case 443:
			return core.ProtoHTTPS
		case 53:
			return core.ProtoDNS
		}
	}
	return core.ProtoTCP
}

// refineUDP maps well-known UDP ports to application-layer labels.
func refineUDP(src, dst uint16) core.Protocol {
	for _, p := range [2]uint16{dst, src} {
		switch p {
		case 53:
			return core.ProtoDNS
		case 67, 68:
			return core.ProtoDHCP
		}
	}
	return core.ProtoUDP
}

// tcpFlags extracts the set control bits. An empty set is returned when no
// flag applies, never an error.
func tcpFlags(t *layers.TCP) []string {
	var flags []string
	if t.SYN {
		flags = append(flags, "SYN")
	}
	if t.ACK {
		flags = append(flags, "ACK")
	}
	if t.FIN {
		flags = append(flags, "FIN")
	}
	if t.RST {
		flags = append(flags, "RST")
	}
	if t.PSH {
		flags = append(flags, "PSH")
	}
	if t.URG {
		flags = append(flags, "URG")
	}
	return flags
}

func addrFromIP(ip net.IP) netip.Addr {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	addr, _ := netip.AddrFromSlice(ip)
	return addr
}

func addrFromBytes(b []byte) netip.Addr {
	addr, _ := netip.AddrFromSlice(b)
	return addr
}
