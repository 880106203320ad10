package capture

import (
	"fmt"
	"math/rand"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netscope.xyz/netscope/internal/core"
)

// generator builds wire-format frames for the simulated source.
type generator struct {
	table   pickTable
	rand    *rand.Rand
	srcMAC  net.HardwareAddr
	dstMAC  net.HardwareAddr
	fixedIP net.IP // from FilterConfig.Address, nil when unset
	port    uint16 // from FilterConfig.Port, 0 when unset
}

func newGenerator(weights map[string]float64, cfg core.FilterConfig, r *rand.Rand) (*generator, error) {
	g := &generator{
		table:  newPickTable(weights),
		rand:   r,
		srcMAC: net.HardwareAddr{0x02, 0x4e, 0x53, 0x00, 0x00, 0x01},
		dstMAC: net.HardwareAddr{0x02, 0x4e, 0x53, 0x00, 0x00, 0x02},
		port:   cfg.Port,
	}
	if cfg.Address != "" {
		ip := net.ParseIP(cfg.Address)
		if ip == nil {
			return nil, fmt.Errorf("simulated capture: invalid address filter %q", cfg.Address)
		}
		g.fixedIP = ip.To4()
	}
	return g, nil
}

// Frame draws a protocol from the weight table and serializes one frame.
func (g *generator) Frame() []byte {
	proto := g.table.pick(g.rand)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	var err error
	switch proto {
	case core.ProtoTCP:
		err = g.tcpFrame(buf, opts, g.srcPort(), g.highPort(), nil)
	case core.ProtoHTTP:
		err = g.tcpFrame(buf, opts, g.srcPort(), 80, []byte("GET / HTTP/1.1\r\nHost: sim\r\n\r\n"))
	case core.ProtoHTTPS:
		err = g.tcpFrame(buf, opts, g.srcPort(), 443, g.payload(48))
	case core.ProtoUDP:
		err = g.udpFrame(buf, opts, g.srcPort(), g.highPort(), g.payload(32))
	case core.ProtoDHCP:
		err = g.udpFrame(buf, opts, 68, 67, g.payload(240))
	case core.ProtoDNS:
		err = g.dnsFrame(buf, opts)
	case core.ProtoICMP:
		err = g.icmpFrame(buf, opts)
	case core.ProtoARP:
		err = g.arpFrame(buf, opts)
	case core.ProtoIPv4:
		err = g.ipv4OnlyFrame(buf, opts)
	case core.ProtoIPv6:
		err = g.ipv6Frame(buf, opts)
	default:
		err = g.unknownFrame(buf, opts)
	}
	if err != nil {
		// Serialization of generator-built layers only fails on programming
		// errors; emit an unclassifiable frame rather than nothing.
		return g.payload(64)
	}
	return buf.Bytes()
}

func (g *generator) srcIP() net.IP {
	if g.fixedIP != nil {
		return g.fixedIP
	}
	return net.IPv4(10, 0, byte(g.rand.Intn(16)), byte(1+g.rand.Intn(250)))
}

func (g *generator) dstIP() net.IP {
	return net.IPv4(10, 1, byte(g.rand.Intn(16)), byte(1+g.rand.Intn(250)))
}

func (g *generator) srcPort() uint16 {
	return uint16(32768 + g.rand.Intn(28000))
}

// highPort returns a destination port outside the well-known refinement set
// so plain TCP/UDP frames are not classified as HTTP/DNS/etc.
func (g *generator) highPort() uint16 {
	if g.port != 0 {
		return g.port
	}
	return uint16(10000 + g.rand.Intn(20000))
}

func (g *generator) payload(n int) []byte {
	b := make([]byte, n)
	g.rand.Read(b)
	return b
}

func (g *generator) eth(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       g.srcMAC,
		DstMAC:       g.dstMAC,
		EthernetType: t,
	}
}

func (g *generator) ip4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    g.srcIP(),
		DstIP:    g.dstIP(),
	}
}

func (g *generator) tcpFrame(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions, src, dst uint16, payload []byte) error {
	ip := g.ip4(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(src),
		DstPort: layers.TCPPort(dst),
		Seq:     g.rand.Uint32(),
		Window:  65535,
	}
	if len(payload) > 0 {
		tcp.PSH = true
		tcp.ACK = true
		tcp.Ack = g.rand.Uint32()
	} else {
		tcp.SYN = true
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	return gopacket.SerializeLayers(buf, opts,
		g.eth(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(payload))
}

func (g *generator) udpFrame(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions, src, dst uint16, payload []byte) error {
	ip := g.ip4(layers.IPProtocolUDP)
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src),
		DstPort: layers.UDPPort(dst),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	return gopacket.SerializeLayers(buf, opts,
		g.eth(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload))
}

func (g *generator) dnsFrame(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	ip := g.ip4(layers.IPProtocolUDP)
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(g.srcPort()),
		DstPort: 53,
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	dns := &layers.DNS{
		ID:      uint16(g.rand.Intn(1 << 16)),
		RD:      true,
		QDCount: 1,
		Questions: []layers.DNSQuestion{{
			Name:  []byte("sim.netscope.xyz"),
			Type:  layers.DNSTypeA,
			Class: layers.DNSClassIN,
		}},
	}
	return gopacket.SerializeLayers(buf, opts,
		g.eth(layers.EthernetTypeIPv4), ip, udp, dns)
}

func (g *generator) icmpFrame(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	ip := g.ip4(layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       uint16(g.rand.Intn(1 << 16)),
		Seq:      uint16(g.rand.Intn(1 << 16)),
	}
	return gopacket.SerializeLayers(buf, opts,
		g.eth(layers.EthernetTypeIPv4), ip, icmp, gopacket.Payload(g.payload(16)))
}

func (g *generator) arpFrame(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   g.srcMAC,
		SourceProtAddress: g.srcIP().To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    g.dstIP().To4(),
	}
	return gopacket.SerializeLayers(buf, opts,
		g.eth(layers.EthernetTypeARP), arp)
}

// ipv4OnlyFrame carries an IP protocol with no decoded transport layer, so
// classification stops at the network layer.
func (g *generator) ipv4OnlyFrame(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	ip := g.ip4(layers.IPProtocolGRE)
	return gopacket.SerializeLayers(buf, opts,
		g.eth(layers.EthernetTypeIPv4), ip, gopacket.Payload(g.payload(24)))
}

func (g *generator) ipv6Frame(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	ip6 := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolNoNextHeader,
		SrcIP:      net.ParseIP("fd00::1"),
		DstIP:      net.ParseIP("fd00::2"),
	}
	return gopacket.SerializeLayers(buf, opts,
		g.eth(layers.EthernetTypeIPv6), ip6)
}

// unknownFrame uses an experimental ethertype so no parser past L2 applies.
func (g *generator) unknownFrame(buf gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	return gopacket.SerializeLayers(buf, opts,
		g.eth(layers.EthernetType(0x88B5)), gopacket.Payload(g.payload(40)))
}
