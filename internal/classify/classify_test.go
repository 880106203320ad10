package classify

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netscope.xyz/netscope/internal/core"
)

var (
	testSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func tcpFrame(t *testing.T, srcPort, dstPort uint16, syn, ack bool) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort),
		SYN: syn, ACK: ack, Window: 65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeIPv4}
	return serialize(t, eth, ip, tcp)
}

func udpFrame(t *testing.T, srcPort, dstPort uint16) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeIPv4}
	return serialize(t, eth, ip, udp, gopacket.Payload([]byte("payload")))
}

func classifyBytes(data []byte) core.PacketRecord {
	return Classify(core.RawPacket{
		Data:       data,
		Timestamp:  time.Now(),
		CaptureLen: uint32(len(data)),
		OrigLen:    uint32(len(data)),
	})
}

func TestClassifyTCP(t *testing.T) {
	rec := classifyBytes(tcpFrame(t, 40000, 12345, true, false))

	assert.Equal(t, core.ProtoTCP, rec.Protocol)
	assert.Equal(t, "10.0.0.1", rec.SrcIP.String())
	assert.Equal(t, "10.0.0.2", rec.DstIP.String())
	assert.Equal(t, uint16(40000), rec.SrcPort)
	assert.Equal(t, uint16(12345), rec.DstPort)
	assert.Contains(t, rec.Flags, "SYN")
	assert.True(t, rec.HasPorts())
}

func TestClassifyPortRefinement(t *testing.T) {
	cases := []struct {
		name  string
		frame []byte
		want  core.Protocol
	}{
		{"http-80", tcpFrame(t, 40000, 80, false, true), core.ProtoHTTP},
		{"http-8080", tcpFrame(t, 40000, 8080, false, true), core.ProtoHTTP},
		{"http-response", tcpFrame(t, 80, 40000, false, true), core.ProtoHTTP},
		{"https", tcpFrame(t, 40000, 443, false, true), core.ProtoHTTPS},
		{"dns-tcp", tcpFrame(t, 40000, 53, false, true), core.ProtoDNS},
		{"dns-udp", udpFrame(t, 40000, 53), core.ProtoDNS},
		{"dhcp", udpFrame(t, 68, 67), core.ProtoDHCP},
		{"plain-udp", udpFrame(t, 40000, 15000), core.ProtoUDP},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := classifyBytes(tc.frame)
			assert.Equal(t, tc.want, rec.Protocol)
		})
	}
}

func TestClassifyICMP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
	}
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeIPv4}
	rec := classifyBytes(serialize(t, eth, ip, icmp))

	assert.Equal(t, core.ProtoICMP, rec.Protocol)
	assert.False(t, rec.HasPorts())
	assert.Empty(t, rec.Flags)
}

func TestClassifyARP(t *testing.T) {
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: testSrcMAC, SourceProtAddress: net.IPv4(10, 0, 0, 1).To4(),
		DstHwAddress: net.HardwareAddr{0, 0, 0, 0, 0, 0}, DstProtAddress: net.IPv4(10, 0, 0, 2).To4(),
	}
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeARP}
	rec := classifyBytes(serialize(t, eth, arp))

	assert.Equal(t, core.ProtoARP, rec.Protocol)
	assert.Equal(t, "10.0.0.1", rec.SrcIP.String())
}

func TestClassifyIPv6(t *testing.T) {
	ip6 := &layers.IPv6{
		Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolNoNextHeader,
		SrcIP: net.ParseIP("fd00::1"), DstIP: net.ParseIP("fd00::2"),
	}
	eth := &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeIPv6}
	rec := classifyBytes(serialize(t, eth, ip6))

	assert.Equal(t, core.ProtoIPv6, rec.Protocol)
	assert.Equal(t, "fd00::1", rec.SrcIP.String())
}

func TestClassifyGarbageIsUnknown(t *testing.T) {
	rec := classifyBytes([]byte{0xde, 0xad, 0xbe, 0xef})

	assert.Equal(t, core.ProtoUnknown, rec.Protocol)
	assert.Equal(t, 4, rec.Size)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestClassifyEmptyFrame(t *testing.T) {
	rec := classifyBytes(nil)
	assert.Equal(t, core.ProtoUnknown, rec.Protocol)
	assert.GreaterOrEqual(t, rec.Size, 0)
}

// Every record gets exactly one defined protocol and a non-negative size,
// whatever bytes arrive.
func TestClassifyAlwaysDefined(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0x00},
		tcpFrame(t, 1, 2, false, false),
		udpFrame(t, 3, 4),
		make([]byte, 14), // zeroed ethernet header
	}
	for _, in := range inputs {
		rec := classifyBytes(in)
		assert.True(t, rec.Protocol.Valid(), "protocol %q should be defined", rec.Protocol)
		assert.GreaterOrEqual(t, rec.Size, 0)
	}
}
