// Package capture implements packet capture sources and their bounded queue.
package capture

import (
	"context"
	"fmt"
	"strings"

	"netscope.xyz/netscope/internal/core"
)

// Source produces raw packets into a Queue. Implementations must guarantee
// that no packet is pushed after Stop returns.
type Source interface {
	// Name returns the source type for logs and session provenance.
	Name() string
	// Start begins production into q. Setup failures are returned
	// immediately; production itself runs in the background.
	Start(ctx context.Context, cfg core.FilterConfig, q *Queue) error
	// Stop signals the producer to cease and waits for it to exit.
	Stop() error
}

// BuildBPF translates a FilterConfig into a tcpdump-style filter expression
// for live capture. An empty config yields an empty expression (capture all).
func BuildBPF(cfg core.FilterConfig) string {
	var parts []string

	switch cfg.Protocol {
	case core.ProtoTCP:
		parts = append(parts, "tcp")
	case core.ProtoUDP:
		parts = append(parts, "udp")
	case core.ProtoICMP:
		parts = append(parts, "icmp")
	case core.ProtoARP:
		parts = append(parts, "arp")
	case core.ProtoIPv4:
		parts = append(parts, "ip")
	case core.ProtoIPv6:
		parts = append(parts, "ip6")
	case core.ProtoHTTP:
		parts = append(parts, "tcp and (port 80 or port 8080)")
	case core.ProtoHTTPS:
		parts = append(parts, "tcp and port 443")
	case core.ProtoDNS:
		parts = append(parts, "port 53")
	case core.ProtoDHCP:
		parts = append(parts, "udp and (port 67 or port 68)")
	}

	if cfg.Port != 0 {
		parts = append(parts, fmt.Sprintf("port %d", cfg.Port))
	}
	if cfg.Address != "" {
		parts = append(parts, fmt.Sprintf("host %s", cfg.Address))
	}

	return strings.Join(parts, " and ")
}
