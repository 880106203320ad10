package export

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/store"
)

const pcapSnapLen = 65535

// writePCAP emits a standard pcap file readable by wireshark and tcpdump.
// Records without raw frame bytes (none under normal operation) are skipped
// rather than producing an unparseable zero-length packet.
func writePCAP(f *os.File, it *store.Iterator) (int, error) {
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(pcapSnapLen, layers.LinkTypeEthernet); err != nil {
		return 0, fmt.Errorf("%w: write pcap header: %v", core.ErrExportFailed, err)
	}

	var n int
	for {
		rec, ok, err := it.Next()
		if err != nil {
			return 0, fmt.Errorf("%w: read records: %v", core.ErrExportFailed, err)
		}
		if !ok {
			break
		}
		if len(rec.Raw) == 0 {
			continue
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     rec.Timestamp,
			CaptureLength: len(rec.Raw),
			Length:        rec.Size,
		}
		if ci.Length < ci.CaptureLength {
			ci.Length = ci.CaptureLength
		}
		if err := w.WritePacket(ci, rec.Raw); err != nil {
			return 0, fmt.Errorf("%w: write pcap packet: %v", core.ErrExportFailed, err)
		}
		n++
	}
	return n, nil
}
