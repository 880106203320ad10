// Package export writes stored packet records out in several formats. Every
// export goes through a temp file renamed into place on success, so a partial
// write never leaves a truncated file at the destination path.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/store"
)

// Format selects an export encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatPCAP   Format = "pcap"
	FormatReport Format = "report"
)

// ParseFormat resolves a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatPCAP:
		return FormatPCAP, nil
	case FormatReport:
		return FormatReport, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownFormat, s)
}

// Engine streams records out of the store into export files.
type Engine struct {
	store *store.Store
}

func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Export writes all records matching the filter to path in the given format.
// Records appended to the store after the export begins are not included.
func (e *Engine) Export(path string, format Format, filter core.QueryFilter) (retErr error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create export dir: %v", core.ErrExportFailed, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", core.ErrExportFailed, err)
	}
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	it, err := e.store.BulkExportIterator(filter)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrExportFailed, err)
	}

	var n int
	switch format {
	case FormatJSON:
		n, err = writeJSON(tmp, it, filter)
	case FormatCSV:
		n, err = writeCSV(tmp, it)
	case FormatPCAP:
		n, err = writePCAP(tmp, it)
	case FormatReport:
		n, err = e.writeReport(tmp, it)
	default:
		err = fmt.Errorf("%w: %q", core.ErrUnknownFormat, format)
	}
	if err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", core.ErrExportFailed, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: rename into place: %v", core.ErrExportFailed, err)
	}
	slog.Info("export complete", "path", path, "format", format, "packets", n)
	return nil
}

// exportDoc is the JSON export envelope.
type exportDoc struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Filter      core.QueryFilter    `json:"filter"`
	Summary     exportSummary       `json:"summary"`
	Packets     []core.PacketRecord `json:"packets"`
}

type exportSummary struct {
	TotalPackets int              `json:"total_packets"`
	TotalBytes   int64            `json:"total_bytes"`
	Protocols    map[string]int64 `json:"protocols"`
}

func summarize(recs []core.PacketRecord) exportSummary {
	sum := exportSummary{Protocols: make(map[string]int64)}
	for _, r := range recs {
		sum.TotalPackets++
		sum.TotalBytes += int64(r.Size)
		sum.Protocols[string(r.Protocol)]++
	}
	return sum
}

func drain(it *store.Iterator) ([]core.PacketRecord, error) {
	var recs []core.PacketRecord
	for {
		rec, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: read records: %v", core.ErrExportFailed, err)
		}
		if !ok {
			return recs, nil
		}
		recs = append(recs, rec)
	}
}

func writeJSON(f *os.File, it *store.Iterator, filter core.QueryFilter) (int, error) {
	recs, err := drain(it)
	if err != nil {
		return 0, err
	}
	doc := exportDoc{
		GeneratedAt: time.Now().UTC(),
		Filter:      filter,
		Summary:     summarize(recs),
		Packets:     recs,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return 0, fmt.Errorf("%w: encode json: %v", core.ErrExportFailed, err)
	}
	return len(recs), nil
}

var csvHeader = []string{"timestamp", "protocol", "src_ip", "dst_ip", "src_port", "dst_port", "size", "flags"}

func writeCSV(f *os.File, it *store.Iterator) (int, error) {
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("%w: write csv header: %v", core.ErrExportFailed, err)
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
		row := []string{
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			string(rec.Protocol),
			rec.SrcIP.String(),
			rec.DstIP.String(),
			csvPort(rec, rec.SrcPort),
			csvPort(rec, rec.DstPort),
			strconv.Itoa(rec.Size),
			strings.Join(rec.Flags, "|"),
		}
		if err := w.Write(row); err != nil {
			return 0, fmt.Errorf("%w: write csv row: %v", core.ErrExportFailed, err)
		}
		n++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("%w: flush csv: %v", core.ErrExportFailed, err)
	}
	return n, nil
}

// csvPort renders ports empty for protocols that have none, so consumers can
// tell "no port" from port zero.
func csvPort(rec core.PacketRecord, port uint16) string {
	if !rec.HasPorts() {
		return ""
	}
	return strconv.Itoa(int(port))
}

// writeReport renders a plain-text summary: totals, protocol breakdown, and
// the recorded session history, newest session first.
func (e *Engine) writeReport(f *os.File, it *store.Iterator) (int, error) {
	recs, err := drain(it)
	if err != nil {
		return 0, err
	}
	sum := summarize(recs)

	protos := make([]string, 0, len(sum.Protocols))
	for p := range sum.Protocols {
		protos = append(protos, p)
	}
	sort.Slice(protos, func(i, j int) bool {
		if sum.Protocols[protos[i]] != sum.Protocols[protos[j]] {
			return sum.Protocols[protos[i]] > sum.Protocols[protos[j]]
		}
		return protos[i] < protos[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Capture Report - generated %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Total packets: %d\n", sum.TotalPackets)
	fmt.Fprintf(&b, "Total bytes:   %d\n", sum.TotalBytes)
	if len(recs) > 0 {
		first, last := recs[0].Timestamp, recs[len(recs)-1].Timestamp
		fmt.Fprintf(&b, "Time range:    %s .. %s\n",
			first.UTC().Format(time.RFC3339Nano), last.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString("\nProtocol breakdown:\n")
	for _, p := range protos {
		count := sum.Protocols[p]
		pct := float64(count) / float64(sum.TotalPackets) * 100
		fmt.Fprintf(&b, "  %-8s %8d  (%.1f%%)\n", p, count, pct)
	}

	sessions, err := e.store.ListSessions()
	if err != nil {
		return 0, fmt.Errorf("%w: list sessions: %v", core.ErrExportFailed, err)
	}
	if len(sessions) > 0 {
		b.WriteString("\nSession history:\n")
		for _, s := range sessions {
			end := "-"
			state := "active"
			if !s.Active() {
				end = s.EndTime.UTC().Format(time.RFC3339)
				state = "stopped"
			}
			if s.Degraded {
				state += ", degraded"
			}
			fmt.Fprintf(&b, "  %s  %s .. %s  %8d packets  (%s)\n",
				s.ID, s.StartTime.UTC().Format(time.RFC3339), end, s.PacketCount, state)
		}
	}

	if _, err := f.WriteString(b.String()); err != nil {
		return 0, fmt.Errorf("%w: write report: %v", core.ErrExportFailed, err)
	}
	return len(recs), nil
}
