package cmd

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/pipeline"
)

var exportFlags struct {
	format   string
	out      string
	session  string
	protocol string
	from     string
	to       string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored packets to a file",
	Long: `Export stored packet records to a file.

Formats:
  json    structured record list with a stats summary
  csv     one row per packet
  pcap    standard capture file readable by wireshark/tcpdump
  report  human-readable summary`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runExport(); err != nil {
			exitWithError("export failed", err)
		}
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.format, "format", "f", "json",
		"export format: json, csv, pcap, report")
	exportCmd.Flags().StringVarP(&exportFlags.out, "out", "o", "",
		"output file path, relative paths resolve under the export dir (required)")
	exportCmd.Flags().StringVarP(&exportFlags.session, "session", "s", "",
		"only packets of this session id")
	exportCmd.Flags().StringVarP(&exportFlags.protocol, "protocol", "p", "",
		"only packets of this protocol")
	exportCmd.Flags().StringVar(&exportFlags.from, "from", "",
		"only packets at or after this RFC 3339 time")
	exportCmd.Flags().StringVar(&exportFlags.to, "to", "",
		"only packets before this RFC 3339 time")
	exportCmd.MarkFlagRequired("out")
}

func runExport() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filter := core.QueryFilter{
		SessionID: exportFlags.session,
		Protocol:  core.Protocol(exportFlags.protocol),
	}
	if exportFlags.from != "" {
		filter.From, err = time.Parse(time.RFC3339, exportFlags.from)
		if err != nil {
			return err
		}
	}
	if exportFlags.to != "" {
		filter.To, err = time.Parse(time.RFC3339, exportFlags.to)
		if err != nil {
			return err
		}
	}

	engine, err := pipeline.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := resolveOutPath(cfg.Export.Dir, exportFlags.out)
	return engine.ExportPackets(out, exportFlags.format, filter)
}

// resolveOutPath places relative output paths under the configured export
// directory. Absolute paths are taken as given.
func resolveOutPath(dir, out string) string {
	if dir == "" || filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(dir, out)
}
