package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/metrics"
	"netscope.xyz/netscope/internal/pipeline"
)

var runFlags struct {
	iface      string
	protocol   string
	port       uint16
	address    string
	maxPackets int64
	duration   time.Duration
	simRate    int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a capture session and run until stopped",
	Long: `Start capturing packets and run in the foreground.

The session ends on SIGINT/SIGTERM, or earlier when --max-packets or
--duration is reached. Captured records are stored durably and can be
inspected afterwards with the export and sessions commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCapture(); err != nil {
			exitWithError("capture failed", err)
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.iface, "interface", "i", "",
		"network interface for live capture (empty = simulated)")
	runCmd.Flags().StringVarP(&runFlags.protocol, "protocol", "p", "",
		"capture only this protocol (TCP, UDP, ICMP, HTTP, HTTPS, DNS, DHCP, ARP)")
	runCmd.Flags().Uint16Var(&runFlags.port, "port", 0,
		"capture only packets with this src or dst port")
	runCmd.Flags().StringVar(&runFlags.address, "address", "",
		"capture only packets with this src or dst host")
	runCmd.Flags().Int64VarP(&runFlags.maxPackets, "max-packets", "n", 0,
		"stop after this many packets (0 = unbounded)")
	runCmd.Flags().DurationVarP(&runFlags.duration, "duration", "d", 0,
		"stop after this duration (0 = unbounded)")
	runCmd.Flags().IntVar(&runFlags.simRate, "sim-rate", 0,
		"simulated packets per second (overrides config)")
}

func runCapture() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filter := core.FilterConfig{
		Interface:  runFlags.iface,
		Port:       runFlags.port,
		Address:    runFlags.address,
		MaxPackets: runFlags.maxPackets,
		Duration:   runFlags.duration,
		SimRate:    runFlags.simRate,
	}
	if runFlags.protocol != "" {
		proto := core.Protocol(runFlags.protocol)
		if !proto.Valid() {
			exitWithError("unknown protocol "+runFlags.protocol, nil)
		}
		filter.Protocol = proto
	}

	engine, err := pipeline.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics)
		metricsSrv.Start()
		defer metricsSrv.Stop(context.Background())
	}

	sess, err := engine.StartCapture(filter)
	if err != nil {
		return err
	}
	slog.Info("capturing", "session_id", sess.ID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	idlePoll := time.NewTicker(250 * time.Millisecond)
	defer idlePoll.Stop()

	for {
		select {
		case sig := <-sigCh:
			slog.Info("signal received, stopping capture", "signal", sig.String())
			summary, err := engine.StopCapture()
			if err != nil {
				return err
			}
			logSummary(summary, engine.GetStats())
			return nil

		case <-statsTicker.C:
			snap := engine.GetStats()
			slog.Info("capture stats",
				"total", snap.TotalPackets,
				"bytes", snap.TotalBytes,
				"rate_pps", snap.CaptureRate,
				"dropped", snap.DroppedPackets,
			)

		case <-idlePoll.C:
			// MaxPackets / Duration stop the session from inside the engine.
			if !engine.Active() {
				sessions, err := engine.ListSessions()
				if err == nil && len(sessions) > 0 {
					logSummary(sessions[0], engine.GetStats())
				}
				return nil
			}
		}
	}
}

func logSummary(sess core.Session, snap core.StatsSnapshot) {
	slog.Info("capture finished",
		"session_id", sess.ID,
		"packets", sess.PacketCount,
		"duration", sess.EndTime.Sub(sess.StartTime).Round(time.Millisecond),
		"dropped", snap.DroppedPackets,
		"degraded", sess.Degraded,
	)
}
