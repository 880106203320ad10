package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"netscope.xyz/netscope/internal/pipeline"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List capture session history",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSessions(); err != nil {
			exitWithError("listing sessions failed", err)
		}
	},
}

func runSessions() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := pipeline.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	sessions, err := engine.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tPACKETS\tPROTOCOL\tSTATE")
	for _, s := range sessions {
		state := "stopped"
		duration := "-"
		switch {
		case s.Active():
			state = "active"
			duration = time.Since(s.StartTime).Round(time.Second).String()
		default:
			duration = s.EndTime.Sub(s.StartTime).Round(time.Second).String()
		}
		if s.Degraded {
			state += " (degraded)"
		}
		proto := string(s.Filter.Protocol)
		if proto == "" {
			proto = "all"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.ID,
			s.StartTime.Format(time.RFC3339),
			duration,
			s.PacketCount,
			proto,
			state,
		)
	}
	return w.Flush()
}
