// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"netscope.xyz/netscope/internal/config"
	"netscope.xyz/netscope/internal/log"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netscope",
	Short: "netscope - network packet capture, classification and analysis",
	Long: `netscope captures network traffic (live via libpcap, or simulated when no
capture-capable interface is available), classifies packets by protocol,
maintains rolling statistics, and stores every record durably for later
querying and export.

Captured data can be exported as JSON, CSV, pcap or a plain-text report,
and optionally published to Kafka while capturing.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when omitted)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// loadConfig loads the config file when one is given, otherwise the built-in
// defaults, and initializes logging either way.
func loadConfig() (*config.GlobalConfig, error) {
	var (
		cfg *config.GlobalConfig
		err error
	)
	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
