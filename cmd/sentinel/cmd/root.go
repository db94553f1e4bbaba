package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Audit log anomaly detection for the dental platform",
	Long: `sentinel watches the practice management platform's audit log for
suspicious access patterns: credential attacks, excessive patient record
access, off-hours activity, behavioral drift, unfamiliar source addresses
and API abuse. Findings become security alerts that staff can review,
investigate and resolve through the HTTP API.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus SENTINEL_* env vars)")
}
