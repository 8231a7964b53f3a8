// Command hubd is the multi-agent coordination daemon: it binds the RPC
// socket, loads the feature-flagged component set from hub.yaml, and serves
// until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agenthub/hub/internal/obs"
)

var hubDir string

var rootCmd = &cobra.Command{
	Use:   "hubd",
	Short: "Run the multi-agent coordination daemon",
	Long: `hubd serves the RPC socket that coordinates task handoffs, trust
accounting, SLA enforcement, and workflow execution between local agent
processes on one host.`,
	RunE: runDaemon,
}

func init() {
	home, _ := os.UserHomeDir()
	defaultHubDir := filepath.Join(home, ".hub")
	rootCmd.PersistentFlags().StringVar(&hubDir, "hub-dir", defaultHubDir, "Directory holding hub.yaml, the task board, tokens, and the event log")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

var verbose bool

func runDaemon(cmd *cobra.Command, args []string) error {
	obs.SetVerbose(verbose)

	d, err := newDaemon(hubDir)
	if err != nil {
		return fmt.Errorf("hubd: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs.PrintNormal("hubd: listening on %s", d.cfg.Current().SocketPath)
	return d.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
