package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a suspended production run",
	Long: `Resume an existing session from its persisted stage. The task ledger
determines what still needs to run: completed stages are skipped and an
invocation that was interrupted mid-flight is re-driven.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchProgress(a.bus)

	status, err := a.driver.Resume(ctx, args[0])
	reportStatus(status)
	return err
}
