package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"maquette/internal/event"
	"maquette/internal/session"
)

var startCmd = &cobra.Command{
	Use:   "start <request>",
	Short: "Start a new production run",
	Long: `Start a new session for the given scene request and drive it through the
full production pipeline. Interrupting the run (Ctrl+C) suspends the
session; resume it later with 'maquette resume <session-id>'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

var (
	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	suspendStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func runStart(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchProgress(a.bus)

	sess, status, err := a.driver.Start(ctx, request)
	if sess != nil {
		fmt.Printf("session: %s\n", sess.ID)
	}
	reportStatus(status)
	return err
}

// watchProgress prints run milestones as they are published.
func watchProgress(bus *event.Bus) {
	bus.Subscribe(event.TypeStageChanged, func(e event.Event) {
		sc := e.(event.StageChangedEvent)
		fmt.Printf("%s %s\n", stageStyle.Render("stage:"), sc.To)
	})
	bus.Subscribe(event.TypeTaskCompleted, func(e event.Event) {
		tc := e.(event.TaskCompletedEvent)
		style := okStyle
		if tc.Status == session.TaskFailed.String() {
			style = failStyle
		}
		fmt.Printf("  %s %s (%d attempts)\n", style.Render(tc.Status), tc.Stage, tc.Attempts)
	})
	bus.Subscribe(event.TypeDecisionRecorded, func(e event.Event) {
		d := e.(event.DecisionRecordedEvent)
		fmt.Printf("  %s %s\n", dimStyle.Render("decision:"), d.Text)
	})
}

// reportStatus prints the run's final status.
func reportStatus(status session.Status) {
	switch status {
	case session.StatusCompleted:
		fmt.Println(okStyle.Render("run completed"))
	case session.StatusSuspended:
		fmt.Println(suspendStyle.Render("run suspended, resume with: maquette resume <session-id>"))
	case session.StatusFailed:
		fmt.Println(failStyle.Render("run failed, inspect with: maquette status <session-id>"))
	}
}
