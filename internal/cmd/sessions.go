package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"maquette/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List all sessions",
	Long: `List all sessions with their status:
- Session ID and original request
- Current pipeline stage
- Lifecycle status (active, suspended, completed, failed)
- Lock status (whether another process is driving it)`,
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	lockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.log.Close()

	infos, err := a.store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("no sessions found")
		return nil
	}

	fmt.Printf("%s\n", headerStyle.Render(fmt.Sprintf("%-36s  %-22s  %-10s  %-7s  %-8s  %s",
		"ID", "STAGE", "STATUS", "LOCKED", "UPDATED", "REQUEST")))
	for _, info := range infos {
		locked := ""
		if info.IsLocked {
			locked = lockedStyle.Render("yes")
		}
		fmt.Printf("%-36s  %-22s  %-10s  %-7s  %-8s  %s\n",
			info.ID,
			info.Stage,
			statusRender(info.Status),
			locked,
			formatAge(info.Updated),
			truncate(info.Request, 48))
	}
	return nil
}

// statusRender colors a status for terminal output.
func statusRender(status session.Status) string {
	switch status {
	case session.StatusCompleted:
		return okStyle.Render(status.String())
	case session.StatusFailed:
		return failStyle.Render(status.String())
	case session.StatusSuspended:
		return suspendStyle.Render(status.String())
	default:
		return status.String()
	}
}

// truncate shortens s to at most n runes with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
