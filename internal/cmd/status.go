package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"maquette/internal/session"
)

var statusShowDecisions bool

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show one session's pipeline state",
	Long: `Show a session's current stage, per-stage task ledger, and recorded
artifacts. With --decisions, the coordinator's routing decisions are
printed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusShowDecisions, "decisions", false, "Show routing decisions")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.log.Close()

	ctx := cmd.Context()
	sessionID := args[0]

	sess, err := a.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("session:  %s\n", sess.ID)
	fmt.Printf("request:  %s\n", sess.Request)
	fmt.Printf("stage:    %s\n", stageStyle.Render(sess.Stage.String()))
	fmt.Printf("status:   %s\n", statusRender(sess.Status))
	fmt.Printf("updated:  %s ago\n", formatAge(sess.Updated))

	ledger, err := a.store.Tasks(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(ledger.Tasks) > 0 {
		fmt.Printf("\n%s\n", headerStyle.Render("tasks"))
		for _, stage := range orderedStages() {
			t := ledger.Task(stage)
			if t == nil {
				continue
			}
			line := fmt.Sprintf("  %-22s  %-10s  attempt %d/%d", t.Stage, t.Status, t.Attempt, t.MaxAttempt)
			if t.RevisionRound > 0 {
				line += fmt.Sprintf("  revision %d", t.RevisionRound)
			}
			if t.LastDiagnostic != "" && t.Status != session.TaskDone {
				line += "\n" + dimStyle.Render("    "+truncate(t.LastDiagnostic, 100))
			}
			fmt.Println(line)
		}
	}

	artifacts, err := a.store.Artifacts(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(artifacts) > 0 {
		fmt.Printf("\n%s\n", headerStyle.Render("artifacts"))
		for _, art := range artifacts {
			fmt.Printf("  %-36s  %-14s  %-22s  %s\n", art.ID, art.Kind, art.Stage, art.Ref)
		}
	}

	if statusShowDecisions {
		decisions, err := a.store.Decisions(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(decisions) > 0 {
			fmt.Printf("\n%s\n", headerStyle.Render("decisions"))
			for _, d := range decisions {
				fmt.Printf("  %3d  %-22s  %s\n", d.Seq, d.Stage, d.Text)
			}
		}
	}

	return nil
}

// orderedStages returns all stages in pipeline order for display.
func orderedStages() []session.Stage {
	stages := []session.Stage{
		session.StageIntake,
		session.StagePlanning,
		session.StageCreativeSpec,
		session.StageCodeSynthesis,
		session.StageExecution,
	}
	stages = append(stages, session.ProgressionStages()...)
	return append(stages,
		session.StageQA,
		session.StageRendering,
	)
}
