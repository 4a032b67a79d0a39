package pipeline

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"maquette/internal/session"
)

// runProgression drives the progression sub-stages (texturing, rigging,
// scene assembly, lighting, camera, animation) as one concurrent block. The
// sub-stages are independent of each other, so they run under a bounded
// worker pool; each keeps its own task, its own retry ladder, and its own
// artifacts. Sub-stages already done in the ledger are skipped, so a resumed
// run only re-drives what is left.
func (m *Machine) runProgression(ctx context.Context, sessionID string) error {
	ledger, err := m.store.Tasks(ctx, sessionID)
	if err != nil {
		return err
	}

	var pending []session.Stage
	for _, stage := range session.ProgressionStages() {
		if t := ledger.Task(stage); t != nil && t.Status == session.TaskDone {
			continue
		}
		pending = append(pending, stage)
	}
	if len(pending) == 0 {
		return nil
	}

	m.log.WithSession(sessionID).Info("running progression block",
		"stages", len(pending), "workers", m.workers)

	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(m.workers).
		WithCancelOnError().
		WithFirstError()

	for _, stage := range pending {
		stage := stage
		p.Go(func(ctx context.Context) error {
			return m.runStage(ctx, sessionID, stage)
		})
	}
	return p.Wait()
}
