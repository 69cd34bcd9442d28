package locks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/metrics"
)

// StartStatsWorker starts a background goroutine that periodically publishes
// the number of locked projects and held slots.
func StartStatsWorker(ctx context.Context, manager *Manager, interval time.Duration, logger *zap.Logger) {
	if manager == nil {
		logger.Error("Cannot start lock stats worker: manager is nil")
		return
	}

	go func() {
		logger.Info("Starting lock stats worker",
			zap.Duration("interval", interval))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		refreshStats(ctx, manager, logger)
		for {
			select {
			case <-ticker.C:
				refreshStats(ctx, manager, logger)
			case <-ctx.Done():
				logger.Info("Lock stats worker shutting down")
				return
			}
		}
	}()
}

func refreshStats(parent context.Context, manager *Manager, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	projects, held, err := manager.Stats(ctx)
	if err != nil {
		logger.Error("Failed to collect lock stats", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("locks", "stats").Inc()
		return
	}

	metrics.ActiveProjects.Set(float64(projects))
	metrics.ActiveLocks.Set(float64(held))
}

// Stats returns the number of projects holding at least one slot and the
// total number of held slots.
func (m *Manager) Stats(ctx context.Context) (projects int, held int, err error) {
	snapshot, err := m.store.Snapshot(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, jobs := range snapshot {
		if jobs.Len() == 0 {
			continue
		}
		projects++
		held += jobs.Len()
	}
	return projects, held, nil
}
