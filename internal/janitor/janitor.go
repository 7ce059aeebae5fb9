// Package janitor sweeps experiments orphaned when a creation saga's
// compensating delete failed. It is the scheduled consumer of the saga's
// orphan logs; the saga itself never retries.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/moeltae/sci-bom/internal/logging"
	"github.com/moeltae/sci-bom/internal/supabase"
)

// sweepTimeout bounds one sweep run.
const sweepTimeout = 2 * time.Minute

// Janitor periodically deletes experiments that have no items and are older
// than the grace window. A committed saga always leaves at least one item,
// so an old zero-item experiment can only be a compensation leftover.
type Janitor struct {
	client   *supabase.Client
	logger   *logging.Logger
	schedule string
	grace    time.Duration
	cron     *cron.Cron
	now      func() time.Time
}

// New creates a janitor. The client must be the service-role client:
// orphans belong to arbitrary users.
func New(client *supabase.Client, logger *logging.Logger, schedule string, grace time.Duration) *Janitor {
	return &Janitor{
		client:   client,
		logger:   logger,
		schedule: schedule,
		grace:    grace,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start registers the sweep on the cron schedule and starts it.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		removed, err := j.Sweep(ctx)
		if err != nil {
			j.logger.WithError(err).Error("orphan sweep failed")
			return
		}
		if removed > 0 {
			j.logger.WithField("removed", removed).Info("orphan sweep completed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	j.cron.Start()
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// orphanRow is the projection the sweep selects.
type orphanRow struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []struct {
		ID string `json:"id"`
	} `json:"items"`
}

// Sweep deletes orphaned experiments older than the grace window and
// returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-j.grace).Format(time.RFC3339)

	resp, err := j.client.From("experiments").
		Select("id,createdAt,items(id)").
		Lt("createdAt", cutoff).
		Execute(ctx)
	if err != nil {
		return 0, fmt.Errorf("list candidates: %w", err)
	}
	if err := resp.Error(); err != nil {
		return 0, err
	}

	var rows []orphanRow
	if err := resp.JSON(&rows); err != nil {
		return 0, fmt.Errorf("decode candidates: %w", err)
	}

	removed := 0
	for _, row := range rows {
		if len(row.Items) > 0 {
			continue
		}

		delResp, err := j.client.From("experiments").Eq("id", row.ID).ExecuteDelete(ctx)
		if err != nil {
			j.logger.WithError(err).WithField("experiment_id", row.ID).Warn("orphan delete failed")
			continue
		}
		if err := delResp.Error(); err != nil {
			j.logger.WithError(err).WithField("experiment_id", row.ID).Warn("orphan delete failed")
			continue
		}

		j.logger.WithFields(map[string]interface{}{
			"experiment_id": row.ID,
			"created_at":    row.CreatedAt,
		}).Info("orphaned experiment removed")
		removed++
	}

	return removed, nil
}
