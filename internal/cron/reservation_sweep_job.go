package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/putrabttart/dropstore-backend/pkg/logger"
	"github.com/putrabttart/dropstore-backend/pkg/metrics"
)

type expiredReleaser interface {
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}

// ReservationSweepJobParams configure the stale-reservation sweep.
type ReservationSweepJobParams struct {
	Logger    *logger.Logger
	Inventory expiredReleaser
	Metrics   *metrics.CronJobMetrics
	Now       func() time.Time
}

// NewReservationSweepJob builds the job that hands back stock whose
// reservation deadline passed while no running process was watching the
// order. The in-process reaper covers live orders; this covers restarts.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory store required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &reservationSweepJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

type reservationSweepJob struct {
	logg      *logger.Logger
	inventory expiredReleaser
	metrics   *metrics.CronJobMetrics
	now       func() time.Time
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	released, err := j.inventory.ReleaseExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("reservation sweep: %w", err)
	}
	j.metrics.AddReleased(j.Name(), released)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   now,
		"released": released,
	})
	j.logg.Info(logCtx, "stale reservation sweep complete")
	return nil
}
