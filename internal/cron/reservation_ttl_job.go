package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
)

// reservationCoordinator is the slice of the group coordinator this job needs.
type reservationCoordinator interface {
	ExpireStaleReservations(ctx context.Context, window time.Duration) (int, error)
	QueuePaymentNudges(ctx context.Context, window, lead time.Duration) (int, error)
}

// ReservationTTLJobParams configure the reservation lifecycle job.
type ReservationTTLJobParams struct {
	Logger      *logger.Logger
	Coordinator reservationCoordinator
	Expiry      config.ExpiryConfig
}

// NewReservationTTLJob builds the cron job that nudges pending reservations
// approaching their payment deadline and expires the ones past it.
func NewReservationTTLJob(params ReservationTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Coordinator == nil {
		return nil, fmt.Errorf("group coordinator required")
	}
	if params.Expiry.ReservationWindow <= 0 {
		return nil, fmt.Errorf("reservation window must be positive")
	}
	if params.Expiry.NudgeLead <= 0 || params.Expiry.NudgeLead >= params.Expiry.ReservationWindow {
		return nil, fmt.Errorf("nudge lead must be positive and shorter than the reservation window")
	}
	return &reservationTTLJob{
		logg:        params.Logger,
		coordinator: params.Coordinator,
		window:      params.Expiry.ReservationWindow,
		lead:        params.Expiry.NudgeLead,
	}, nil
}

type reservationTTLJob struct {
	logg        *logger.Logger
	coordinator reservationCoordinator
	window      time.Duration
	lead        time.Duration
}

func (j *reservationTTLJob) Name() string { return "reservation-ttl" }

func (j *reservationTTLJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.nudge(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.expire(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *reservationTTLJob) nudge(ctx context.Context) error {
	queued, err := j.coordinator.QueuePaymentNudges(ctx, j.window, j.lead)
	if err != nil {
		return fmt.Errorf("queue payment nudges: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "count", queued)
	j.logg.Info(logCtx, "payment nudge loop complete")
	return nil
}

func (j *reservationTTLJob) expire(ctx context.Context) error {
	expired, err := j.coordinator.ExpireStaleReservations(ctx, j.window)
	if err != nil {
		return fmt.Errorf("expire stale reservations: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "count", expired)
	j.logg.Info(logCtx, "reservation expiry loop complete")
	return nil
}
