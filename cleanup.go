/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package paylancer

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/paylancer/paylancer/config"
	redlock "github.com/paylancer/paylancer/internal/lock"
	"github.com/paylancer/paylancer/model"
)

const cleanupLockKey = "paylancer:cleanup-lock"

// CleanupExpired expires pending jobs and reservations whose windows have
// closed and deletes terminal reservations past the retention window. Every
// statement is a conditional bulk write, so repeated or concurrent runs are
// safe and a second run over the same data changes nothing.
func (p *Paylancer) CleanupExpired(ctx context.Context) (*model.CleanupSummary, error) {
	ctx, span := tracer.Start(ctx, "CleanupExpired")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	summary := &model.CleanupSummary{RanAt: now}

	if summary.ExpiredJobs, err = p.datasource.ExpirePendingJobs(ctx, now); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if summary.ExpiredReservations, err = p.datasource.ExpirePendingReservations(ctx, now); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if summary.DeletedReservations, err = p.datasource.DeleteTerminalReservations(ctx, now.Add(-cfg.Jobs.ReservationRetention())); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.expired_jobs", summary.ExpiredJobs),
		attribute.Int64("cleanup.expired_reservations", summary.ExpiredReservations),
		attribute.Int64("cleanup.deleted_reservations", summary.DeletedReservations),
	)

	p.LogJobEvent(ctx, model.JobEvent{
		EventType:  model.EventCleanupAction,
		StatusCode: http.StatusOK,
		Message:    "jobs cleanup completed",
		Metadata: map[string]interface{}{
			"expiredJobs":         summary.ExpiredJobs,
			"expiredReservations": summary.ExpiredReservations,
			"deletedReservations": summary.DeletedReservations,
		},
	})
	p.sendWebhook(ctx, NewWebhook{Event: "jobs.cleanup", Payload: summary})

	logrus.WithFields(logrus.Fields{
		"total":                summary.Total(),
		"expired_jobs":         summary.ExpiredJobs,
		"expired_reservations": summary.ExpiredReservations,
		"deleted_reservations": summary.DeletedReservations,
	}).Info("cleanup sweep finished")
	return summary, nil
}

// ScheduledCleanup runs the sweep at most once across replicas per interval.
// The lock outlives a successful sweep and expires just before the next tick.
// Without Redis it simply runs the sweep.
func (p *Paylancer) ScheduledCleanup(ctx context.Context) error {
	if p.redis == nil {
		_, err := p.CleanupExpired(ctx)
		return err
	}

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	locker := redlock.NewLocker(p.redis, cleanupLockKey, uuid.NewString())
	ran, err := locker.RunOnce(ctx, cleanupLockTTL(cfg.Jobs.CleanupInterval()), func(ctx context.Context) error {
		_, err := p.CleanupExpired(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if !ran {
		logrus.Debug("cleanup skipped, another worker holds the lock")
	}
	return nil
}

// cleanupLockTTL leaves a tenth of the interval so the next tick finds the
// lock free.
func cleanupLockTTL(interval time.Duration) time.Duration {
	return interval - interval/10
}

// ProcessCleanup is the asynq handler for the periodic sweep task.
func (p *Paylancer) ProcessCleanup(ctx context.Context, _ *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return p.ScheduledCleanup(ctx)
}
