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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/request"
)

// NewWebhook is the body posted to the configured webhook URL.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// webhookBackOff paces the in-task delivery retries. asynq retries the task
// itself once these are spent.
var webhookBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// SendWebhook enqueues hook for delivery. It is a no-op when no webhook URL is
// configured or the service runs without a queue.
func (p *Paylancer) SendWebhook(ctx context.Context, hook NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" || p.queue == nil {
		return nil
	}
	return p.queue.EnqueueWebhook(ctx, hook)
}

// sendWebhook is SendWebhook for paths where delivery must not affect the result.
func (p *Paylancer) sendWebhook(ctx context.Context, hook NewWebhook) {
	if err := p.SendWebhook(ctx, hook); err != nil {
		logrus.WithError(err).WithField("event", hook.Event).Error("failed to enqueue webhook")
	}
}

// ListFailedWebhooks returns archived deliveries, newest page first, bounded
// by the jobs list limits.
func (p *Paylancer) ListFailedWebhooks(ctx context.Context, limit int) ([]FailedWebhook, error) {
	_, span := tracer.Start(ctx, "ListFailedWebhooks")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if p.queue == nil {
		return nil, errQueueUnavailable
	}
	failed, err := p.queue.FailedWebhooks(conf.Queue.WebhookQueue, conf.Jobs.ClampListLimit(limit))
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list failed webhooks", err)
	}
	return failed, nil
}

// RetryFailedWebhooks requeues every archived delivery and reports how many moved.
func (p *Paylancer) RetryFailedWebhooks(ctx context.Context) (int, error) {
	_, span := tracer.Start(ctx, "RetryFailedWebhooks")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	if p.queue == nil {
		return 0, errQueueUnavailable
	}
	n, err := p.queue.RetryFailedWebhooks(conf.Queue.WebhookQueue)
	if err != nil {
		span.RecordError(err)
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retry webhooks", err)
	}
	logrus.WithField("requeued", n).Info("failed webhooks requeued")
	return n, nil
}

var errQueueUnavailable = apierror.NewAPIError(apierror.ErrBadRequest, "Webhook queue is not configured", nil)

// ProcessWebhook delivers a queued webhook. Client errors are not retried.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var hook NewWebhook
	if err := json.Unmarshal(task.Payload(), &hook); err != nil {
		return errors.Join(asynq.SkipRetry, err)
	}

	deliver := func() error {
		_, err := request.PostJSON(ctx, conf.Notification.Webhook.Url, conf.Notification.Webhook.Headers, hook, nil)
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(deliver, backoff.WithContext(webhookBackOff(), ctx)); err != nil {
		logrus.WithError(err).WithField("event", hook.Event).Warn("webhook delivery failed")
		return err
	}
	logrus.WithField("event", hook.Event).Info("webhook delivered")
	return nil
}
