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
	"slices"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/paylancer/paylancer/config"
	redis_db "github.com/paylancer/paylancer/internal/redis-db"
)

// Queue wraps the asynq client used for background work.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue connects to the Redis instance named in the configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opts, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:    asynq.NewClient(opts),
		Inspector: asynq.NewInspector(opts),
	}, nil
}

// EnqueueWebhook schedules delivery of a webhook. Each queue name doubles as
// its task type.
func (q *Queue) EnqueueWebhook(ctx context.Context, hook NewWebhook) error {
	ctx, span := tracer.Start(ctx, "Enqueue webhook")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}

	task := asynq.NewTask(cfg.Queue.WebhookQueue, payload,
		asynq.Queue(cfg.Queue.WebhookQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"event": hook.Event, "task_id": info.ID}).Debug("webhook enqueued")
	return nil
}

// NewCleanupTask builds the periodic sweep task registered with the scheduler.
func NewCleanupTask(conf *config.Configuration) *asynq.Task {
	return asynq.NewTask(conf.Queue.CleanupQueue, nil,
		asynq.Queue(conf.Queue.CleanupQueue),
		asynq.MaxRetry(0),
	)
}

// FailedWebhook is a delivery that exhausted its retries and was archived.
type FailedWebhook struct {
	TaskID       string          `json:"taskId"`
	Event        string          `json:"event"`
	Retried      int             `json:"retried"`
	LastError    string          `json:"lastError,omitempty"`
	LastFailedAt *time.Time      `json:"lastFailedAt,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// FailedWebhooks lists up to limit archived deliveries from queue. A queue
// that has never held a task has none.
func (q *Queue) FailedWebhooks(queue string, limit int) ([]FailedWebhook, error) {
	tasks, err := q.Inspector.ListArchivedTasks(queue, asynq.PageSize(limit))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return []FailedWebhook{}, nil
	}
	if err != nil {
		return nil, err
	}

	failed := make([]FailedWebhook, 0, len(tasks))
	for _, task := range tasks {
		entry := FailedWebhook{
			TaskID:    task.ID,
			Retried:   task.Retried,
			LastError: task.LastErr,
			Payload:   json.RawMessage(task.Payload),
		}
		if !task.LastFailedAt.IsZero() {
			at := task.LastFailedAt
			entry.LastFailedAt = &at
		}
		var hook struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(task.Payload, &hook); err == nil {
			entry.Event = hook.Event
		} else {
			entry.Payload = nil
		}
		failed = append(failed, entry)
	}
	return failed, nil
}

// RetryFailedWebhooks moves every archived delivery in queue back to pending.
func (q *Queue) RetryFailedWebhooks(queue string) (int, error) {
	queues, err := q.Inspector.Queues()
	if err != nil {
		return 0, err
	}
	if !slices.Contains(queues, queue) {
		return 0, nil
	}
	return q.Inspector.RunAllArchivedTasks(queue)
}

// Close releases the client and inspector connections.
func (q *Queue) Close() error {
	return errors.Join(q.Client.Close(), q.Inspector.Close())
}
