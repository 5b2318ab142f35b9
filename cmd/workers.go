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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/paylancer/paylancer"
	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/internal/notification"
	redis_db "github.com/paylancer/paylancer/internal/redis-db"
)

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.WebhookQueue: 3,
		conf.Queue.CleanupQueue: 1,
	}
}

// reportExhaustedTask notifies once a task has used up its retries.
func reportExhaustedTask(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	logrus.WithError(err).WithFields(logrus.Fields{
		"task":    task.Type(),
		"retried": retried,
	}).Warn("task failed")

	if retried >= maxRetry {
		notification.NotifyError(fmt.Errorf("task %s failed after %d retries: %w", task.Type(), retried, err))
	}
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOption, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency:  conf.Queue.WebhookConcurrency,
		Queues:       initializeQueues(conf),
		ErrorHandler: asynq.ErrorHandlerFunc(reportExhaustedTask),
	}), nil
}

func initializeTaskHandlers(p *paylancerInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(p.cnf.Queue.WebhookQueue, paylancer.ProcessWebhook)
	mux.HandleFunc(p.cnf.Queue.CleanupQueue, p.paylancer.ProcessCleanup)
}

// initializeScheduler registers the periodic cleanup sweep.
func initializeScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	redisOption, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	scheduler := asynq.NewScheduler(redisOption, &asynq.SchedulerOpts{Location: time.UTC})
	spec := fmt.Sprintf("@every %s", conf.Jobs.CleanupInterval())
	if _, err := scheduler.Register(spec, paylancer.NewCleanupTask(conf)); err != nil {
		return nil, fmt.Errorf("error scheduling cleanup: %v", err)
	}
	return scheduler, nil
}

func startMonitoring(conf *config.Configuration) {
	redisOption, err := redis_db.AsynqOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		logrus.WithError(err).Error("monitoring disabled")
		return
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			logrus.WithError(err).Error("could not start asynqmon server")
		}
	}()
}

// workerCommands starts webhook delivery, the cleanup scheduler and the
// queue monitor.
func workerCommands(p *paylancerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start paylancer workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := p.cnf

			shutdown, err := initializeObservability(ctx, conf, "paylancer-workers")
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			scheduler, err := initializeScheduler(conf)
			if err != nil {
				log.Fatal(err)
			}
			if err := scheduler.Start(); err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			startMonitoring(conf)

			mux := asynq.NewServeMux()
			initializeTaskHandlers(p, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
