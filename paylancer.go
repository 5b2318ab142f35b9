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
	"embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/database"
	"github.com/paylancer/paylancer/internal/cache"
	"github.com/paylancer/paylancer/internal/eip3009"
	redis_db "github.com/paylancer/paylancer/internal/redis-db"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("paylancer")

// Paylancer is the job service. It holds no shared mutable state of its own;
// every coordination point goes through the datasource.
type Paylancer struct {
	datasource database.IDataSource
	queue      *Queue
	redis      redis.UniversalClient
	cache      cache.Cache
	verifier   eip3009.Verifier
	now        func() time.Time
}

// Option customises a Paylancer built with New.
type Option func(*Paylancer)

func WithVerifier(v eip3009.Verifier) Option {
	return func(p *Paylancer) { p.verifier = v }
}

// WithClock replaces the wall clock used for liveness windows.
func WithClock(now func() time.Time) Option {
	return func(p *Paylancer) { p.now = now }
}

func WithQueue(q *Queue) Option {
	return func(p *Paylancer) { p.queue = q }
}

// WithRedis enables the distributed lock used by scheduled cleanup.
func WithRedis(client redis.UniversalClient) Option {
	return func(p *Paylancer) { p.redis = client }
}

func WithCache(c cache.Cache) Option {
	return func(p *Paylancer) { p.cache = c }
}

// New builds a service around db. Without options it verifies signatures
// locally, uses the system clock, and skips webhooks, caching and locking.
func New(db database.IDataSource, opts ...Option) *Paylancer {
	p := &Paylancer{
		datasource: db,
		verifier:   eip3009.NewVerifier(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPaylancer wires the service from the loaded configuration: Redis for
// the cache and lock, and the asynq client for webhooks.
func NewPaylancer(db database.IDataSource) (*Paylancer, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	queue, err := NewQueue(cfg)
	if err != nil {
		return nil, err
	}

	return New(db,
		WithRedis(redisClient.Client()),
		WithCache(cache.NewCache(redisClient.Client())),
		WithQueue(queue),
	), nil
}

// Datasource exposes the store the service was built with.
func (p *Paylancer) Datasource() database.IDataSource {
	return p.datasource
}

func (p *Paylancer) nowUnix() int64 {
	return p.now().Unix()
}
