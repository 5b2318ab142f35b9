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
package redlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("lock is already held")

const releaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// Locker is a single-key Redis lock. The value identifies the holder so a
// lock that expired and was taken by someone else is never released by us.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{client: client, key: key, value: value}
}

func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	released, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if released == int64(0) {
		return fmt.Errorf("unlock failed for key %s: lock expired or held by another owner", l.key)
	}
	return nil
}

// RunOnce executes fn under the lock and reports false without calling fn when
// the lock is held elsewhere. After a successful fn the lock is left to expire,
// so no other caller runs fn again within ttl. A failed fn releases it.
func (l *Locker) RunOnce(ctx context.Context, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	if err := l.Lock(ctx, ttl); err != nil {
		if errors.Is(err, ErrLockHeld) {
			return false, nil
		}
		return false, err
	}
	fnErr := fn(ctx)
	if fnErr == nil {
		return true, nil
	}
	if err := l.Unlock(ctx); err != nil {
		return true, errors.Join(fnErr, err)
	}
	return true, fnErr
}
