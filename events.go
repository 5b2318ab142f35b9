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

	"github.com/sirupsen/logrus"

	"github.com/paylancer/paylancer/model"
)

// LogJobEvent appends an audit event. It never fails the caller; the returned
// outcome says whether the write went through.
func (p *Paylancer) LogJobEvent(ctx context.Context, event model.JobEvent) model.EventLogOutcome {
	outcome := model.EventLogOutcome{Attempted: true}
	if err := p.datasource.RecordJobEvent(ctx, &event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event_type": event.EventType,
			"job_id":     event.JobID,
			"payment_id": event.PaymentID,
		}).Warn("failed to record job event")
		outcome.Err = err
		return outcome
	}
	outcome.Succeeded = true
	return outcome
}
