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
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/internal/request"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackMessage(project string, err error, at time.Time) slackMessage {
	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Error From %s", project), Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", err)}}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", at.Format(time.RFC822))}}},
	}}
}

// SlackNotification posts err to the configured Slack webhook.
func SlackNotification(ctx context.Context, err error) error {
	conf, cfgErr := config.Fetch()
	if cfgErr != nil {
		return cfgErr
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return nil
	}

	msg := buildSlackMessage(conf.ProjectName, err, time.Now())
	_, postErr := request.PostJSON(ctx, conf.Notification.Slack.WebhookUrl, nil, msg, nil)
	return postErr
}

// NotifyError logs systemError and reports it to Slack in the background.
// Failures to notify are logged and otherwise ignored.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		ctx, cancel := context.WithTimeout(context.Background(), request.DefaultTimeout)
		defer cancel()
		if err := SlackNotification(ctx, systemError); err != nil {
			logrus.WithError(err).Warn("slack notification failed")
		}
	}(systemError)
}
