package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/paylancer/paylancer/config"
)

const redacted = "********"

// redactedConfig returns a copy of cfg that is safe to print.
func redactedConfig(cfg *config.Configuration) config.Configuration {
	out := *cfg
	if out.Server.SecretKey != "" {
		out.Server.SecretKey = redacted
	}
	if out.Server.AdminKey != "" {
		out.Server.AdminKey = redacted
	}
	if len(out.Notification.Webhook.Headers) > 0 {
		headers := make(map[string]string, len(out.Notification.Webhook.Headers))
		for k := range out.Notification.Webhook.Headers {
			headers[k] = redacted
		}
		out.Notification.Webhook.Headers = headers
	}
	return out
}

func configCommands(_ *paylancerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "print the computed configuration with secrets redacted",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			data, err := json.MarshalIndent(redactedConfig(cfg), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
