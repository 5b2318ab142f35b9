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
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

// cleanupCommands runs a single cleanup sweep outside the scheduler.
func cleanupCommands(p *paylancerInstance) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "expire stale jobs and reservations once",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			summary, err := p.paylancer.CleanupExpired(ctx)
			if err != nil {
				log.Fatalf("Error running cleanup: %v", err)
			}

			data, err := json.MarshalIndent(summary, "", "    ")
			if err != nil {
				log.Fatalf("Error printing summary: %v", err)
			}
			fmt.Println(string(data))
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "maximum time the sweep may take")

	return cmd
}
