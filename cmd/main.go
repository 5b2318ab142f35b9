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
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/paylancer/paylancer"
	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/database"
	"github.com/paylancer/paylancer/internal/notification"
	"github.com/paylancer/paylancer/internal/request"
)

// Paylancer is the CLI application.
type Paylancer struct {
	cmd *cobra.Command
}

// paylancerInstance carries the service and the loaded configuration to
// every subcommand.
type paylancerInstance struct {
	paylancer *paylancer.Paylancer
	cnf       *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file and builds the service before any
// subcommand runs.
func preRun(app *paylancerInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			log.Fatal("error loading config ", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		service, err := setupPaylancer(cnf)
		if err != nil {
			ctx, cancel := context.WithTimeout(context.Background(), request.DefaultTimeout)
			if notifyErr := notification.SlackNotification(ctx, err); notifyErr != nil {
				logrus.WithError(notifyErr).Warn("slack notification failed")
			}
			cancel()
			log.Fatal(err)
		}

		app.paylancer = service
		app.cnf = cnf
		return nil
	}
}

func setupPaylancer(cfg *config.Configuration) (*paylancer.Paylancer, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	service, err := paylancer.NewPaylancer(db)
	if err != nil {
		return nil, fmt.Errorf("error creating paylancer: %v", err)
	}
	return service, nil
}

func NewCLI() *Paylancer {
	var configFile string
	p := &paylancerInstance{}

	rootCmd := &cobra.Command{
		Use:   "paylancer",
		Short: "Gasless EIP-3009 payment relay",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./paylancer.json", "Configuration file for paylancer")
	rootCmd.PersistentPreRunE = preRun(p, &configFile)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(cleanupCommands(p))
	rootCmd.AddCommand(configCommands(p))

	return &Paylancer{cmd: rootCmd}
}

func (p Paylancer) executeCLI() {
	if err := p.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
