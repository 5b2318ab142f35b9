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
	"database/sql"
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/paylancer/paylancer"
	"github.com/paylancer/paylancer/database"
)

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: paylancer.SQLFiles,
		Root:       "sql",
	}
}

// openMigrationDB connects and makes sure the schema holding the
// migration table exists.
func openMigrationDB(p *paylancerInstance) (*sql.DB, error) {
	db, err := database.ConnectDB(p.cnf.DataSource.Dns)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}
	if err := database.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating schema: %v", err)
	}
	migrate.SetSchema(database.Schema)
	return db, nil
}

func migrateCommands(p *paylancerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run paylancer database migrations",
	}

	cmd.AddCommand(migrateUpCommands(p))
	cmd.AddCommand(migrateDownCommands(p))

	return cmd
}

func migrateUpCommands(p *paylancerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB(p)
			if err != nil {
				log.Fatal(err)
			}
			defer db.Close()

			n, err := migrate.Exec(db, "postgres", migrationSource(), migrate.Up)
			if err != nil {
				log.Fatalf("Error migrating up: %v", err)
			}
			fmt.Printf("Applied %d migrations!\n", n)
		},
	}

	return cmd
}

func migrateDownCommands(p *paylancerInstance) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB(p)
			if err != nil {
				log.Fatal(err)
			}
			defer db.Close()

			n, err := migrate.ExecMax(db, "postgres", migrationSource(), migrate.Down, steps)
			if err != nil {
				log.Fatalf("Error migrating down: %v", err)
			}
			fmt.Printf("Rolled back %d migrations!\n", n)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back, 0 for all")

	return cmd
}
