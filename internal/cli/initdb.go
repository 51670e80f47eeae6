package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-news/reaper/internal/domain"
	"github.com/agentic-news/reaper/internal/repository"
)

func newInitCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := domain.FromEnv()
			if dbPath != "" {
				cfg.Repository.Driver = "sqlite"
				cfg.Repository.SQLitePath = dbPath
			}

			// Opening the repository runs the migrations.
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer repo.Close()

			target := cfg.Repository.SQLitePath
			if cfg.Repository.Driver == "postgres" {
				target = cfg.Repository.PostgresDB
			}
			fmt.Printf("Database initialized at %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db-path", "",
		"path to SQLite database (default: configured path)")

	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Display the database schema",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(strings.Join(repository.AllSchemas(), "\n"))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reaper %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
