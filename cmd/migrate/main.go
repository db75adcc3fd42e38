package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"golang-market-insight/internal/executor/config"
	"golang-market-insight/pkg/common"
	pkgconfig "golang-market-insight/pkg/config"
)

var (
	configPath     string
	migrationsPath string
)

func getDSN(db pkgconfig.Database) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, db.Password, db.Host, db.Port, db.DBName, db.SSLMode)
}

// newMigrator returns nil when the configured store keeps nothing in postgres.
func newMigrator() *migrate.Migrate {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Store.Driver == common.StoreDriverMemory {
		fmt.Println("Store driver is memory, nothing to migrate.")
		return nil
	}

	m, err := migrate.New("file://"+migrationsPath, getDSN(cfg.Database))
	if err != nil {
		log.Fatalf("Failed to create migration instance: %v", err)
	}
	return m
}

func closeMigrator(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Printf("Migration source error on close: %v\n", srcErr)
	}
	if dbErr != nil {
		log.Printf("Migration database error on close: %v\n", dbErr)
	}
}

func apply(step func(*migrate.Migrate) error, done string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		m := newMigrator()
		if m == nil {
			return
		}
		defer closeMigrator(m)

		if err := step(m); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("No migrations to apply.")
				return
			}
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println(done)
	}
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all available database migrations",
	Run:   apply(func(m *migrate.Migrate) error { return m.Up() }, "Applied migrations successfully."),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the last database migration",
	Run:   apply(func(m *migrate.Migrate) error { return m.Steps(-1) }, "Reverted last migration successfully."),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied migration version",
	Run: func(cmd *cobra.Command, args []string) {
		m := newMigrator()
		if m == nil {
			return
		}
		defer closeMigrator(m)

		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied.")
			return
		}
		if err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		}
		fmt.Printf("Version %d (dirty: %t)\n", version, dirty)
	},
}

func main() {
	rootCmd := &cobra.Command{Use: "migrate"}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "path", "migrations", "Directory holding the migration files")

	rootCmd.AddCommand(upCmd, downCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing migrate CLI: %s\n", err)
		os.Exit(1)
	}
}
