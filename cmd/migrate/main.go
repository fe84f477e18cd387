package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"sak/pkg/config"
	"sak/pkg/logger"
)

const usage = "Usage: migrate [-path DIR] up|down|version|force VERSION"

func main() {
	dir := flag.String("path", "migrations", "directory holding the .sql migrations")
	flag.Parse()

	log := logger.New("sak-migrate")
	cfg := config.Load()

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required", nil)
	}
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal("Failed to create migration driver", map[string]interface{}{"error": err.Error()})
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+*dir, "postgres", driver)
	if err != nil {
		log.Fatal("Failed to create migrate instance", map[string]interface{}{
			"error": err.Error(),
			"path":  *dir,
		})
	}

	if err := run(m, flag.Args()); err != nil {
		log.Fatal("Migration command failed", map[string]interface{}{
			"command": flag.Arg(0),
			"error":   err.Error(),
		})
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info("No migrations applied", nil)
	case err != nil:
		log.Fatal("Failed to get version", map[string]interface{}{"error": err.Error()})
	default:
		log.Info("Schema version", map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		})
	}
}

// Migrator is the part of *migrate.Migrate the commands drive.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
}

// run executes one command. version only reports, which main does after
// every command.
func run(m Migrator, args []string) error {
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "version":
	case "force":
		if len(args) < 2 {
			return errors.New(usage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return m.Force(version)
	default:
		return fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
	return nil
}
