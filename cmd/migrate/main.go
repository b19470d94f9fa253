package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/recognition/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

const envDSN = "RECOGNITION_DB_DSN"

// Same variables the server reads, so a single .env drives both binaries.
var databaseEnv = &database.Env{
	Host:     "RECOGNITION_DB_HOST",
	Port:     "RECOGNITION_DB_PORT",
	Name:     "RECOGNITION_DB_NAME",
	User:     "RECOGNITION_DB_USER",
	Password: "RECOGNITION_DB_PASSWORD",
	SSLMode:  "RECOGNITION_DB_SSL_MODE",
}

func main() {
	var (
		dsn     = flag.String("dsn", "", "Database URL (default: $RECOGNITION_DB_DSN, then $RECOGNITION_DB_*)")
		up      = flag.Bool("up", false, "Apply all pending migrations")
		down    = flag.Bool("down", false, "Revert all migrations")
		steps   = flag.Int("steps", 0, "Apply N migrations (negative reverts)")
		version = flag.Bool("version", false, "Print the current schema version")
		force   = flag.Int("force", -1, "Set the schema version without running migrations (clears dirty)")
		lock    = flag.Duration("lock-timeout", 15*time.Second, "How long to wait for the migration lock")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("load .env: %v", err)
	}

	url, err := resolveURL(*dsn)
	if err != nil {
		log.Fatalf("resolve database url: %v", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		log.Fatalf("open embedded migrations: %v", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer m.Close()
	m.LockTimeout = *lock

	forced := false
	flag.Visit(func(f *flag.Flag) {
		forced = forced || f.Name == "force"
	})

	switch {
	case *version:
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("version: none")
			return
		}
		if err != nil {
			log.Fatalf("read version: %v", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
	case forced:
		if err := m.Force(*force); err != nil {
			log.Fatalf("force version %d: %v", *force, err)
		}
		fmt.Printf("forced to version %d\n", *force)
	case *up:
		report("up", m.Up())
	case *down:
		report("down", m.Down())
	case *steps != 0:
		report(fmt.Sprintf("%d steps", *steps), m.Steps(*steps))
	default:
		fmt.Println("usage: migrate [-dsn URL] (-up | -down | -steps N | -version | -force N)")
		flag.PrintDefaults()
		os.Exit(2)
	}
}

func report(op string, err error) {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		fmt.Printf("%s: schema already current\n", op)
	case err != nil:
		log.Fatalf("%s: %v", op, err)
	default:
		fmt.Printf("%s: applied\n", op)
	}
}

// resolveURL prefers an explicit URL, then RECOGNITION_DB_DSN, then a URL
// assembled from the discrete RECOGNITION_DB_* settings.
func resolveURL(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}
	if dsn := os.Getenv(envDSN); dsn != "" {
		return dsn, nil
	}

	var cfg database.Config
	if err := cfg.Finalize(databaseEnv); err != nil {
		return "", fmt.Errorf("set -dsn, %s, or %s/%s: %w", envDSN, databaseEnv.Name, databaseEnv.User, err)
	}
	return cfg.URL(), nil
}
