// Package main walks the embedded database migrations up and down. The API
// server applies pending migrations itself on startup; this tool exists for
// operators who need to inspect, roll back, or repair schema state by hand.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"

	"github.com/proteinlens/proteinlens/internal/platform/migrations"
)

func main() {
	dsn := flag.String("database-url", "", "Postgres connection string (defaults to DATABASE_URL)")
	flag.Usage = usage
	flag.Parse()

	_ = godotenv.Load()
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *dsn == "" {
		log.Fatal("No database configured: pass -database-url or set DATABASE_URL")
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	src, err := iofs.New(migrations.FS(), migrations.Dir)
	if err != nil {
		log.Fatalf("Failed to open embedded migrations: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer m.Close()

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		// One step at a time. Repeat to walk further back.
		err = m.Steps(-1)
	case "version":
		reportVersion(m)
		return
	case "force":
		if len(args) < 2 {
			log.Fatal("force requires a version argument")
		}
		v, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			log.Fatalf("Invalid version %q: %v", args[1], convErr)
		}
		err = m.Force(v)
	default:
		usage()
		os.Exit(2)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No change")
		return
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	reportVersion(m)
}

func reportVersion(m *migrate.Migrate) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Println("No migrations applied")
		return
	}
	if err != nil {
		log.Fatalf("Failed to read version: %v", err)
	}
	if dirty {
		log.Printf("Version %d (dirty)", v)
		return
	}
	log.Printf("Version %d", v)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: migrate [-database-url DSN] <up|down|version|force N>\n\n")
	flag.PrintDefaults()
}

func init() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[migrate] ")
}
