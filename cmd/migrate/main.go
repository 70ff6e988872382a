package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"opsdesk.org/internal/migrate"
	"opsdesk.org/internal/obs"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("OPSDESK_PG_DSN"), "PostgreSQL DSN (defaults to OPSDESK_PG_DSN)")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "directory with *.up.sql / *.down.sql files")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "directory with idempotent seed files")
		timeout        = flag.Duration("timeout", 30*time.Second, "overall deadline for the command")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or OPSDESK_PG_DSN")
	}
	cmd := flag.Arg(0)
	if cmd == "" {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var applied []string
		applied, err = mgr.Status(ctx)
		if err == nil {
			if len(applied) == 0 {
				fmt.Println("no migrations applied")
			}
			for i, name := range applied {
				fmt.Printf("%3d  %s\n", i+1, name)
			}
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", cmd, err)
	}
	obs.LogEntry(map[string]any{
		"level": "info",
		"msg":   "migrate_complete",
		"cmd":   cmd,
	})
}
