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

	"theinternetcompany.one/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn        = flag.String("dsn", os.Getenv("TIC_PG_DSN"), "PostgreSQL DSN")
		schemaPath = flag.String("migrations", "migrations", "Path to SQL migrations")
		seedsPath  = flag.String("seeds", "seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or TIC_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner := migrate.New(db, *schemaPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		applied, err := runner.Apply(ctx)
		if err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		name, err := runner.Rollback(ctx)
		if err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		fmt.Println("rolled back", name)
	case "seed":
		applied, err := runner.Seed(ctx)
		if err != nil {
			log.Fatalf("migrate seed: %v", err)
		}
		for _, name := range applied {
			fmt.Println("seeded", name)
		}
	case "status":
		history, err := runner.Applied(ctx)
		if err != nil {
			log.Fatalf("migrate status: %v", err)
		}
		for _, name := range history {
			fmt.Println(name)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
}
