// cmd/esiagate-migrate runs schema migrations without starting the
// server. Intended for CI pipelines and one-off operational use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dalemusser/esiagate/internal/app/store"
)

func main() {
	var (
		dsn  = flag.String("dsn", os.Getenv("ESIAGATE_POSTGRES_DSN"), "PostgreSQL DSN (defaults to ESIAGATE_POSTGRES_DSN)")
		down = flag.Bool("down", false, "roll back the most recent migration instead of migrating up")
	)
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "migrate: no DSN; pass -dsn or set ESIAGATE_POSTGRES_DSN")
		os.Exit(2)
	}

	db, err := store.Open(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: open: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *down {
		err = store.MigrateDown(ctx, db)
	} else {
		err = store.Migrate(ctx, db)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("migrations applied")
}
