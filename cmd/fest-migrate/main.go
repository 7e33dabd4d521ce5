package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"fest-ticketing/internal/config"
	"fest-ticketing/internal/models"
)

// Dev-environment schema bootstrap built from the bun models. The SQL
// files under migrations/ are the production path; this binary is for
// spinning up a fresh local database quickly.
func main() {
	seed := flag.Bool("seed", false, "insert a sample user after creating tables")
	drop := flag.Bool("drop", false, "drop all tables first")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open Postgres: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	tables := []interface{}{
		(*models.User)(nil),
		(*models.Ticket)(nil),
		(*models.SeasonCounter)(nil),
		(*models.ScanLog)(nil),
		(*models.AuditLog)(nil),
	}

	if *drop {
		log.Println("Dropping tables...")
		for i := len(tables) - 1; i >= 0; i-- {
			_, _ = db.NewDropTable().Model(tables[i]).IfExists().Cascade().Exec(ctx)
		}
	}

	log.Println("Creating tables...")
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("Failed to create table for %T: %v", m, err)
		}
	}

	if *seed {
		log.Println("Seeding sample data...")
		user := models.User{
			ID:        1,
			Language:  "en",
			FirstSeen: time.Now().UTC(),
		}
		if _, err := db.NewInsert().Model(&user).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			log.Fatalf("Failed to seed user: %v", err)
		}
	}

	log.Println("Done.")
}
