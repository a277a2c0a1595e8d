package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kisansahayak/agrimonitor/internal/pkg/config"
	"github.com/kisansahayak/agrimonitor/migrations"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("agrimonitor-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	var files []string
	switch os.Args[1] {
	case "up":
		files, err = migrations.Up()
	case "down":
		files, err = migrations.Down()
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}

	run(ctx, pool, files)
}

func run(ctx context.Context, pool *pgxpool.Pool, files []string) {
	for _, f := range files {
		data, err := migrations.FS.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		if _, err := pool.Exec(ctx, string(data)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", f)
	}

	log.Printf("%d migrations applied", len(files))
}
