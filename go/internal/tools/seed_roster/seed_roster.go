package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/rollcall/go/internal/config"
	"github.com/mcdev12/rollcall/go/internal/dbconfig"
	"github.com/mcdev12/rollcall/go/internal/models"
	"github.com/mcdev12/rollcall/go/internal/remote/pgdoc"
)

const defaultSeedPath = "go/internal/assets/roster.yaml"

func main() {
	path := defaultSeedPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the YAML roster
	teams, err := config.LoadSeed(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load seed: %v\n", err)
		os.Exit(1)
	}
	body, err := models.EncodeTeams(teams)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode teams: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	dbCfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Replace the document and wake up followers
	docCfg := pgdoc.DefaultConfig()
	if _, err := pool.Exec(ctx, pgdoc.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "create schema: %v\n", err)
		os.Exit(1)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO roster_documents (name, body, updated_at)
            VALUES ($1, $2, now())
            ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
        `, docCfg.Document, string(body)); err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, docCfg.NotifyChannel, docCfg.Document); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed %s: %v\n", dbCfg.Redacted(), err)
		os.Exit(1)
	}

	// 4) Print summary
	var members, present int
	for _, team := range teams {
		for _, m := range team.Members {
			members++
			if m.IsPresent {
				present++
			}
		}
	}
	fmt.Printf(
		"Roster seed complete: %d teams, %d members, %d present\n",
		len(teams), members, present,
	)
}
