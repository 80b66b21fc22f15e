// Command create-tables resets the destination schema: drop the catalog
// tables if present, then create them fresh. Run it once before the first
// load, or any time a clean slate is needed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"sparkifyetl/internal/config"
	"sparkifyetl/internal/schema"
	"sparkifyetl/internal/storage"

	_ "sparkifyetl/internal/storage/all"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "configs/pipelines/sparkify.json", "pipeline config JSON path")
	drop := flag.Bool("drop", true, "drop existing tables before creating")
	flag.Parse()

	_ = godotenv.Load()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	for _, iss := range config.ValidatePipeline(p) {
		if iss.Severity == config.SeverityError {
			fatalf("%s: %s: %s", iss.Severity, iss.Path, iss.Message)
		}
	}

	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{
		Kind: p.Storage.Kind,
		DSN:  os.ExpandEnv(p.Storage.DSN),
	})
	if err != nil {
		fatalf("storage: %v", err)
	}
	defer repo.Close()

	tables := schema.All()

	if *drop {
		if err := repo.DropTables(ctx, tables); err != nil {
			fatalf("drop tables: %v", err)
		}
		log.Printf("dropped %d tables", len(tables))
	}

	if err := repo.EnsureTables(ctx, tables); err != nil {
		fatalf("create tables: %v", err)
	}
	log.Printf("created %d tables (storage=%s)", len(tables), p.Storage.Kind)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
