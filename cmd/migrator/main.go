package main

import (
	"context"
	"flag"
	"log"
	"time"

	"whisperclient/cfg"
	"whisperclient/db"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "cfg-path", "cfg/cfg.yaml", "path to config file")
	flag.Parse()

	config, err := cfg.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	if config.Ledger.ConnStr == "" {
		log.Fatal("ledger.conn_str is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledger, err := db.New(ctx, &config.Ledger)
	if err != nil {
		log.Fatal("failed to init job ledger: ", err)
	}
	defer ledger.Close()

	applied, err := ledger.Migrate(ctx)
	if err != nil {
		log.Fatalf("can't apply migrations: %v", err)
	}

	for _, file := range applied {
		log.Printf("applied migration %s", file)
	}

	log.Printf("migrations applied to %s ledger", ledger.Driver())
}
