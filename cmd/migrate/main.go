package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/cori/video-analysis-pipeline/internal/config"
	"github.com/cori/video-analysis-pipeline/internal/database"
	"github.com/cori/video-analysis-pipeline/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config")
		up         = flag.Bool("up", false, "Apply all pending migrations")
		down       = flag.Bool("down", false, "Roll back all migrations")
		version    = flag.Bool("version", false, "Show the applied schema version")
	)
	flag.Parse()

	if !*up && !*down && !*version {
		*version = true
	}
	if *up && *down {
		log.Fatal("-up and -down are mutually exclusive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	dbConfig := service.DatabaseConfig(cfg)
	db, err := database.Open(dbConfig)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db)
	if err != nil {
		log.Fatal("Failed to initialize migrator:", err)
	}

	switch {
	case *up:
		if err := migrator.Up(); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Migrations applied")
	case *down:
		if err := migrator.Down(); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Migrations rolled back")
	}

	v, dirty, err := migrator.Version()
	if err != nil {
		log.Fatal(err)
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	if dbConfig.Type == "postgres" {
		fmt.Printf("Schema version %d (%s) on %s@%s:%d/%s\n", v, state, dbConfig.User, dbConfig.Host, dbConfig.Port, dbConfig.Name)
	} else {
		fmt.Printf("Schema version %d (%s) on %s\n", v, state, dbConfig.SQLitePath)
	}
}
