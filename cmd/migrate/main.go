package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kdimtricp/framechart/internal/database"
)

func main() {
	var (
		dbPath = flag.String("db", "./framechart.db", "Path to the SQLite database")
		status = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	if env := os.Getenv("DB_PATH"); env != "" {
		*dbPath = env
	}

	db, err := database.NewDB(database.Config{SQLitePath: *dbPath})
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	if *status {
		migrations, applied, err := db.MigrationStatus()
		if err != nil {
			log.Fatal("Failed to read migration status:", err)
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		for _, m := range migrations {
			state := "pending"
			if applied[m.Version] {
				state = "applied"
			}
			fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
		}
		return
	}

	fmt.Printf("Running migrations on %s...\n", *dbPath)
	if err := db.RunMigrations(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	fmt.Println("Migrations completed successfully!")
}
