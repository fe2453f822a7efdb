package main

// Run database migrations:
//   go run ./cmd/migrate [up|down|status|version|redo]

import (
	"context"
	"log"
	"os"

	"resume-critique/internal/shared/config"
	"resume-critique/internal/shared/storage/db"
	"resume-critique/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	opts := db.OptionsFromEnv(db.Defaults(db.ProfileMigrate))
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, command); err != nil {
		log.Printf("migrate %s failed: %v", command, err)
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"command": command})
}
