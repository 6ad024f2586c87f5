package config

import (
	"errors"

	"github.com/planloop/planloop/internal/models"
)

// MigratePostgres creates or updates the relational schema.
func MigratePostgres() error {
	if PostgresDB == nil {
		return errors.New("PostgresDB is nil; call InitPostgres() first")
	}
	return PostgresDB.AutoMigrate(
		&models.Profile{},
		&models.StageTimeLog{},
		&models.StreakState{},
		&models.FreezeUsage{},
	)
}
