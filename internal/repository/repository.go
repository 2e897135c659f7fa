package repository

import (
	"errors"

	"gorm.io/gorm"

	"dm-service/internal/database"
)

// ErrDatabaseUnavailable is returned while the shared database
// connection has not come up yet.
var ErrDatabaseUnavailable = errors.New("database not available")

// resolve prefers the injected handle and falls back to the shared
// connection, which can come up after the process does. Persistence
// calls made during the outage fail with an error instead of taking
// the connection's goroutine down.
func resolve(db *gorm.DB) (*gorm.DB, error) {
	if db != nil {
		return db, nil
	}
	if shared := database.GetDB(); shared != nil {
		return shared, nil
	}
	return nil, ErrDatabaseUnavailable
}
