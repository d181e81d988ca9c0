// Package postgres implements the persistence collaborator on sqlx.
package postgres

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"collectpay/pkg/config"
)

// Connect opens and pings the database with pool limits from config.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}
