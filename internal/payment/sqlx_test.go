package payment_test

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

func sqlxFromGorm(sqlDB *sql.DB) *sqlx.DB {
	return sqlx.NewDb(sqlDB, "sqlite3")
}
