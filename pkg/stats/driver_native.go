//go:build !cgo_sqlite

package stats

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func openDB(dataSource string) (*sql.DB, error) {
	return sql.Open(driverName, dataSource)
}
