// MeterDB holds the reading history of the DLMS meter.
// The database should only be written to by meter_collector
// but can be read by any service.
package meterdb

import (
	"database/sql"
	"embed"
	"sync"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/NotCoffee418/dlms_power_meter/pkg/pathing"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

var (
	db   *sql.DB
	once sync.Once
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Initialize must be called manually on startup
func InitializeDatabase() {
	Migrate(GetDB())
}

// GetDB opens the database in the data directory on first use.
func GetDB() *sql.DB {
	once.Do(func() {
		var err error
		db, err = Open(pathing.GetMeterDbPath())
		if err != nil {
			log.Fatal(err)
		}
	})
	return db
}

// Open opens and pings the SQLite database at path.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate applies all embedded migrations to conn.
func Migrate(conn *sql.DB) {
	// Create DB before migrations
	if _, err := conn.Exec("SELECT 1;"); err != nil {
		log.Warnf("Could not create DB: %v", err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		conn,
		migrationFS,
		"migrations",
	)
}
