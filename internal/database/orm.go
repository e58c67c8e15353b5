package database

import (
	"database/sql"
	"errors"
	"fmt"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrORMUnsupported is returned for drivers without a gorm dialector.
var ErrORMUnsupported = errors.New("no gorm dialector for database driver")

// OpenORM layers gorm over an already opened connection pool. Closing db
// closes the ORM as well.
func OpenORM(db *sql.DB, driver string) (*gorm.DB, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.New(postgres.Config{Conn: db})
	case DialectMySQL:
		dialector = gormmysql.New(gormmysql.Config{Conn: db, SkipInitializeWithVersion: true})
	default:
		return nil, fmt.Errorf("%w %q", ErrORMUnsupported, driver)
	}

	orm, err := gorm.Open(dialector, &gorm.Config{
		// Pipeline errors are logged by the caller.
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm %s: %w", dialect, err)
	}
	return orm, nil
}
