package datastore

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
)

// MySQLStore implements Interface for MySQL.
type MySQLStore struct {
	DataStore
	DSN string
}

// Open connects to MySQL and migrates the schema.
func (store *MySQLStore) Open() error {
	if store.DSN == "" {
		return errors.Newf("mysql DSN is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(mysql.Open(store.DSN), store.gormConfig())
	if err != nil {
		store.Logger.Error("failed to open MySQL database", logger.Error(err))
		return dbError(err, "open_mysql")
	}

	store.DB = db
	return store.migrate("mysql")
}
