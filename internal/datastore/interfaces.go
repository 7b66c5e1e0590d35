// Package datastore persists recording history with GORM.
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is considered slow.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error
	SaveRecording(r *Recording) error
	FinishRecording(recordingID string, stoppedAt time.Time, outcome Outcome, errMsg string) error
	GetRecording(recordingID string) (Recording, error)
	ListRecordings(limit int) ([]Recording, error)
}

// DataStore implements the queries shared by every backend.
type DataStore struct {
	DB     *gorm.DB
	Logger logger.Logger
}

// Config selects and configures a backend.
type Config struct {
	Type string // sqlite or mysql
	Path string // sqlite file
	DSN  string // mysql data source name
}

// New returns the backend for cfg.Type. The store is not opened.
func New(cfg Config, log logger.Logger) (Interface, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	switch cfg.Type {
	case "", "sqlite":
		return &SQLiteStore{DataStore: DataStore{Logger: log}, Path: cfg.Path}, nil
	case "mysql":
		return &MySQLStore{DataStore: DataStore{Logger: log}, DSN: cfg.DSN}, nil
	default:
		return nil, errors.Newf("unsupported database type %q", cfg.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func (ds *DataStore) gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.NewGormLoggerAdapter(ds.Logger, DefaultSlowQueryThreshold)}
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

func dbError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

// SaveRecording inserts a new history row.
func (ds *DataStore) SaveRecording(r *Recording) error {
	if err := ds.ready(); err != nil {
		return err
	}
	if err := ds.DB.Create(r).Error; err != nil {
		return dbError(err, "save_recording")
	}
	return nil
}

// FinishRecording closes the open row for recordingID.
func (ds *DataStore) FinishRecording(recordingID string, stoppedAt time.Time, outcome Outcome, errMsg string) error {
	if err := ds.ready(); err != nil {
		return err
	}
	result := ds.DB.Model(&Recording{}).
		Where("recording_id = ? AND outcome = ?", recordingID, OutcomeRecording).
		Updates(map[string]any{
			"stopped_at": stoppedAt,
			"outcome":    outcome,
			"error":      errMsg,
		})
	if result.Error != nil {
		return dbError(result.Error, "finish_recording")
	}
	if result.RowsAffected == 0 {
		return errors.Newf("no open recording %q", recordingID).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("recording_id", recordingID).
			Build()
	}
	return nil
}

// GetRecording returns the row for recordingID.
func (ds *DataStore) GetRecording(recordingID string) (Recording, error) {
	var r Recording
	if err := ds.ready(); err != nil {
		return r, err
	}
	err := ds.DB.Where("recording_id = ?", recordingID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r, errors.New(err).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("recording_id", recordingID).
			Build()
	}
	if err != nil {
		return r, dbError(err, "get_recording")
	}
	return r, nil
}

// ListRecordings returns the most recent rows first. A limit <= 0 returns all rows.
func (ds *DataStore) ListRecordings(limit int) ([]Recording, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	q := ds.DB.Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Recording
	if err := q.Find(&out).Error; err != nil {
		return nil, dbError(err, "list_recordings")
	}
	return out, nil
}

// Close releases the connection pool.
func (ds *DataStore) Close() error {
	if err := ds.ready(); err != nil {
		return err
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	ds.DB = nil
	return nil
}

func (ds *DataStore) migrate(dbType string) error {
	if err := ds.DB.AutoMigrate(&Recording{}); err != nil {
		ds.Logger.Error("automigration failed",
			logger.String("db_type", dbType),
			logger.Error(err))
		return dbError(err, "migrate")
	}
	ds.Logger.Debug("automigration completed", logger.String("db_type", dbType))
	return nil
}
