package repository

import (
	"database/sql"
	"errors"
	"time"

	"coopStore/models"

	"go.uber.org/zap"
)

const cartStorageSchema = `CREATE TABLE IF NOT EXISTS CartStorage (
	CartKey TEXT PRIMARY KEY,
	Value TEXT NOT NULL,
	UpdatedAt TIMESTAMP NOT NULL
)`

// SqliteCartRepo stores cart snapshots in a single table of an embedded database.
type SqliteCartRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSqliteCartRepository(conn *sql.DB, logger *zap.Logger) (CartRepository, error) {
	if conn == nil {
		return nil, errors.New("conn must be non-nil")
	}
	err := conn.Ping()
	if err != nil {
		return nil, err
	}
	if _, err = conn.Exec(cartStorageSchema); err != nil {
		return nil, err
	}
	return &SqliteCartRepo{
		db:     conn,
		logger: logger,
	}, nil
}

func (s *SqliteCartRepo) GetCart(key string) (raw string, exists bool, err error) {
	row := s.db.QueryRow("SELECT Value FROM CartStorage WHERE CartKey = $1", key)
	err = row.Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		} else {
			s.logger.Error("GetCart: query failed", zap.String("key", key), zap.Error(err))
			err = models.ErrPersistenceUnavailable
		}
		return
	}
	exists = true
	return
}

func (s *SqliteCartRepo) SetCart(key string, raw string) (err error) {
	_, err = s.db.Exec("INSERT INTO CartStorage (CartKey, Value, UpdatedAt) VALUES ($1, $2, $3) "+
		"ON CONFLICT(CartKey) DO UPDATE SET Value = excluded.Value, UpdatedAt = excluded.UpdatedAt",
		key, raw, time.Now().UTC())
	if err != nil {
		s.logger.Error("SetCart: upsert failed", zap.String("key", key), zap.Error(err))
		err = models.ErrPersistenceUnavailable
	}
	return
}
