//go:build sqlite

package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, cp.RunID, cp.SchemaVersion, cp.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, runID string) (Checkpoint, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Checkpoint{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}

	cp, err := DecodeCheckpoint(payload)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint %s: %w", runID, err)
	}
	return cp, true, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, record RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, record.RunID, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}

	record, err := DecodeRun(payload)
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		record, err := DecodeRun(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) SaveRewardHistory(ctx context.Context, runID string, history []float64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRewardHistory(history)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO reward_history (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) GetRewardHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM reward_history WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	history, err := DecodeRewardHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode reward history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS reward_history (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
