package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/aille/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	decision_id         INTEGER PRIMARY KEY,
	timestamp_ns        INTEGER NOT NULL,
	status              TEXT    NOT NULL,
	final_value         REAL    NOT NULL,
	confidence          REAL    NOT NULL,
	models_agreed       INTEGER NOT NULL,
	fallback_used       INTEGER NOT NULL,
	reasoning           TEXT    NOT NULL,
	contributing_models TEXT    NOT NULL,
	symbol              TEXT    NOT NULL,
	strategy_id         TEXT    NOT NULL,
	user_id             TEXT    NOT NULL,
	hash                TEXT    NOT NULL,
	prev_hash           TEXT    NOT NULL
);
`

// SQLiteStore keeps ledger records in the audit_records table.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) a SQLite ledger database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit: init sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Append(r Record) error {
	models, err := json.Marshal(r.ContributingModels)
	if err != nil {
		return fmt.Errorf("audit: marshal contributing models: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO audit_records (
		decision_id, timestamp_ns, status, final_value, confidence, models_agreed,
		fallback_used, reasoning, contributing_models, symbol, strategy_id, user_id,
		hash, prev_hash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.DecisionID), model.UnixNanos(r.Timestamp), string(r.Status), r.FinalValue,
		r.Confidence, r.ModelsAgreed, r.FallbackUsed, r.Reasoning, string(models),
		r.Symbol, r.StrategyID, r.UserID, r.Hash, r.PrevHash,
	)
	if err != nil {
		return fmt.Errorf("audit: insert record %d: %w", r.DecisionID, err)
	}
	return nil
}

func (s *SQLiteStore) Load() ([]Record, error) {
	rows, err := s.db.Query(`SELECT
		decision_id, timestamp_ns, status, final_value, confidence, models_agreed,
		fallback_used, reasoning, contributing_models, symbol, strategy_id, user_id,
		hash, prev_hash
	FROM audit_records ORDER BY decision_id`)
	if err != nil {
		return nil, fmt.Errorf("audit: query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r      Record
			id, ns int64
			status string
			models string
		)
		if err := rows.Scan(&id, &ns, &status, &r.FinalValue, &r.Confidence,
			&r.ModelsAgreed, &r.FallbackUsed, &r.Reasoning, &models, &r.Symbol,
			&r.StrategyID, &r.UserID, &r.Hash, &r.PrevHash); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		r.DecisionID = uint64(id)
		r.Status = model.DecisionStatus(status)
		if ns != 0 {
			r.Timestamp = time.Unix(0, ns).UTC()
		}
		if err := json.Unmarshal([]byte(models), &r.ContributingModels); err != nil {
			return nil, fmt.Errorf("audit: record %d contributing models: %w", id, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
