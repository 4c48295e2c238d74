package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with thread-safe operations. It records
// search sessions and their rollouts so the viewer and later analysis can
// replay what the advisor tried.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Session is one optimization session over a single input module.
type Session struct {
	ID         string
	Module     string
	StartedAt  time.Time
	Rollouts   int
	BestFactor int
	BestScore  float64
	Finished   bool
}

// Rollout is one recorded rollout within a session.
type Rollout struct {
	SessionID string
	Seq       int
	Decisions []int
	Score     float64
	OK        bool
	CreatedAt time.Time
}

// New creates a new database connection and initializes the schema.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		module TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		rollouts INTEGER DEFAULT 0,
		best_factor INTEGER DEFAULT 0,
		best_score REAL DEFAULT 0,
		finished BOOLEAN DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS rollouts (
		session_id TEXT,
		seq INTEGER,
		decisions TEXT,
		score REAL,
		ok BOOLEAN,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_rollouts_session ON rollouts(session_id);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// CreateSession registers a new session for the given input module and
// returns its id.
func (db *DB) CreateSession(module string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	id := uuid.NewString()
	_, err := db.conn.Exec(
		`INSERT INTO sessions (id, module) VALUES (?, ?)`, id, module)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// RecordRollout appends one rollout to a session.
func (db *DB) RecordRollout(sessionID string, seq int, decisions []int, score float64, ok bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	encoded, err := json.Marshal(decisions)
	if err != nil {
		return fmt.Errorf("failed to encode decisions: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO rollouts (session_id, seq, decisions, score, ok) VALUES (?, ?, ?, ?, ?)`,
		sessionID, seq, string(encoded), score, ok)
	if err != nil {
		return fmt.Errorf("failed to record rollout: %w", err)
	}
	_, err = db.conn.Exec(
		`UPDATE sessions SET rollouts = rollouts + 1 WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to bump rollout count: %w", err)
	}
	return nil
}

// FinishSession stores the final recommendation.
func (db *DB) FinishSession(sessionID string, bestFactor int, bestScore float64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		`UPDATE sessions SET best_factor = ?, best_score = ?, finished = 1 WHERE id = ?`,
		bestFactor, bestScore, sessionID)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	return nil
}

// ListSessions returns sessions newest first.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(
		`SELECT id, module, started_at, rollouts, best_factor, best_score, finished
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Module, &s.StartedAt, &s.Rollouts,
			&s.BestFactor, &s.BestScore, &s.Finished); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionRollouts returns a session's rollouts in order.
func (db *DB) SessionRollouts(sessionID string) ([]Rollout, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT session_id, seq, decisions, score, ok, created_at
		 FROM rollouts WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollouts: %w", err)
	}
	defer rows.Close()

	var rollouts []Rollout
	for rows.Next() {
		var r Rollout
		var decisions string
		if err := rows.Scan(&r.SessionID, &r.Seq, &decisions, &r.Score, &r.OK, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rollout: %w", err)
		}
		if err := json.Unmarshal([]byte(decisions), &r.Decisions); err != nil {
			return nil, fmt.Errorf("failed to decode decisions: %w", err)
		}
		rollouts = append(rollouts, r)
	}
	return rollouts, rows.Err()
}
