package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// PostgresManager stores one row per thread with the snapshot as jsonb. The
// upsert makes Save atomic; concurrent readers see either the old or the new
// payload, never a mix.
type PostgresManager struct {
	db     *sql.DB
	logger *log.Logger
}

func NewPostgres(ctx context.Context, dsn string, logger *log.Logger) (*PostgresManager, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[CHECKPOINT] ", log.LstdFlags)
	}
	return &PostgresManager{db: db, logger: logger}, nil
}

// NewPostgresWithDB wraps an existing connection, used by tests.
func NewPostgresWithDB(db *sql.DB, logger *log.Logger) *PostgresManager {
	if logger == nil {
		logger = log.New(log.Writer(), "[CHECKPOINT] ", log.LstdFlags)
	}
	return &PostgresManager{db: db, logger: logger}
}

func (m *PostgresManager) Load(ctx context.Context, threadID string) (Snapshot, bool, error) {
	var (
		payload   []byte
		updatedAt time.Time
	)
	row := m.db.QueryRowContext(ctx, `
SELECT payload, updated_at FROM thread_checkpoints WHERE thread_id = $1`, threadID)
	if err := row.Scan(&payload, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		// A corrupt payload means the thread starts over rather than wedging
		// every future turn on it.
		m.logger.Printf("corrupt checkpoint for thread %s, discarding: %v", threadID, err)
		return Snapshot{}, false, nil
	}
	snap.ThreadID = threadID
	snap.UpdatedAt = updatedAt
	return snap, true, nil
}

func (m *PostgresManager) Save(ctx context.Context, snap Snapshot) error {
	if snap.ThreadID == "" {
		return fmt.Errorf("thread_id is required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint payload: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
INSERT INTO thread_checkpoints (thread_id, user_id, payload, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (thread_id) DO UPDATE SET
  user_id    = EXCLUDED.user_id,
  payload    = EXCLUDED.payload,
  updated_at = NOW();
`, snap.ThreadID, nullable(snap.UserID), payload)
	return err
}

func (m *PostgresManager) Delete(ctx context.Context, threadID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM thread_checkpoints WHERE thread_id = $1`, threadID)
	return err
}

func (m *PostgresManager) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM thread_checkpoints WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (m *PostgresManager) Close() error { return m.db.Close() }

// DB exposes the underlying connection for components sharing the database.
func (m *PostgresManager) DB() *sql.DB { return m.db }

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
