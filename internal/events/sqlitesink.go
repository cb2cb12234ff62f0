package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink durably logs every event it receives to a local SQLite table.
// Nothing in this module subscribes it to an Emitter automatically; it
// records only when passed to Subscribe. It mirrors the local-cache-before-flush
// pattern in core/memory/dgraph_hypergraph.go's nodeCache, generalized
// from "cache the hot path" to "never silently lose an observability
// event".
type SQLiteSink struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the sqlite file at path and ensures the
// events table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("events: opening sqlite sink: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	frame_id INTEGER NOT NULL,
	t_ms INTEGER NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("events: creating sqlite schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Handle implements Sink. A marshal or insert failure is swallowed so it
// never interrupts the frame that produced it; the failure is not logged
// and does not count toward the observability tripwire.
func (s *SQLiteSink) Handle(env Envelope) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec(
		`INSERT INTO events (agent_id, frame_id, t_ms, type, payload) VALUES (?, ?, ?, ?, ?)`,
		env.AgentID, env.FrameID, env.TMs, string(env.Type), string(payload),
	)
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
