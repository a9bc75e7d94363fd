// Package telemetry persists per-cycle collector statistics to a sqlite
// database for offline inspection with the fengc CLI.
package telemetry

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/fen-lang/fen/gc"
)

// Store appends one row per completed collection cycle.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or reuses) the telemetry database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS gc_cycles (
		epoch             INTEGER NOT NULL,
		live_bytes        INTEGER NOT NULL,
		reclaimed_bytes   INTEGER NOT NULL,
		copied_objects    INTEGER NOT NULL,
		frames_traced     INTEGER NOT NULL,
		entries_rewritten INTEGER NOT NULL,
		offloaded_bytes   INTEGER NOT NULL,
		forced            INTEGER NOT NULL,
		pause_ns          INTEGER NOT NULL,
		at                TEXT    NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating gc_cycles table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCycle appends one cycle's statistics. Suitable for wiring straight
// into Collector.OnCycle via Attach.
func (s *Store) RecordCycle(st gc.CycleStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO gc_cycles
		 (epoch, live_bytes, reclaimed_bytes, copied_objects, frames_traced,
		  entries_rewritten, offloaded_bytes, forced, pause_ns, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Epoch, st.LiveBytes, st.ReclaimedBytes, st.CopiedObjects,
		st.FramesTraced, st.EntriesRewritten, st.OffloadedBytes,
		boolToInt(st.Forced), st.Pause.Nanoseconds(),
		st.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
	)
	if err != nil {
		return fmt.Errorf("recording cycle: %w", err)
	}
	return nil
}

// Attach wires the store into a collector so every completed cycle is
// recorded. Write failures are reported through errFn (which may be nil)
// rather than interrupting the mutator.
func (s *Store) Attach(c *gc.Collector, errFn func(error)) {
	c.OnCycle = func(st gc.CycleStats) {
		if err := s.RecordCycle(st); err != nil && errFn != nil {
			errFn(err)
		}
	}
}

// CycleRow is one persisted cycle record.
type CycleRow struct {
	Epoch            uint64
	LiveBytes        uint32
	ReclaimedBytes   uint32
	CopiedObjects    int
	FramesTraced     int
	EntriesRewritten int
	OffloadedBytes   uint32
	Forced           bool
	PauseNanos       int64
	At               string
}

// RecentCycles returns up to n most recent cycle rows, newest first.
func (s *Store) RecentCycles(n int) ([]CycleRow, error) {
	rows, err := s.db.Query(
		`SELECT epoch, live_bytes, reclaimed_bytes, copied_objects,
		        frames_traced, entries_rewritten, offloaded_bytes, forced,
		        pause_ns, at
		 FROM gc_cycles ORDER BY rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var r CycleRow
		var forced int
		if err := rows.Scan(&r.Epoch, &r.LiveBytes, &r.ReclaimedBytes,
			&r.CopiedObjects, &r.FramesTraced, &r.EntriesRewritten,
			&r.OffloadedBytes, &forced, &r.PauseNanos, &r.At); err != nil {
			return nil, fmt.Errorf("scanning cycle row: %w", err)
		}
		r.Forced = forced != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// CycleCount returns the number of persisted cycles.
func (s *Store) CycleCount() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM gc_cycles").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cycles: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
