// Package history records an audit trail of join/send/receive events in
// SQLite, adapted from the teacher's storage package (spec §1 Non-goals
// explicitly excludes "persisting configuration across resets" — this
// package never stores modem configuration, only a log of what happened).
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	lorae5 "github.com/agsys/lora-e5-driver"
)

// Store wraps the SQLite connection backing the audit log.
type Store struct {
	conn *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS join_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		status TEXT NOT NULL,
		net_id TEXT,
		dev_addr TEXT,
		occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS uplinks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		port INTEGER NOT NULL,
		length INTEGER NOT NULL,
		confirmed BOOLEAN NOT NULL,
		occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS downlinks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		port INTEGER NOT NULL,
		length INTEGER NOT NULL,
		rxwin INTEGER,
		rssi INTEGER,
		snr REAL,
		occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		command TEXT NOT NULL,
		code INTEGER,
		occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// RecordJoin appends a join-status transition.
func (s *Store) RecordJoin(snap lorae5.JoinSnapshot) error {
	_, err := s.conn.Exec(
		`INSERT INTO join_events (status, net_id, dev_addr) VALUES (?, ?, ?)`,
		snap.Status.String(), snap.NetID, snap.DevAddr,
	)
	return err
}

// RecordUplink appends a send() call.
func (s *Store) RecordUplink(port uint8, length int, confirmed bool) error {
	_, err := s.conn.Exec(
		`INSERT INTO uplinks (port, length, confirmed) VALUES (?, ?, ?)`,
		port, length, confirmed,
	)
	return err
}

// RecordDownlink appends a received frame with its quality.
func (s *Store) RecordDownlink(payload lorae5.DownlinkPayload, stats lorae5.RxStats) error {
	_, err := s.conn.Exec(
		`INSERT INTO downlinks (port, length, rxwin, rssi, snr) VALUES (?, ?, ?, ?, ?)`,
		payload.Port, payload.Length, stats.Rxwin, stats.Rssi, stats.Snr,
	)
	return err
}

// RecordError appends an arbiter failure (Timeout, Parse, CustomCode, ...)
// together with the command name it occurred on. Non-*lorae5.Error values
// (which should not occur on arbiter paths, but RecordError is also a
// reasonable place to log anything unexpected) are recorded with kind
// "unknown" and no code.
func (s *Store) RecordError(command string, err error) error {
	kind := "unknown"
	code := sql.NullInt64{}
	if lerr, ok := err.(*lorae5.Error); ok {
		kind = lerr.Kind.String()
		if lerr.Kind == lorae5.ErrCustomCode {
			code = sql.NullInt64{Int64: int64(lerr.Code), Valid: true}
		}
	}
	_, execErr := s.conn.Exec(
		`INSERT INTO errors (kind, command, code) VALUES (?, ?, ?)`,
		kind, command, code,
	)
	return execErr
}

// JoinEvent is one row read back from join_events.
type JoinEvent struct {
	Status     string
	NetID      string
	DevAddr    string
	OccurredAt time.Time
}

// RecentJoins returns the last n join-status transitions, most recent first.
func (s *Store) RecentJoins(n int) ([]JoinEvent, error) {
	rows, err := s.conn.Query(
		`SELECT status, net_id, dev_addr, occurred_at FROM join_events ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []JoinEvent
	for rows.Next() {
		var e JoinEvent
		var netID, devAddr sql.NullString
		if err := rows.Scan(&e.Status, &netID, &devAddr, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.NetID = netID.String
		e.DevAddr = devAddr.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// UplinkEvent is one row read back from uplinks.
type UplinkEvent struct {
	Port       uint8
	Length     int
	Confirmed  bool
	OccurredAt time.Time
}

// RecentUplinks returns the last n uplinks sent, most recent first.
func (s *Store) RecentUplinks(n int) ([]UplinkEvent, error) {
	rows, err := s.conn.Query(
		`SELECT port, length, confirmed, occurred_at FROM uplinks ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []UplinkEvent
	for rows.Next() {
		var e UplinkEvent
		if err := rows.Scan(&e.Port, &e.Length, &e.Confirmed, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DownlinkEvent is one row read back from downlinks.
type DownlinkEvent struct {
	Port       uint8
	Length     int
	Rxwin      sql.NullInt64
	Rssi       sql.NullInt64
	Snr        sql.NullFloat64
	OccurredAt time.Time
}

// RecentDownlinks returns the last n downlinks received, most recent first.
func (s *Store) RecentDownlinks(n int) ([]DownlinkEvent, error) {
	rows, err := s.conn.Query(
		`SELECT port, length, rxwin, rssi, snr, occurred_at FROM downlinks ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DownlinkEvent
	for rows.Next() {
		var e DownlinkEvent
		if err := rows.Scan(&e.Port, &e.Length, &e.Rxwin, &e.Rssi, &e.Snr, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ErrorEvent is one row read back from errors.
type ErrorEvent struct {
	Kind       string
	Command    string
	Code       sql.NullInt64
	OccurredAt time.Time
}

// RecentErrors returns the last n arbiter failures, most recent first.
func (s *Store) RecentErrors(n int) ([]ErrorEvent, error) {
	rows, err := s.conn.Query(
		`SELECT kind, command, code, occurred_at FROM errors ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ErrorEvent
	for rows.Next() {
		var e ErrorEvent
		if err := rows.Scan(&e.Kind, &e.Command, &e.Code, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
