// Package store implements the durable append-only packet log and session
// metadata on SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"netscope.xyz/netscope/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS packets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_nanos   INTEGER NOT NULL,
	protocol   TEXT    NOT NULL,
	src_ip     TEXT,
	dst_ip     TEXT,
	src_port   INTEGER NOT NULL DEFAULT 0,
	dst_port   INTEGER NOT NULL DEFAULT 0,
	size       INTEGER NOT NULL,
	flags      TEXT,
	session_id TEXT,
	raw        BLOB
);
CREATE INDEX IF NOT EXISTS idx_packets_ts      ON packets(ts_nanos, id);
CREATE INDEX IF NOT EXISTS idx_packets_session ON packets(session_id);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	started_at   INTEGER NOT NULL,
	ended_at     INTEGER,
	packet_count INTEGER NOT NULL DEFAULT 0,
	filter_json  TEXT,
	degraded     INTEGER NOT NULL DEFAULT 0
);
`

// Options tunes the append retry policy.
type Options struct {
	RetryAttempts int           // total attempts per append, minimum 1
	RetryBackoff  time.Duration // base backoff, doubled per attempt
}

// Store is the durable packet log. Appends go through a single mutex-guarded
// writer path; readers run on their own connections with snapshot-consistent
// queries (WAL mode).
type Store struct {
	db   *sql.DB
	opts Options
}

// Open creates or opens the database at path, creating parent directories
// as needed.
func Open(path string, opts Options) (*Store, error) {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 25 * time.Millisecond
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db, opts: opts}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append durably writes a record. The record is queryable by subsequent reads
// once Append returns. Failures are retried with bounded exponential backoff;
// after exhaustion the error wraps core.ErrStoreWrite. The caller decides
// whether to mark the session degraded; the pipeline keeps running.
func (s *Store) Append(rec core.PacketRecord) (int64, error) {
	var lastErr error
	backoff := s.opts.RetryBackoff

	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		id, err := s.appendOnce(rec)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if attempt < s.opts.RetryAttempts {
			slog.Warn("store append failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", err)
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	return 0, fmt.Errorf("%w: after %d attempts: %v", core.ErrStoreWrite, s.opts.RetryAttempts, lastErr)
}

func (s *Store) appendOnce(rec core.PacketRecord) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO packets (ts_nanos, protocol, src_ip, dst_ip, src_port, dst_port, size, flags, session_id, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(),
		string(rec.Protocol),
		addrString(rec.SrcIP),
		addrString(rec.DstIP),
		rec.SrcPort,
		rec.DstPort,
		rec.Size,
		strings.Join(rec.Flags, ","),
		rec.SessionID,
		rec.Raw,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CountSession returns the number of records tagged with the session id.
func (s *Store) CountSession(id string) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM packets WHERE session_id = ?`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count session %q: %w", id, err)
	}
	return n, nil
}

// Count returns the number of records matching the filter.
func (s *Store) Count(f core.QueryFilter) (int64, error) {
	where, args := buildWhere(f)
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM packets`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// buildWhere translates a QueryFilter into a WHERE clause. Zero-value fields
// add no constraint.
func buildWhere(f core.QueryFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Protocol != "" {
		conds = append(conds, "protocol = ?")
		args = append(args, string(f.Protocol))
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Address != "" {
		conds = append(conds, "(src_ip = ? OR dst_ip = ?)")
		args = append(args, f.Address, f.Address)
	}
	if !f.From.IsZero() {
		conds = append(conds, "ts_nanos >= ?")
		args = append(args, f.From.UnixNano())
	}
	if !f.To.IsZero() {
		conds = append(conds, "ts_nanos <= ?")
		args = append(args, f.To.UnixNano())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const recordColumns = "id, ts_nanos, protocol, src_ip, dst_ip, src_port, dst_port, size, flags, session_id, raw"

func scanRecord(rows *sql.Rows) (core.PacketRecord, error) {
	var (
		rec      core.PacketRecord
		tsNanos  int64
		proto    string
		srcIP    string
		dstIP    string
		flags    string
	)
	err := rows.Scan(&rec.ID, &tsNanos, &proto, &srcIP, &dstIP,
		&rec.SrcPort, &rec.DstPort, &rec.Size, &flags, &rec.SessionID, &rec.Raw)
	if err != nil {
		return core.PacketRecord{}, err
	}

	rec.Timestamp = time.Unix(0, tsNanos)
	rec.Protocol = core.Protocol(proto)
	if srcIP != "" {
		if a, err := netip.ParseAddr(srcIP); err == nil {
			rec.SrcIP = a
		}
	}
	if dstIP != "" {
		if a, err := netip.ParseAddr(dstIP); err == nil {
			rec.DstIP = a
		}
	}
	if flags != "" {
		rec.Flags = strings.Split(flags, ",")
	}
	return rec, nil
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

// SaveSession inserts or replaces a session row.
func (s *Store) SaveSession(sess core.Session) error {
	filterJSON, err := json.Marshal(sess.Filter)
	if err != nil {
		return fmt.Errorf("store: marshal session filter: %w", err)
	}

	var endedAt any
	if !sess.EndTime.IsZero() {
		endedAt = sess.EndTime.UnixNano()
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, started_at, ended_at, packet_count, filter_json, degraded)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StartTime.UnixNano(), endedAt, sess.PacketCount, string(filterJSON), boolInt(sess.Degraded),
	)
	if err != nil {
		return fmt.Errorf("store: save session %q: %w", sess.ID, err)
	}
	return nil
}

// MarkSessionDegraded flags the session after store writes exhausted retries.
func (s *Store) MarkSessionDegraded(id string) error {
	_, err := s.db.Exec(`UPDATE sessions SET degraded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark session %q degraded: %w", id, err)
	}
	return nil
}

// ListSessions returns all sessions ordered by start time descending.
func (s *Store) ListSessions() ([]core.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, ended_at, packet_count, filter_json, degraded
		FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.Session
	for rows.Next() {
		var (
			sess       core.Session
			startedAt  int64
			endedAt    sql.NullInt64
			filterJSON string
			degraded   int
		)
		if err := rows.Scan(&sess.ID, &startedAt, &endedAt, &sess.PacketCount, &filterJSON, &degraded); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		sess.StartTime = time.Unix(0, startedAt)
		if endedAt.Valid {
			sess.EndTime = time.Unix(0, endedAt.Int64)
		}
		sess.Degraded = degraded != 0
		if filterJSON != "" {
			if err := json.Unmarshal([]byte(filterJSON), &sess.Filter); err != nil {
				slog.Warn("store: skipping corrupt session filter", "session_id", sess.ID, "error", err)
			}
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// PruneSessions removes stopped sessions beyond maxHistory, oldest first,
// together with their packet records. Active sessions are never pruned.
func (s *Store) PruneSessions(maxHistory int) error {
	if maxHistory < 0 {
		return nil
	}
	rows, err := s.db.Query(`
		SELECT id FROM sessions WHERE ended_at IS NOT NULL
		ORDER BY started_at DESC LIMIT -1 OFFSET ?`, maxHistory)
	if err != nil {
		return fmt.Errorf("store: prune sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("store: prune scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := s.db.Exec(`DELETE FROM packets WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("store: prune packets for %q: %w", id, err)
		}
		if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("store: prune session %q: %w", id, err)
		}
		slog.Info("pruned session history", "session_id", id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
